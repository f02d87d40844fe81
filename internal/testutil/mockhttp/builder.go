package mockhttp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Base in a scripted body is rewritten to the mock server's own URL, so
// responses can point at further endpoints of the same server.
const Base = "{base}"

// step inspects a request and reports whether it wrote the response.
// Guards write only on rejection; responders always write.
type step func(w http.ResponseWriter, r *http.Request) bool

// ServerBuilder scripts a fake CSS or pod endpoint. Steps run in the order
// they were added; a request no step answers gets 404.
type ServerBuilder struct {
	steps   []step
	capture *Capture
}

func New() *ServerBuilder {
	return &ServerBuilder{}
}

func (b *ServerBuilder) add(s step) *ServerBuilder {
	b.steps = append(b.steps, s)
	return b
}

// Route answers method on path with fn.
func (b *ServerBuilder) Route(method, path string, fn http.HandlerFunc) *ServerBuilder {
	return b.add(func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path != path || (method != "" && r.Method != method) {
			return false
		}
		fn(w, r)
		return true
	})
}

// JSON answers every method on path with 200 and v.
func (b *ServerBuilder) JSON(path string, v any) *ServerBuilder {
	return b.RouteJSON("", path, http.StatusOK, v)
}

func (b *ServerBuilder) RouteJSON(method, path string, code int, v any) *ServerBuilder {
	return b.Route(method, path, func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, r, code, v)
	})
}

// Turtle answers GET on path with a text/turtle body.
func (b *ServerBuilder) Turtle(path string, code int, doc string) *ServerBuilder {
	return b.Route(http.MethodGet, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/turtle")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, expand(doc, r))
	})
}

func (b *ServerBuilder) Status(method, path string, code int) *ServerBuilder {
	return b.Route(method, path, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	})
}

// RequireBasicAuth makes path answer 401 invalid_client unless the request
// carries the given client id and secret.
func (b *ServerBuilder) RequireBasicAuth(path, id, secret string) *ServerBuilder {
	return b.guard(path, func(r *http.Request) bool {
		u, p, ok := r.BasicAuth()
		return ok && u == id && p == secret
	}, map[string]string{"error": "invalid_client"})
}

// RequireAccountToken makes path answer 401 unless the request carries
// "Authorization: CSS-Account-Token <token>".
func (b *ServerBuilder) RequireAccountToken(path, token string) *ServerBuilder {
	return b.guard(path, func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "CSS-Account-Token "+token
	}, map[string]string{"name": "UnauthorizedHttpError"})
}

func (b *ServerBuilder) guard(path string, allow func(*http.Request) bool, reject any) *ServerBuilder {
	return b.add(func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path != path || allow(r) {
			return false
		}
		WriteJSON(w, r, http.StatusUnauthorized, reject)
		return true
	})
}

// Capture records every request the built server receives, ahead of all
// other steps.
func (b *ServerBuilder) Capture() *Capture {
	if b.capture != nil {
		return b.capture
	}
	c := &Capture{}
	b.capture = c
	b.steps = append([]step{func(_ http.ResponseWriter, r *http.Request) bool {
		c.record(r)
		return false
	}}, b.steps...)
	return c
}

// Build starts the server. The caller closes it.
func (b *ServerBuilder) Build() (*httptest.Server, *http.Client) {
	steps := append([]step(nil), b.steps...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, s := range steps {
			if s(w, r) {
				return
			}
		}
		http.NotFound(w, r)
	}))
	return srv, srv.Client()
}

// BaseURL is the origin a request was sent to.
func BaseURL(r *http.Request) string {
	if r.TLS != nil {
		return "https://" + r.Host
	}
	return "http://" + r.Host
}

func expand(s string, r *http.Request) string {
	return strings.ReplaceAll(s, Base, BaseURL(r))
}

// WriteJSON encodes v with Base expanded.
func WriteJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, expand(string(raw), r))
}

// Capture is the request log of a built server.
type Capture struct {
	mu   sync.Mutex
	reqs []CapturedRequest
}

type CapturedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// record buffers the body and puts a fresh reader back for later steps.
func (c *Capture) record(r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	c.mu.Lock()
	c.reqs = append(c.reqs, CapturedRequest{Method: r.Method, Path: r.URL.Path, Headers: r.Header.Clone(), Body: body})
	c.mu.Unlock()
}

func (c *Capture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reqs)
}

// Find returns a copy of the first request matching method and path.
func (c *Capture) Find(method, path string) *CapturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range c.reqs {
		if req.Method == method && req.Path == path {
			return &req
		}
	}
	return nil
}

func (r *CapturedRequest) BodyJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}
