// Package podserver is an in-memory Community Solid Server stand-in for
// tests: the account API, a DPoP-validating token endpoint and one pod whose
// resources are protected by pkg/dpop's AuthMiddleware.
//
// Access tokens are bound to the thumbprint of the proof key presented at
// the token endpoint, so a resource request signed by any other key fails
// with dpop.key_mismatch.
package podserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gobeyondidentity/podnotes/internal/testutil/mockhttp"
	"github.com/gobeyondidentity/podnotes/pkg/dpop"
	"github.com/google/uuid"
)

// Default account credentials accepted by the server.
const (
	Email    = "alice@example.com"
	Password = "password"
	PodName  = "alice"
)

type document struct {
	body     []byte
	modified time.Time
	order    int
}

// Server is a running fake pod. Close it when done.
type Server struct {
	*httptest.Server

	email       string
	password    string
	tokenTTL    time.Duration
	deleteCode  int
	logger      *slog.Logger
	validator   *dpop.Validator
	jtis        *dpop.MemoryJTICache
	accounts    sync.Map // account token -> struct{}
	tokens      sync.Map // access token -> *dpop.BoundToken
	credentials sync.Map // client id -> secret

	mu      sync.Mutex
	docs    map[string]*document // path below the pod root
	forced  map[string]int       // GET status overrides
	created int

	logins        atomic.Int32
	tokenRequests atomic.Int32
}

// Option configures a Server.
type Option func(*Server)

// WithCredentials changes the accepted email and password.
func WithCredentials(email, password string) Option {
	return func(s *Server) {
		s.email = email
		s.password = password
	}
}

// WithTokenTTL sets expires_in for issued access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = ttl
	}
}

// WithDeleteStatus sets the status returned by a successful DELETE.
func WithDeleteStatus(code int) Option {
	return func(s *Server) {
		s.deleteCode = code
	}
}

// New starts a server.
func New(opts ...Option) *Server {
	s := &Server{
		email:      Email,
		password:   Password,
		tokenTTL:   10 * time.Minute,
		deleteCode: http.StatusResetContent,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		validator:  dpop.NewValidator(dpop.DefaultValidatorConfig()),
		jtis:       dpop.NewMemoryJTICache(),
		docs:       make(map[string]*document),
		forced:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	auth := dpop.NewAuthMiddleware(s.validator, s, s.jtis, dpop.WithLogger(s.logger))

	r := chi.NewRouter()
	r.Get("/.well-known/openid-configuration", s.handleOpenIDConfiguration)
	r.Route("/.account", func(r chi.Router) {
		r.Get("/", s.handleIndex)
		r.Post("/account/", s.handleCreateAccount)
		r.Post("/password/", s.handleCreatePassword)
		r.Post("/login/password/", s.handleLogin)
		r.Post("/client-credentials/", s.handleClientCredentials)
	})
	r.Post("/.oidc/token", s.handleToken)
	r.With(auth.Wrap).HandleFunc("/"+PodName+"/*", s.handleResource)

	s.Server = httptest.NewServer(r)
	return s
}

// AccountURL returns the account index URL.
func (s *Server) AccountURL() string {
	return s.URL + "/.account/"
}

// PodURL returns the pod root URL.
func (s *Server) PodURL() string {
	return s.URL + "/" + PodName + "/"
}

// TokenURL returns the token endpoint URL.
func (s *Server) TokenURL() string {
	return s.URL + "/.oidc/token"
}

// Logins returns how many password logins succeeded.
func (s *Server) Logins() int {
	return int(s.logins.Load())
}

// TokenRequests returns how many access tokens were issued.
func (s *Server) TokenRequests() int {
	return int(s.tokenRequests.Load())
}

// PutDocument stores a raw document at path below the pod root.
func (s *Server) PutDocument(path string, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(path, []byte(body))
}

// Document returns the raw document at path below the pod root.
func (s *Server) Document(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		return "", false
	}
	return string(doc.body), true
}

// Documents returns the stored paths below the pod root.
func (s *Server) Documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.docs))
	for p := range s.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FailGet makes GET of path below the pod root answer with status.
func (s *Server) FailGet(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[path] = status
}

// LookupToken implements dpop.TokenLookup.
func (s *Server) LookupToken(_ context.Context, token string) (*dpop.BoundToken, error) {
	v, ok := s.tokens.Load(token)
	if !ok {
		return nil, nil
	}
	return v.(*dpop.BoundToken), nil
}

func (s *Server) store(path string, body []byte) bool {
	doc, existed := s.docs[path]
	if !existed {
		s.created++
		doc = &document{order: s.created}
		s.docs[path] = doc
	}
	doc.body = body
	doc.modified = time.Now()
	return existed
}

func (s *Server) handleOpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	mockhttp.WriteJSON(w, r, http.StatusOK, map[string]string{
		"issuer":         mockhttp.Base + "/",
		"token_endpoint": mockhttp.Base + "/.oidc/token",
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	controls := map[string]any{
		"account": map[string]string{"create": mockhttp.Base + "/.account/account/"},
		"password": map[string]string{
			"login": mockhttp.Base + "/.account/login/password/",
		},
	}
	if s.accountToken(r) != "" {
		controls["account"] = map[string]string{
			"create":            mockhttp.Base + "/.account/account/",
			"clientCredentials": mockhttp.Base + "/.account/client-credentials/",
		}
		controls["password"] = map[string]string{
			"create": mockhttp.Base + "/.account/password/",
			"login":  mockhttp.Base + "/.account/login/password/",
		}
	}
	mockhttp.WriteJSON(w, r, http.StatusOK, map[string]any{"controls": controls})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	authz := uuid.NewString()
	s.accounts.Store(authz, struct{}{})
	mockhttp.WriteJSON(w, r, http.StatusOK, map[string]string{"authorization": authz})
}

func (s *Server) handleCreatePassword(w http.ResponseWriter, r *http.Request) {
	if s.accountToken(r) == "" {
		writeHTTPError(w, r, http.StatusUnauthorized, "UnauthorizedHttpError")
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeHTTPError(w, r, http.StatusBadRequest, "BadRequestHttpError")
		return
	}
	if body.Email == s.email {
		writeHTTPError(w, r, http.StatusBadRequest, "BadRequestHttpError")
		return
	}
	mockhttp.WriteJSON(w, r, http.StatusOK, map[string]any{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	if body.Email != s.email || body.Password != s.password {
		writeHTTPError(w, r, http.StatusForbidden, "ForbiddenHttpError")
		return
	}
	s.logins.Add(1)
	authz := uuid.NewString()
	s.accounts.Store(authz, struct{}{})
	mockhttp.WriteJSON(w, r, http.StatusOK, map[string]string{"authorization": authz})
}

func (s *Server) handleClientCredentials(w http.ResponseWriter, r *http.Request) {
	if s.accountToken(r) == "" {
		writeHTTPError(w, r, http.StatusUnauthorized, "UnauthorizedHttpError")
		return
	}
	var body struct {
		Name  string `json:"name"`
		WebID string `json:"webId"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	if body.WebID != s.PodURL()+"profile/card#me" {
		writeHTTPError(w, r, http.StatusBadRequest, "BadRequestHttpError")
		return
	}

	id := body.Name + "_" + uuid.NewString()
	secret := uuid.NewString()
	s.credentials.Store(id, secret)
	mockhttp.WriteJSON(w, r, http.StatusOK, map[string]string{
		"id":       id,
		"secret":   secret,
		"resource": mockhttp.Base + "/.account/client-credentials/" + id + "/",
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	stored, known := s.credentials.Load(id)
	if !ok || !known || stored.(string) != secret {
		mockhttp.WriteJSON(w, r, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		mockhttp.WriteJSON(w, r, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	proof, err := s.validator.ValidateProof(r.Header.Get("DPoP"), r.Method, mockhttp.BaseURL(r)+r.URL.Path)
	if err != nil {
		mockhttp.WriteJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid_dpop_proof", "error_description": err.Error()})
		return
	}
	if replay, err := s.jtis.Record(proof.Claims.JTI); err != nil || replay {
		mockhttp.WriteJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid_dpop_proof"})
		return
	}

	token := uuid.NewString()
	s.tokens.Store(token, &dpop.BoundToken{
		Token:     token,
		JKT:       proof.Thumbprint,
		WebID:     s.PodURL() + "profile/card#me",
		ExpiresAt: time.Now().Add(s.tokenTTL),
	})
	s.tokenRequests.Add(1)
	mockhttp.WriteJSON(w, r, http.StatusOK, map[string]any{
		"access_token": token,
		"expires_in":   int(s.tokenTTL.Seconds()),
		"token_type":   "DPoP",
	})
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/"+PodName+"/")

	s.mu.Lock()
	defer s.mu.Unlock()

	if code, ok := s.forced[path]; ok && r.Method == http.MethodGet {
		w.WriteHeader(code)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if path == "" || strings.HasSuffix(path, "/") {
			w.Header().Set("Content-Type", "text/turtle")
			io.WriteString(w, s.listing(path))
			return
		}
		doc, ok := s.docs[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/turtle")
		w.Write(doc.body)
	case http.MethodPut:
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "text/turtle") {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if s.store(path, body) {
			w.WriteHeader(http.StatusResetContent)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if _, ok := s.docs[path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.docs, path)
		w.WriteHeader(s.deleteCode)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// listing renders a container document with relative member IRIs, in
// creation order.
func (s *Server) listing(container string) string {
	type member struct {
		name string
		doc  *document
	}
	var members []member
	for p, doc := range s.docs {
		rest, ok := strings.CutPrefix(p, container)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		members = append(members, member{name: rest, doc: doc})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].doc.order < members[j].doc.order })

	var b strings.Builder
	b.WriteString("@prefix ldp: <http://www.w3.org/ns/ldp#> .\n")
	b.WriteString("@prefix posix: <http://www.w3.org/ns/posix/stat#> .\n\n")
	b.WriteString("<> a ldp:Container, ldp:BasicContainer, ldp:Resource")
	for _, m := range members {
		fmt.Fprintf(&b, ";\n    ldp:contains <%s>", m.name)
	}
	b.WriteString(" .\n")
	for _, m := range members {
		fmt.Fprintf(&b, "<%s> a ldp:Resource;\n    posix:mtime %d;\n    posix:size %d .\n",
			m.name, m.doc.modified.Unix(), len(m.doc.body))
	}
	return b.String()
}

func (s *Server) accountToken(r *http.Request) string {
	authz, ok := strings.CutPrefix(r.Header.Get("Authorization"), "CSS-Account-Token ")
	if !ok {
		return ""
	}
	if _, known := s.accounts.Load(authz); !known {
		return ""
	}
	return authz
}

func writeHTTPError(w http.ResponseWriter, r *http.Request, code int, name string) {
	mockhttp.WriteJSON(w, r, code, map[string]any{
		"name":       name,
		"message":    http.StatusText(code),
		"statusCode": code,
	})
}
