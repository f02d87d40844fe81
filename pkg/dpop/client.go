package dpop

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client wraps an *http.Client so that every outgoing request carries a
// proof for its own method and URL, and "Authorization: DPoP <token>" when a
// token is set.
type Client struct {
	hc    *http.Client
	gen   ProofGenerator
	token string
}

// ClientOption customizes NewClient.
type ClientOption func(*Client)

// WithHTTPClient replaces http.DefaultClient. nil is ignored.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithAccessToken sets the access token sent in the Authorization header.
// Without a token only the DPoP header is added (token endpoint requests).
func WithAccessToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient returns a Client signing with gen, which must hold the key the
// access token is bound to.
func NewClient(gen ProofGenerator, opts ...ClientOption) *Client {
	c := &Client{hc: http.DefaultClient, gen: gen}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do signs req and sends it. Proofs are never reused across requests.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	proof, err := c.gen.Generate(req.Method, req.URL.String())
	if err != nil {
		return nil, fmt.Errorf("dpop: sign %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	req.Header.Set("DPoP", proof)
	if c.token != "" {
		req.Header.Set("Authorization", "DPoP "+c.token)
	}
	return c.hc.Do(req)
}

// AuthError is the error code a pod or token endpoint returned with a 401
// or 403, taken from the JSON "error" member of the body.
type AuthError struct {
	StatusCode int
	Code       string
}

// Error includes the status and the server's code.
func (e *AuthError) Error() string {
	return fmt.Sprintf("dpop: pod refused credentials (%d): %s", e.StatusCode, e.Code)
}

var authHints = map[string]string{
	ErrCodeMissingProof:     "the request carried no DPoP header",
	ErrCodeInvalidProof:     "the DPoP header is not a well-formed proof",
	ErrCodeInvalidSignature: "the proof signature did not verify",
	ErrCodeInvalidIAT:       "the proof timestamp is outside the server's window; check that the local clock is synchronized",
	ErrCodeMethodMismatch:   "the proof was made for a different HTTP method",
	ErrCodeURIMismatch:      "the proof was made for a different URL",
	ErrCodeReplay:           "the proof jti was already seen",
	ErrCodeKeyMismatch:      "the proof key is not the key the token is bound to",
	ErrCodeInvalidToken:     "the access token is invalid or expired",
}

// Hint explains the code in terms a CLI user can act on. Unknown codes are
// echoed back.
func (e *AuthError) Hint() string {
	if h, ok := authHints[e.Code]; ok {
		return h
	}
	return "server reported " + e.Code
}

// ClockSkew reports whether the server rejected the proof's iat.
func (e *AuthError) ClockSkew() bool {
	return e.Code == ErrCodeInvalidIAT
}

// ParseAuthError reads the error code from a 401 or 403 response, consuming
// the body. Any other status yields nil.
func ParseAuthError(resp *http.Response) *AuthError {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
	default:
		return nil
	}

	ae := &AuthError{StatusCode: resp.StatusCode, Code: "unknown"}
	if resp.Body == nil {
		return ae
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != "" {
		ae.Code = body.Error
	}
	return ae
}
