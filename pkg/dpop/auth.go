package dpop

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// BoundToken is an issued access token together with the thumbprint of the
// key it was bound to.
type BoundToken struct {
	Token     string
	JKT       string
	WebID     string
	ExpiresAt time.Time
}

// TokenLookup returns the BoundToken for a presented token, or nil when the
// token was never issued.
type TokenLookup interface {
	LookupToken(ctx context.Context, token string) (*BoundToken, error)
}

// ProofValidator checks a proof against the request it arrived with.
// *Validator is the implementation used by AuthMiddleware.
type ProofValidator interface {
	ValidateProof(proof, method, uri string) (*ValidatedProof, error)
}

type tokenCtxKey struct{}

// TokenFromContext returns the token AuthMiddleware accepted for the request.
func TokenFromContext(ctx context.Context) *BoundToken {
	t, _ := ctx.Value(tokenCtxKey{}).(*BoundToken)
	return t
}

// AuthMiddleware guards resources the way a Solid pod does: a DPoP
// Authorization header, a valid proof for this request, an unseen jti, a
// live token, and a proof key matching the token's jkt.
type AuthMiddleware struct {
	proofs ProofValidator
	tokens TokenLookup
	jtis   JTICache
	log    *slog.Logger
	now    func() time.Time
}

// AuthMiddlewareOption customizes NewAuthMiddleware.
type AuthMiddlewareOption func(*AuthMiddleware)

// WithLogger sets the logger for denials and lookups. nil is ignored.
func WithLogger(l *slog.Logger) AuthMiddlewareOption {
	return func(m *AuthMiddleware) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMiddlewareClock overrides the clock used for token expiry.
func WithMiddlewareClock(now func() time.Time) AuthMiddlewareOption {
	return func(m *AuthMiddleware) { m.now = now }
}

// NewAuthMiddleware combines proof validation, replay detection and token
// lookup. It logs to slog.Default unless WithLogger is given.
func NewAuthMiddleware(proofs ProofValidator, tokens TokenLookup, jtis JTICache, opts ...AuthMiddlewareOption) *AuthMiddleware {
	m := &AuthMiddleware{proofs: proofs, tokens: tokens, jtis: jtis, log: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Wrap calls next only for authenticated requests, with the accepted
// BoundToken in the context (see TokenFromContext). Everything else gets a
// JSON {"error": code} body and, on 401, a WWW-Authenticate challenge.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bound, status, err := m.authenticate(r)
		if err != nil {
			code := ErrorCode(err)
			if code == "" {
				code = ErrCodeInvalidProof
			}
			if status == http.StatusUnauthorized {
				m.log.Warn("dpop.denied", "code", code, "method", r.Method, "path", r.URL.Path, "detail", cleanLogValue(err.Error()))
			}
			deny(w, status, code)
			return
		}
		m.log.Debug("dpop.accepted", "method", r.Method, "path", r.URL.Path, "webid", cleanLogValue(bound.WebID))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenCtxKey{}, bound)))
	})
}

var (
	errNoAuthorization = &DPoPError{Code: ErrCodeInvalidToken, Message: "no DPoP authorization"}
	errUnknownToken    = &DPoPError{Code: ErrCodeInvalidToken, Message: "unknown or expired token"}
	errUnavailable     = &DPoPError{Code: "dpop.service_unavailable", Message: "jti cache full"}
	errLookup          = &DPoPError{Code: "internal_error", Message: "token lookup failed"}
)

// authenticate returns the accepted token, or the status to answer with and
// a DPoPError carrying the code.
func (m *AuthMiddleware) authenticate(r *http.Request) (*BoundToken, int, error) {
	scheme, token, _ := strings.Cut(r.Header.Get("Authorization"), " ")
	if !strings.EqualFold(scheme, "DPoP") || token == "" {
		return nil, http.StatusUnauthorized, errNoAuthorization
	}
	proof := r.Header.Get("DPoP")
	if proof == "" {
		return nil, http.StatusUnauthorized, ErrMissingProof()
	}

	vp, err := m.proofs.ValidateProof(proof, r.Method, requestURL(r))
	if err != nil {
		return nil, http.StatusUnauthorized, err
	}

	replay, err := m.jtis.Record(vp.Claims.JTI)
	switch {
	case errors.Is(err, ErrCacheFull):
		m.log.Error("dpop.jti_cache_full")
		return nil, http.StatusServiceUnavailable, errUnavailable
	case err != nil || replay:
		return nil, http.StatusUnauthorized, ErrReplay(vp.Claims.JTI)
	}

	bound, err := m.tokens.LookupToken(r.Context(), token)
	if err != nil {
		m.log.Error("dpop.token_lookup", "error", err)
		return nil, http.StatusInternalServerError, errLookup
	}
	if bound == nil || (!bound.ExpiresAt.IsZero() && !m.now().Before(bound.ExpiresAt)) {
		return nil, http.StatusUnauthorized, errUnknownToken
	}
	if bound.JKT != vp.Thumbprint {
		return nil, http.StatusUnauthorized, ErrKeyMismatch()
	}
	return bound, http.StatusOK, nil
}

// requestURL rebuilds the absolute URL the client signed. The query is left
// out since htu never carries one.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.EscapedPath()
}

func deny(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `DPoP algs="ES256", error="`+code+`"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// cleanLogValue strips control characters and caps length.
func cleanLogValue(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
