package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gobeyondidentity/podnotes/pkg/dpop"
)

const (
	// DefaultCredentialName is the name given to minted client credentials.
	DefaultCredentialName = "token"

	maxResponseBytes = 1 << 20
)

// Authenticator performs the account handshake for one set of credentials.
// It holds no handshake state; every call starts from the account index.
type Authenticator struct {
	creds          Credentials
	httpClient     *http.Client
	tokenURL       string
	issuer         string
	credentialName string
	logger         *slog.Logger
	now            func() time.Time
	newKey         func() (*dpop.KeyPair, error)
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithTokenURL fixes the token endpoint. Without it the endpoint is
// discovered from the issuer's OpenID configuration.
func WithTokenURL(tokenURL string) Option {
	return func(a *Authenticator) {
		a.tokenURL = tokenURL
	}
}

// WithIssuer overrides the issuer used for token endpoint discovery.
// It defaults to the origin of the account URL.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) {
		a.issuer = issuer
	}
}

// WithCredentialName sets the name of minted client credentials.
func WithCredentialName(name string) Option {
	return func(a *Authenticator) {
		if name != "" {
			a.credentialName = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock overrides the time source used to stamp issued tokens.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// New creates an Authenticator for creds.
func New(creds Credentials, opts ...Option) *Authenticator {
	a := &Authenticator{
		creds:          creds,
		httpClient:     http.DefaultClient,
		credentialName: DefaultCredentialName,
		logger:         slog.Default(),
		now:            time.Now,
		newKey:         dpop.GenerateKeyPair,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Credentials returns the credentials the authenticator was built with.
func (a *Authenticator) Credentials() Credentials {
	return a.creds
}

// Controls fetches the account index. A non-empty authz is sent as a
// CSS-Account-Token, which makes the server publish the controls that need
// an authenticated account.
func (a *Authenticator) Controls(ctx context.Context, authz string) (Controls, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.creds.AccountURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build index request: %w", ErrDiscovery, err)
	}
	req.Header.Set("Accept", "application/json")
	setAccountToken(req, authz)

	status, body, err := a.send(req, StepIndex)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(StepIndex, status, body, ErrDiscovery)
	}

	var index indexResponse
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("%w: decode index: %w", ErrDiscovery, err)
	}
	if index.Controls == nil {
		return nil, missingField(StepIndex, "controls")
	}
	return index.Controls, nil
}

// RegisterAccount creates a new account and returns its account token.
func (a *Authenticator) RegisterAccount(ctx context.Context) (string, error) {
	endpoint, err := a.discover(ctx, "", ControlAccountCreate)
	if err != nil {
		return "", err
	}

	var resp authorizationResponse
	status, body, err := a.postJSON(ctx, StepAccountCreate, endpoint, "", struct{}{}, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", statusError(StepAccountCreate, status, body, ErrAuth)
	}
	if resp.Authorization == "" {
		return "", missingField(StepAccountCreate, "authorization")
	}

	a.logger.Info("account.registered", "account", a.creds.AccountURL)
	return resp.Authorization, nil
}

// RegisterPassword attaches the email/password login to the account
// identified by authz. A server-side rejection is reported in the result.
func (a *Authenticator) RegisterPassword(ctx context.Context, authz string) (*PasswordResult, error) {
	endpoint, err := a.discover(ctx, authz, ControlPasswordCreate)
	if err != nil {
		return nil, err
	}

	var detail map[string]any
	status, body, err := a.postJSON(ctx, StepPasswordCreate, endpoint, authz, a.loginPayload(), &detail)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		if detail == nil {
			detail = map[string]any{"statusCode": status, "message": truncate(string(body), 512)}
		}
		a.logger.Warn("account.password_rejected", "status", status)
		return &PasswordResult{Success: false, Detail: detail}, nil
	}

	return &PasswordResult{
		Success: true,
		Detail: map[string]any{
			"name":       "PasswordCreated",
			"message":    "Successfully created password for this e-mail address.",
			"statusCode": http.StatusOK,
			"errorCode":  nil,
			"details":    map[string]any{},
		},
	}, nil
}

// Login exchanges the email/password for an account token.
func (a *Authenticator) Login(ctx context.Context) (string, error) {
	endpoint, err := a.discover(ctx, "", ControlPasswordLogin)
	if err != nil {
		return "", err
	}

	var resp authorizationResponse
	status, body, err := a.postJSON(ctx, StepLogin, endpoint, "", a.loginPayload(), &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", statusError(StepLogin, status, body, ErrAuth)
	}
	if resp.Authorization == "" {
		return "", missingField(StepLogin, "authorization")
	}

	a.logger.Debug("account.login", "account", a.creds.AccountURL)
	return resp.Authorization, nil
}

// FetchClientCredential mints a client credential for the pod's WebID.
func (a *Authenticator) FetchClientCredential(ctx context.Context, authz string) (*ClientCredential, error) {
	endpoint, err := a.discover(ctx, authz, ControlClientCredentials)
	if err != nil {
		return nil, err
	}

	payload := map[string]string{
		"name":  a.credentialName,
		"webId": a.creds.WebID(),
	}
	var cred ClientCredential
	status, body, err := a.postJSON(ctx, StepClientCredentials, endpoint, authz, payload, &cred)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(StepClientCredentials, status, body, ErrAuth)
	}
	switch {
	case cred.ID == "":
		return nil, missingField(StepClientCredentials, "id")
	case cred.Secret == "":
		return nil, missingField(StepClientCredentials, "secret")
	case cred.Resource == "":
		return nil, missingField(StepClientCredentials, "resource")
	}

	a.logger.Debug("account.client_credential", "resource", cred.Resource)
	return &cred, nil
}

// Handshake runs the full sequence and returns the client credential along
// with the access token, so a caller can later re-exchange the credential
// without logging in again.
func (a *Authenticator) Handshake(ctx context.Context) (*ClientCredential, *AccessToken, error) {
	authz, err := a.Login(ctx)
	if err != nil {
		return nil, nil, err
	}
	cred, err := a.FetchClientCredential(ctx, authz)
	if err != nil {
		return nil, nil, err
	}
	tok, err := a.Exchange(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	return cred, tok, nil
}

// Authenticate runs the full handshake and returns the access token.
func (a *Authenticator) Authenticate(ctx context.Context) (*AccessToken, error) {
	_, tok, err := a.Handshake(ctx)
	return tok, err
}

func (a *Authenticator) loginPayload() map[string]string {
	return map[string]string{
		"email":    a.creds.Username,
		"password": a.creds.Password,
	}
}

func (a *Authenticator) discover(ctx context.Context, authz, control string) (string, error) {
	controls, err := a.Controls(ctx, authz)
	if err != nil {
		return "", err
	}
	return controls.Lookup(control)
}

// postJSON posts body as JSON and decodes a JSON response into out when the
// response parses. The raw body is returned for error reporting.
func (a *Authenticator) postJSON(ctx context.Context, step, endpoint, authz string, body, out any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: marshal request: %w", ErrAuth, step, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: build request: %w", ErrDiscovery, step, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setAccountToken(req, authz)

	status, raw, err := a.send(req, step)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && status == http.StatusOK {
			return status, raw, fmt.Errorf("%w: %s: decode response: %w", ErrAuth, step, err)
		}
	}
	return status, raw, nil
}

func (a *Authenticator) send(req *http.Request, step string) (int, []byte, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, transportError(step, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, transportError(step, err)
	}
	return resp.StatusCode, body, nil
}

func setAccountToken(req *http.Request, authz string) {
	if authz != "" {
		req.Header.Set("Authorization", "CSS-Account-Token "+authz)
	}
}

// originOf returns scheme://host/ for rawURL.
func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}
