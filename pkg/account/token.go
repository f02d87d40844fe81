package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gobeyondidentity/podnotes/pkg/dpop"
)

const tokenRequestBody = "grant_type=client_credentials&scope=webid"

// RequestAccessToken exchanges a client credential for an access token bound
// to a freshly generated key pair. The key travels with the returned token.
func (a *Authenticator) RequestAccessToken(ctx context.Context, cred *ClientCredential, tokenURL string) (*AccessToken, error) {
	if cred == nil {
		return nil, fmt.Errorf("%w: %s: no client credential", ErrAuth, StepToken)
	}

	key, err := a.newKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: generate proof key: %w", ErrAuth, StepToken, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(tokenRequestBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: build request: %w", ErrDiscovery, StepToken, err)
	}
	req.SetBasicAuth(cred.ID, cred.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	// No access token yet, so the client adds only the DPoP proof.
	client := dpop.NewClient(dpop.NewGenerator(key), dpop.WithHTTPClient(a.httpClient))
	issuedAt := a.now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(StepToken, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, transportError(StepToken, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(StepToken, resp.StatusCode, body, ErrAuth)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: %s: decode response: %w", ErrAuth, StepToken, err)
	}
	if tr.AccessToken == "" {
		return nil, missingField(StepToken, "access_token")
	}
	if tr.ExpiresIn == nil {
		return nil, missingField(StepToken, "expires_in")
	}
	seconds, err := tr.ExpiresIn.Int64()
	if err != nil || seconds <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid expires_in %q", ErrAuth, StepToken, tr.ExpiresIn.String())
	}
	if tr.TokenType != "" && !strings.EqualFold(tr.TokenType, "DPoP") {
		a.logger.Warn("account.token_type", "token_type", tr.TokenType)
	}

	a.logger.Debug("account.token_issued", "expires_in", seconds)
	return &AccessToken{
		Token:     tr.AccessToken,
		ExpiresIn: time.Duration(seconds) * time.Second,
		IssuedAt:  issuedAt,
		Key:       key,
	}, nil
}

// Exchange requests an access token for cred at the configured or
// discovered token endpoint.
func (a *Authenticator) Exchange(ctx context.Context, cred *ClientCredential) (*AccessToken, error) {
	tokenURL, err := a.TokenURL(ctx)
	if err != nil {
		return nil, err
	}
	return a.RequestAccessToken(ctx, cred, tokenURL)
}

// TokenURL returns the configured token endpoint, discovering it when none
// was configured.
func (a *Authenticator) TokenURL(ctx context.Context) (string, error) {
	if a.tokenURL != "" {
		return a.tokenURL, nil
	}
	issuer := a.issuer
	if issuer == "" {
		origin, err := originOf(a.creds.AccountURL)
		if err != nil {
			return "", fmt.Errorf("%w: derive issuer: %w", ErrDiscovery, err)
		}
		issuer = origin
	}
	return a.DiscoverTokenEndpoint(ctx, issuer)
}

// DiscoverTokenEndpoint reads token_endpoint from the issuer's OpenID
// provider configuration.
func (a *Authenticator) DiscoverTokenEndpoint(ctx context.Context, issuer string) (string, error) {
	wellKnown := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: build request: %w", ErrDiscovery, StepTokenDiscovery, err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := a.send(req, StepTokenDiscovery)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", statusError(StepTokenDiscovery, status, body, ErrDiscovery)
	}

	var cfg openIDConfiguration
	if err := json.Unmarshal(body, &cfg); err != nil {
		return "", fmt.Errorf("%w: %s: decode configuration: %w", ErrDiscovery, StepTokenDiscovery, err)
	}
	if cfg.TokenEndpoint == "" {
		return "", missingField(StepTokenDiscovery, "token_endpoint")
	}
	return cfg.TokenEndpoint, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
