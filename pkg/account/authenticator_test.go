package account

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gobeyondidentity/podnotes/internal/testutil/mockhttp"
	"github.com/gobeyondidentity/podnotes/pkg/dpop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct horse"
	testAcctTok  = "acct-token"
	testClientID = "client-id"
	testSecret   = "client-secret"
)

var testControls = map[string]any{
	"controls": map[string]any{
		"main": map[string]string{"index": mockhttp.Base + "/.account/"},
		"account": map[string]string{
			"create":            mockhttp.Base + "/.account/account/",
			"clientCredentials": mockhttp.Base + "/.account/client-credentials/",
		},
		"password": map[string]string{
			"create": mockhttp.Base + "/.account/password/",
			"login":  mockhttp.Base + "/.account/login/password/",
		},
		"html": map[string]any{
			"password": map[string]string{"register": mockhttp.Base + "/.account/password/register/"},
		},
	},
}

// cssBuilder scripts the Community Solid Server account API. The token
// endpoint validates the DPoP proof and records the bound thumbprint.
func cssBuilder(t *testing.T, boundJKT *string) *mockhttp.ServerBuilder {
	t.Helper()

	validator := dpop.NewValidator(dpop.DefaultValidatorConfig())
	return mockhttp.New().
		JSON("/.account/", testControls).
		JSON("/.well-known/openid-configuration", map[string]string{
			"issuer":         mockhttp.Base + "/",
			"token_endpoint": mockhttp.Base + "/.oidc/token",
		}).
		RouteJSON(http.MethodPost, "/.account/account/", http.StatusOK, map[string]string{"authorization": "fresh-account"}).
		Route(http.MethodPost, "/.account/login/password/", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != testEmail || body["password"] != testPassword {
				mockhttp.WriteJSON(w, r, http.StatusForbidden, map[string]any{
					"name": "ForbiddenHttpError", "message": "Invalid email/password combination.",
				})
				return
			}
			mockhttp.WriteJSON(w, r, http.StatusOK, map[string]string{"authorization": testAcctTok})
		}).
		RequireAccountToken("/.account/client-credentials/", testAcctTok).
		RouteJSON(http.MethodPost, "/.account/client-credentials/", http.StatusOK, map[string]string{
			"id":       testClientID,
			"secret":   testSecret,
			"resource": mockhttp.Base + "/.account/client-credentials/1/",
		}).
		RequireBasicAuth("/.oidc/token", testClientID, testSecret).
		Route(http.MethodPost, "/.oidc/token", func(w http.ResponseWriter, r *http.Request) {
			proof, err := validator.ValidateProof(r.Header.Get("DPoP"), r.Method, mockhttp.BaseURL(r)+r.URL.Path)
			if err != nil {
				mockhttp.WriteJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid_dpop_proof"})
				return
			}
			if boundJKT != nil {
				*boundJKT = proof.Thumbprint
			}
			mockhttp.WriteJSON(w, r, http.StatusOK, map[string]any{
				"access_token": "access-1",
				"expires_in":   600,
				"token_type":   "DPoP",
			})
		})
}

func newTestAuthenticator(server *httptest.Server, opts ...Option) *Authenticator {
	creds := Credentials{
		Username:   testEmail,
		Password:   testPassword,
		AccountURL: server.URL + "/.account/",
		PodURL:     server.URL + "/alice/",
	}
	opts = append([]Option{
		WithHTTPClient(server.Client()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return New(creds, opts...)
}

func TestAuthenticate_FullHandshake(t *testing.T) {
	t.Log("Testing login, credential minting and token exchange with endpoint discovery")

	var boundJKT string
	b := cssBuilder(t, &boundJKT)
	capture := b.Capture()
	server, _ := b.Build()
	defer server.Close()

	issued := time.Unix(1720000000, 0)
	auth := newTestAuthenticator(server, WithClock(func() time.Time { return issued }))

	tok, err := auth.Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "access-1", tok.Token)
	assert.Equal(t, 600*time.Second, tok.ExpiresIn)
	assert.Equal(t, issued, tok.IssuedAt)
	require.NotNil(t, tok.Key)

	jkt, err := tok.Key.Thumbprint()
	require.NoError(t, err)
	assert.Equal(t, boundJKT, jkt, "token must carry the key it was bound to")

	credReq := capture.Find(http.MethodPost, "/.account/client-credentials/")
	require.NotNil(t, credReq)
	var credBody map[string]string
	require.NoError(t, credReq.BodyJSON(&credBody))
	assert.Equal(t, DefaultCredentialName, credBody["name"])
	assert.Equal(t, server.URL+"/alice/profile/card#me", credBody["webId"])

	tokenReq := capture.Find(http.MethodPost, "/.oidc/token")
	require.NotNil(t, tokenReq)
	assert.Equal(t, tokenRequestBody, string(tokenReq.Body))
	assert.Equal(t, "application/x-www-form-urlencoded", tokenReq.Headers.Get("Content-Type"))
}

func TestHandshake_ReturnsCredentialForReexchange(t *testing.T) {
	server, _ := cssBuilder(t, nil).Build()
	defer server.Close()

	auth := newTestAuthenticator(server, WithTokenURL(server.URL+"/.oidc/token"))
	cred, first, err := auth.Handshake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testClientID, cred.ID)

	second, err := auth.Exchange(context.Background(), cred)
	require.NoError(t, err)
	assert.NotSame(t, first.Key, second.Key, "each exchange binds a fresh key")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	server, _ := cssBuilder(t, nil).Build()
	defer server.Close()

	auth := newTestAuthenticator(server)
	auth.creds.Password = "wrong"

	_, err := auth.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, StepLogin, statusErr.Step)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "Invalid email/password")

	_, err = auth.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestControls_Errors(t *testing.T) {
	t.Run("index status", func(t *testing.T) {
		server, _ := mockhttp.New().Status(http.MethodGet, "/.account/", http.StatusInternalServerError).Build()
		defer server.Close()

		_, err := newTestAuthenticator(server).Login(context.Background())
		assert.ErrorIs(t, err, ErrDiscovery)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, StepIndex, statusErr.Step)
	})

	t.Run("missing control", func(t *testing.T) {
		server, _ := mockhttp.New().JSON("/.account/", map[string]any{"controls": map[string]any{}}).Build()
		defer server.Close()

		_, err := newTestAuthenticator(server).Login(context.Background())
		assert.ErrorIs(t, err, ErrMissingControl)
		assert.ErrorIs(t, err, ErrDiscovery)
		var missing *MissingControlError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, ControlPasswordLogin, missing.Control)
	})

	t.Run("malformed index", func(t *testing.T) {
		server, _ := mockhttp.New().Turtle("/.account/", http.StatusOK, "not json").Build()
		defer server.Close()

		_, err := newTestAuthenticator(server).Login(context.Background())
		assert.ErrorIs(t, err, ErrDiscovery)
	})

	t.Run("transport", func(t *testing.T) {
		server, _ := mockhttp.New().Build()
		auth := newTestAuthenticator(server)
		server.Close()

		_, err := auth.Login(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestControlsLookup(t *testing.T) {
	controls := Controls{
		"password": map[string]any{"login": "https://pod.example/login"},
		"html":     map[string]any{"password": map[string]any{"register": "https://pod.example/reg"}},
		"empty":    map[string]any{"create": ""},
	}

	tests := []struct {
		name    string
		control string
		want    string
		wantErr bool
	}{
		{"leaf", "password.login", "https://pod.example/login", false},
		{"nested", "html.password.register", "https://pod.example/reg", false},
		{"missing group", "account.create", "", true},
		{"group not leaf", "password", "", true},
		{"empty leaf", "empty.create", "", true},
		{"through leaf", "password.login.extra", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := controls.Lookup(tt.control)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingControl)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchClientCredential_MissingField(t *testing.T) {
	server, _ := mockhttp.New().
		JSON("/.account/", testControls).
		RouteJSON(http.MethodPost, "/.account/client-credentials/", http.StatusOK, map[string]string{
			"id": testClientID, "resource": "r",
		}).
		Build()
	defer server.Close()

	_, err := newTestAuthenticator(server).FetchClientCredential(context.Background(), testAcctTok)
	assert.ErrorIs(t, err, ErrAuth)
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "secret", missing.Field)
}

func TestRegisterAccountAndPassword(t *testing.T) {
	b := cssBuilder(t, nil)
	b.RequireAccountToken("/.account/password/", "fresh-account").
		RouteJSON(http.MethodPost, "/.account/password/", http.StatusOK, map[string]string{})
	server, _ := b.Build()
	defer server.Close()

	auth := newTestAuthenticator(server)
	authz, err := auth.RegisterAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-account", authz)

	result, err := auth.RegisterPassword(context.Background(), authz)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "PasswordCreated", result.Detail["name"])

	result, err = auth.RegisterPassword(context.Background(), "stale-account")
	require.NoError(t, err, "a rejected registration is a result")
	assert.False(t, result.Success)
	assert.Equal(t, "UnauthorizedHttpError", result.Detail["name"])
}

func TestRegisterAccount_Rejected(t *testing.T) {
	server, _ := mockhttp.New().
		JSON("/.account/", testControls).
		RouteJSON(http.MethodPost, "/.account/account/", http.StatusBadRequest, map[string]string{"name": "BadRequestHttpError"}).
		Build()
	defer server.Close()

	authz, err := newTestAuthenticator(server).RegisterAccount(context.Background())
	assert.Empty(t, authz)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestRequestAccessToken_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response map[string]any
		wantErr  error
		field    string
	}{
		{"rejected", http.StatusUnauthorized, map[string]any{"error": "invalid_client"}, ErrAuth, ""},
		{"no access_token", http.StatusOK, map[string]any{"expires_in": 600}, ErrAuth, "access_token"},
		{"no expires_in", http.StatusOK, map[string]any{"access_token": "a"}, ErrAuth, "expires_in"},
		{"bad expires_in", http.StatusOK, map[string]any{"access_token": "a", "expires_in": -5}, ErrAuth, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := mockhttp.New().
				RouteJSON(http.MethodPost, "/token", tt.status, tt.response).
				Build()
			defer server.Close()

			auth := newTestAuthenticator(server)
			tok, err := auth.RequestAccessToken(context.Background(), &ClientCredential{ID: "i", Secret: "s"}, server.URL+"/token")
			assert.Nil(t, tok)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.field != "" {
				var missing *MissingFieldError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, tt.field, missing.Field)
			}
		})
	}
}

func TestDiscoverTokenEndpoint(t *testing.T) {
	server, _ := cssBuilder(t, nil).Build()
	defer server.Close()

	auth := newTestAuthenticator(server)
	endpoint, err := auth.DiscoverTokenEndpoint(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/.oidc/token", endpoint)

	empty, _ := mockhttp.New().JSON("/.well-known/openid-configuration", map[string]string{"issuer": "x"}).Build()
	defer empty.Close()
	_, err = newTestAuthenticator(empty).DiscoverTokenEndpoint(context.Background(), empty.URL)
	assert.ErrorIs(t, err, ErrDiscovery)
}

func TestAuthenticate_ContextCanceled(t *testing.T) {
	server, _ := cssBuilder(t, nil).Build()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAuthenticator(server).Authenticate(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestAccessTokenValid(t *testing.T) {
	key, err := dpop.GenerateKeyPair()
	require.NoError(t, err)
	issued := time.Unix(1720000000, 0)
	tok := &AccessToken{Token: "t", ExpiresIn: 10 * time.Minute, IssuedAt: issued, Key: key}

	tests := []struct {
		name string
		tok  *AccessToken
		now  time.Time
		skew time.Duration
		want bool
	}{
		{"fresh", tok, issued.Add(time.Minute), 30 * time.Second, true},
		{"inside skew", tok, issued.Add(9*time.Minute + 45*time.Second), 30 * time.Second, false},
		{"expired", tok, issued.Add(11 * time.Minute), 0, false},
		{"nil", nil, issued, 0, false},
		{"no key", &AccessToken{Token: "t", ExpiresIn: time.Hour, IssuedAt: issued}, issued, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tok.Valid(tt.now, tt.skew))
		})
	}
}

func TestLocalFailuresCarryAuthClass(t *testing.T) {
	server, _ := cssBuilder(t, nil).Build()
	defer server.Close()
	auth := newTestAuthenticator(server)

	t.Run("unencodable request body", func(t *testing.T) {
		_, _, err := auth.postJSON(context.Background(), StepLogin, server.URL+"/.account/login/password/", "", make(chan int), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuth)
		assert.NotErrorIs(t, err, ErrDiscovery)
		assert.NotErrorIs(t, err, ErrTransport)
	})

	t.Run("proof key generation", func(t *testing.T) {
		keyErr := errors.New("entropy exhausted")
		auth.newKey = func() (*dpop.KeyPair, error) { return nil, keyErr }
		cred := &ClientCredential{ID: testClientID, Secret: testSecret}
		_, err := auth.RequestAccessToken(context.Background(), cred, server.URL+"/.oidc/token")
		assert.ErrorIs(t, err, ErrAuth)
		assert.ErrorIs(t, err, keyErr)
		assert.NotErrorIs(t, err, ErrTransport)
	})
}
