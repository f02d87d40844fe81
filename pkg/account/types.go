package account

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gobeyondidentity/podnotes/pkg/dpop"
)

// Control names used by the handshake.
const (
	ControlAccountCreate     = "account.create"
	ControlPasswordCreate    = "password.create"
	ControlPasswordLogin     = "password.login"
	ControlClientCredentials = "account.clientCredentials"
)

// Credentials identify the account and the pod it owns.
type Credentials struct {
	Username   string
	Password   string
	AccountURL string // account index, e.g. https://pod.example/.account/
	PodURL     string // pod root with trailing slash
}

// WebID returns the profile WebID conventionally hosted in the pod.
func (c Credentials) WebID() string {
	return c.PodURL + "profile/card#me"
}

// ClientCredential is a client id/secret pair minted for a WebID.
type ClientCredential struct {
	ID       string `json:"id"`
	Secret   string `json:"secret"`
	Resource string `json:"resource"`
}

// AccessToken is a DPoP-bound access token. Key is the key pair the token
// was bound to at issuance.
type AccessToken struct {
	Token     string
	ExpiresIn time.Duration
	IssuedAt  time.Time
	Key       *dpop.KeyPair
}

// ExpiresAt returns the absolute expiry time.
func (t *AccessToken) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.ExpiresIn)
}

// Valid reports whether the token is still usable at now, treating it as
// expired skew before its real expiry.
func (t *AccessToken) Valid(now time.Time, skew time.Duration) bool {
	if t == nil || t.Token == "" || t.Key == nil {
		return false
	}
	return now.Add(skew).Before(t.ExpiresAt())
}

// PasswordResult is the outcome of a password registration. A rejected
// registration is a result, not an error: Success is false and Detail holds
// the server's error payload.
type PasswordResult struct {
	Success bool
	Detail  map[string]any
}

// Controls is the capability map published by the account index.
// Groups nest arbitrarily; leaves are endpoint URLs.
type Controls map[string]any

// Lookup resolves a dotted control name such as "password.login".
func (c Controls) Lookup(name string) (string, error) {
	var node any = map[string]any(c)
	for _, part := range strings.Split(name, ".") {
		group, ok := node.(map[string]any)
		if !ok {
			return "", &MissingControlError{Control: name}
		}
		node, ok = group[part]
		if !ok {
			return "", &MissingControlError{Control: name}
		}
	}
	endpoint, ok := node.(string)
	if !ok || endpoint == "" {
		return "", &MissingControlError{Control: name}
	}
	return endpoint, nil
}

type indexResponse struct {
	Controls Controls `json:"controls"`
}

type authorizationResponse struct {
	Authorization string `json:"authorization"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresIn   *json.Number `json:"expires_in"`
	TokenType   string       `json:"token_type"`
}

type openIDConfiguration struct {
	Issuer        string `json:"issuer"`
	TokenEndpoint string `json:"token_endpoint"`
}
