// Package account drives the Community Solid Server account API to obtain a
// DPoP-bound access token.
//
// The handshake is strictly sequential:
//
//	Login -> FetchClientCredential -> RequestAccessToken
//
// Each step discovers its endpoint from the account index "controls" map, so
// only the index URL is configured. The access token carries the key pair it
// was bound to; every resource request made with the token must be signed
// with that key.
//
// Failures are classified with the sentinels ErrDiscovery, ErrAuth and
// ErrTransport. Use errors.Is for the class and errors.As for the typed
// StatusError, MissingControlError and MissingFieldError details.
package account
