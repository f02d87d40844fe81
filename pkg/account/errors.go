package account

import (
	"errors"
	"fmt"
)

// Failure classes. Every error returned by this package matches exactly one
// of them under errors.Is.
var (
	// ErrDiscovery means an endpoint could not be discovered: the index was
	// unreachable in status terms, malformed, or lacked a control.
	ErrDiscovery = errors.New("account: discovery failed")

	// ErrAuth means the server rejected a handshake step or returned an
	// incomplete response, or a step could not be prepared locally (request
	// encoding, proof key generation).
	ErrAuth = errors.New("account: authentication failed")

	// ErrTransport means the request never produced an HTTP response.
	ErrTransport = errors.New("account: transport failure")

	// ErrMissingControl matches a MissingControlError.
	ErrMissingControl = errors.New("account: missing control")
)

// Handshake steps, used in error details and logs.
const (
	StepIndex             = "index"
	StepAccountCreate     = "account.create"
	StepPasswordCreate    = "password.create"
	StepLogin             = "password.login"
	StepClientCredentials = "clientCredentials"
	StepToken             = "token"
	StepTokenDiscovery    = "token.discovery"
)

// MissingControlError reports a control absent from the account index.
type MissingControlError struct {
	Control string
}

func (e *MissingControlError) Error() string {
	return fmt.Sprintf("account: control %q not present in index", e.Control)
}

// Is matches both ErrMissingControl and the ErrDiscovery class.
func (e *MissingControlError) Is(target error) bool {
	return target == ErrMissingControl || target == ErrDiscovery
}

// StatusError reports an unexpected HTTP status from a handshake step.
type StatusError struct {
	Step       string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("account: %s returned status %d", e.Step, e.StatusCode)
	}
	return fmt.Sprintf("account: %s returned status %d: %s", e.Step, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// MissingFieldError reports a successful response lacking a required field.
type MissingFieldError struct {
	Step  string
	Field string
	kind  error
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("account: %s response missing %q", e.Step, e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return e.kind
}

func statusError(step string, code int, body []byte, kind error) *StatusError {
	return &StatusError{Step: step, StatusCode: code, Body: truncate(string(body), 512), kind: kind}
}

func missingField(step, field string) *MissingFieldError {
	kind := ErrAuth
	if step == StepTokenDiscovery || step == StepIndex {
		kind = ErrDiscovery
	}
	return &MissingFieldError{Step: step, Field: field, kind: kind}
}

func transportError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, step, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
