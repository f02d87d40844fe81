package notes

import (
	"errors"
	"fmt"

	"github.com/gobeyondidentity/podnotes/pkg/dpop"
)

var (
	// ErrTransport means the request never produced an HTTP response.
	ErrTransport = errors.New("notes: transport failure")

	// ErrRDF means a document could not be encoded or parsed as Turtle.
	ErrRDF = errors.New("notes: rdf failure")

	// ErrStatus matches a StatusError.
	ErrStatus = errors.New("notes: unexpected status")

	// ErrInvalidNote means the note cannot be addressed or written.
	ErrInvalidNote = errors.New("notes: invalid note")

	// ErrNoToken means the operation was called without a usable access token.
	ErrNoToken = errors.New("notes: no access token")
)

// StatusError reports a response outside the expected status set. Auth is
// set when the pod rejected the DPoP credentials.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Auth       *dpop.AuthError
}

func (e *StatusError) Error() string {
	if e.Auth != nil {
		return fmt.Sprintf("notes: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Auth.Code)
	}
	return fmt.Sprintf("notes: %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}
