package clierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/gobeyondidentity/podnotes/pkg/account"
	"github.com/gobeyondidentity/podnotes/pkg/notes"
	"github.com/gobeyondidentity/podnotes/pkg/session"
)

// Exit codes.
const (
	ExitSuccess    = 0 // Operation completed successfully
	ExitGeneral    = 1 // Unknown/unhandled error
	ExitAuth       = 2 // Login, credential or token failure
	ExitInput      = 3 // Rejected note input or configuration
	ExitNotFound   = 4 // Note doesn't exist
	ExitConnection = 5 // Pod unreachable
)

// Error codes for programmatic error handling.
const (
	CodeAuthFailed       = "AUTH_FAILED"
	CodeDiscoveryFailed  = "DISCOVERY_FAILED"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInvalidConfig    = "INVALID_CONFIG"
	CodeNoteNotFound     = "NOTE_NOT_FOUND"
	CodePodRejected      = "POD_REJECTED"
	CodeMalformedNote    = "MALFORMED_NOTE"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// CLIError represents a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code" yaml:"code"`
	Message   string `json:"message" yaml:"message"`
	Hint      string `json:"hint,omitempty" yaml:"hint,omitempty"`
	Retryable bool   `json:"retryable" yaml:"retryable"`
	ExitCode  int    `json:"-" yaml:"-"` // Not serialized, used for os.Exit
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// AuthFailed reports a rejected handshake step.
func AuthFailed(detail string) *CLIError {
	return &CLIError{
		Code:     CodeAuthFailed,
		Message:  fmt.Sprintf("pod authentication failed: %s", detail),
		Hint:     "Check account.username and account.password, or run 'podnotes account register'",
		ExitCode: ExitAuth,
	}
}

// DiscoveryFailed reports an account index or token endpoint that could
// not be discovered.
func DiscoveryFailed(detail string) *CLIError {
	return &CLIError{
		Code:     CodeDiscoveryFailed,
		Message:  fmt.Sprintf("endpoint discovery failed: %s", detail),
		Hint:     "Verify account.url points at the server's /.account/ index, or set pod.token_url",
		ExitCode: ExitAuth,
	}
}

// InvalidInput reports a note rejected before any request was made.
func InvalidInput(fields []session.FieldError) *CLIError {
	msg := "invalid note"
	for i, f := range fields {
		sep := ", "
		if i == 0 {
			sep = ": "
		}
		msg += sep + f.Field + " " + f.Message
	}
	return &CLIError{
		Code:     CodeInvalidInput,
		Message:  msg,
		ExitCode: ExitInput,
	}
}

// InvalidConfig reports configuration that failed to load or validate.
func InvalidConfig(err error) *CLIError {
	return &CLIError{
		Code:     CodeInvalidConfig,
		Message:  err.Error(),
		Hint:     "Set the missing keys in podnotes.yaml or as PODNOTES_* environment variables",
		ExitCode: ExitInput,
	}
}

// NoteNotFound reports a missing note.
func NoteNotFound(url string) *CLIError {
	return &CLIError{
		Code:     CodeNoteNotFound,
		Message:  fmt.Sprintf("note '%s' not found", url),
		Hint:     "Check note ids with 'podnotes note list'",
		ExitCode: ExitNotFound,
	}
}

// PodRejected reports an unexpected status from a pod resource.
func PodRejected(method, url string, code int) *CLIError {
	return &CLIError{
		Code:      CodePodRejected,
		Message:   fmt.Sprintf("pod answered %s %s with status %d", method, url, code),
		Retryable: code >= 500,
		ExitCode:  ExitGeneral,
	}
}

// MalformedNote reports a note document that could not be parsed.
func MalformedNote(detail string) *CLIError {
	return &CLIError{
		Code:     CodeMalformedNote,
		Message:  fmt.Sprintf("malformed note document: %s", detail),
		ExitCode: ExitGeneral,
	}
}

// ConnectionFailed reports a request that never got an HTTP response.
func ConnectionFailed(detail string) *CLIError {
	return &CLIError{
		Code:      CodeConnectionFailed,
		Message:   fmt.Sprintf("failed to reach the pod: %s", detail),
		Hint:      "Check network connectivity and pod.url",
		Retryable: true,
		ExitCode:  ExitConnection,
	}
}

// InternalError creates an error for unexpected internal errors.
func InternalError(err error) *CLIError {
	msg := "an unexpected internal error occurred"
	if err != nil {
		msg = fmt.Sprintf("internal error: %s", err.Error())
	}
	return &CLIError{
		Code:     CodeInternalError,
		Message:  msg,
		ExitCode: ExitGeneral,
	}
}

// FromError classifies err. A *CLIError is returned unchanged.
func FromError(err error) *CLIError {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	var verr *session.ValidationError
	if errors.As(err, &verr) {
		return InvalidInput(verr.Fields)
	}

	var statusErr *notes.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound:
			return NoteNotFound(statusErr.URL)
		case http.StatusUnauthorized, http.StatusForbidden:
			if statusErr.Auth != nil {
				return AuthFailed(statusErr.Error() + ": " + statusErr.Auth.Hint())
			}
			return AuthFailed(statusErr.Error())
		}
		return PodRejected(statusErr.Method, statusErr.URL, statusErr.StatusCode)
	}

	switch {
	case errors.Is(err, account.ErrDiscovery):
		return DiscoveryFailed(err.Error())
	case errors.Is(err, account.ErrAuth), errors.Is(err, notes.ErrNoToken):
		return AuthFailed(err.Error())
	case errors.Is(err, account.ErrTransport), errors.Is(err, notes.ErrTransport):
		return ConnectionFailed(err.Error())
	case errors.Is(err, notes.ErrRDF):
		return MalformedNote(err.Error())
	}
	return InternalError(err)
}

// FormatError returns the error formatted for the given output format:
// "json", "yaml", or anything else for human-readable text.
func FormatError(err *CLIError, outputFormat string) string {
	switch outputFormat {
	case "json":
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			return fmt.Sprintf(`{"code":%q,"message":%q}`, err.Code, err.Message)
		}
		return string(data)
	case "yaml":
		data, yamlErr := yaml.Marshal(err)
		if yamlErr != nil {
			return fmt.Sprintf("code: %s\nmessage: %q", err.Code, err.Message)
		}
		return string(data)
	}

	output := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		output += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return output
}

// PrintError writes the formatted error to w.
func PrintError(w io.Writer, err *CLIError, outputFormat string) {
	fmt.Fprintln(w, FormatError(err, outputFormat))
}
