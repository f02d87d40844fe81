package dpop

import (
	"errors"
	"fmt"
)

// DPoP error codes returned by the validator and the resource middleware.
const (
	ErrCodeMissingProof     = "dpop.missing_proof"
	ErrCodeInvalidProof     = "dpop.invalid_proof"
	ErrCodeInvalidSignature = "dpop.invalid_signature"
	ErrCodeInvalidIAT       = "dpop.invalid_iat"
	ErrCodeMethodMismatch   = "dpop.method_mismatch"
	ErrCodeURIMismatch      = "dpop.uri_mismatch"
	ErrCodeReplay           = "dpop.replay"
	ErrCodeKeyMismatch      = "dpop.key_mismatch"
	ErrCodeInvalidToken     = "dpop.invalid_token"
)

// DPoPError is a proof validation failure with a stable code.
type DPoPError struct {
	Code    string
	Message string
}

func (e *DPoPError) Error() string {
	return e.Code + ": " + e.Message
}

// ErrMissingProof reports a request without a DPoP header.
func ErrMissingProof() *DPoPError {
	return &DPoPError{Code: ErrCodeMissingProof, Message: "no DPoP header in request"}
}

// ErrInvalidProof reports a malformed proof.
func ErrInvalidProof(reason string) *DPoPError {
	return &DPoPError{Code: ErrCodeInvalidProof, Message: reason}
}

// ErrInvalidSignature reports a proof whose signature does not verify
// against its embedded key.
func ErrInvalidSignature() *DPoPError {
	return &DPoPError{Code: ErrCodeInvalidSignature, Message: "signature verification failed"}
}

// ErrInvalidIAT reports a proof outside the accepted age window.
// A negative age means the proof was issued in the future.
func ErrInvalidIAT(age, maxAge int64) *DPoPError {
	return &DPoPError{
		Code:    ErrCodeInvalidIAT,
		Message: fmt.Sprintf("iat out of range: age %ds, max %ds", age, maxAge),
	}
}

// ErrIATNonPositive reports a zero or negative iat.
func ErrIATNonPositive() *DPoPError {
	return &DPoPError{Code: ErrCodeInvalidIAT, Message: "iat must be positive"}
}

// ErrMethodMismatch reports htm differing from the request method.
func ErrMethodMismatch(got, want string) *DPoPError {
	return &DPoPError{
		Code:    ErrCodeMethodMismatch,
		Message: fmt.Sprintf("htm %q does not match request method %q", got, want),
	}
}

// ErrURIMismatch reports htu differing from the request URI.
func ErrURIMismatch(got, want string) *DPoPError {
	return &DPoPError{
		Code:    ErrCodeURIMismatch,
		Message: fmt.Sprintf("htu %q does not match request URI %q", got, want),
	}
}

// ErrReplay reports a jti that was already seen.
func ErrReplay(jti string) *DPoPError {
	return &DPoPError{Code: ErrCodeReplay, Message: fmt.Sprintf("jti %q already used", truncate(jti, 64))}
}

// ErrKeyMismatch reports a proof signed by a key other than the one the
// access token is bound to.
func ErrKeyMismatch() *DPoPError {
	return &DPoPError{Code: ErrCodeKeyMismatch, Message: "proof key does not match token binding"}
}

// ErrorCode returns the code of the first DPoPError in err's chain, or "".
func ErrorCode(err error) string {
	var de *DPoPError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsDPoPError reports whether err wraps a DPoPError.
func IsDPoPError(err error) bool {
	return ErrorCode(err) != ""
}

// JTI cache failures.
var (
	ErrInvalidJTI = errors.New("dpop: empty jti")
	ErrJTITooLong = errors.New("dpop: jti longer than 1024 bytes")
	ErrCacheFull  = errors.New("dpop: jti cache at capacity")
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
