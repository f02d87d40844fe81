package session

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput matches a ValidationError.
var ErrInvalidInput = errors.New("session: invalid input")

var noteIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// NoteInput is the caller-supplied part of a note. Empty Subject, Date and
// ID are filled with defaults.
type NoteInput struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,noteid"`
	Title   string `json:"title" yaml:"title" validate:"required,max=100,notblank"`
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty" validate:"max=100"`
	Content string `json:"content" yaml:"content" validate:"required,notblank"`
	Date    string `json:"date,omitempty" yaml:"date,omitempty"`
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "session: invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("noteid", func(fl validator.FieldLevel) bool {
		return ValidID(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidID reports whether id can address a note document.
func ValidID(id string) bool {
	return noteIDPattern.MatchString(id)
}

func (s *Session) validateInput(in NoteInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func validateID(id string) error {
	if ValidID(id) {
		return nil
	}
	return &ValidationError{Fields: []FieldError{{Field: "id", Message: "must be 1-128 letters, digits, '.', '_' or '-'"}}}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "noteid":
		return "must be 1-128 letters, digits, '.', '_' or '-'"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
