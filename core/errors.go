package core

import (
	"errors"
	"strings"
)

var (
	// ErrRecadoNotFound is returned by the repository when no recado has the given id.
	ErrRecadoNotFound = errors.New("recado not found")

	// ErrMissingToken is returned when a protected request carries no session token.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken covers malformed tokens, bad signatures and unknown subjects.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the token signature is fine but exp has passed.
	ErrTokenExpired = errors.New("token expired")
)

// FieldError is a single violated constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found by Schema.Validate.
// It is never returned with an empty Errors slice.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Message)
	}
	return strings.Join(msgs, ", ")
}

// ConfigError marks a startup-time environment validation failure.
type ConfigError struct {
	Validation *ValidationError
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Validation.Error()
}

func (e *ConfigError) Unwrap() error { return e.Validation }

// isAuthError reports whether err belongs to the 401 family.
func isAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired)
}
