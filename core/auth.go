package core

import "errors"

// User is the public view of an authenticated principal.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthService defines authentication behaviour.
type AuthService interface {
	Authenticate(username, password string) (User, error)
}

// TokenVerifier turns a raw bearer token into the user it was issued for.
type TokenVerifier interface {
	ParseToken(raw string) (*TokenClaims, error)
	VerifyClaims(claims TokenClaims) (User, bool)
}
