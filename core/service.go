package core

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

// AdminAuthService authenticates against the single admin credential and
// issues stateless HS256 tokens.
type AdminAuthService struct {
	cred   Credential
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAdminAuthService(cred Credential, secret string, ttl time.Duration) *AdminAuthService {
	return &AdminAuthService{
		cred:   cred,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// ValidateCredentials never calls bcrypt for an unknown username. Any bcrypt
// error, including a fault in the comparison itself, counts as no match.
func (s *AdminAuthService) ValidateCredentials(username, password string) (User, bool) {
	if strings.TrimSpace(username) == "" || username != s.cred.Username {
		return User{}, false
	}
	if bcrypt.CompareHashAndPassword([]byte(s.cred.PasswordHash), []byte(password)) != nil {
		return User{}, false
	}
	return s.publicUser(), true
}

// Authenticate implements AuthService.
func (s *AdminAuthService) Authenticate(username, password string) (User, error) {
	u, ok := s.ValidateCredentials(username, password)
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Login checks the credentials and signs a token for the user.
func (s *AdminAuthService) Login(username, password string) (LoginResult, error) {
	u, err := s.Authenticate(username, password)
	if err != nil {
		return LoginResult{}, err
	}
	token, expiresAt, err := generateToken(u, s.secret, s.now(), s.ttl)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        u,
	}, nil
}

// ParseToken checks signature, algorithm and expiry.
func (s *AdminAuthService) ParseToken(raw string) (*TokenClaims, error) {
	return parseToken(raw, s.secret, s.now)
}

// VerifyClaims accepts a payload only while its username is the admin's.
func (s *AdminAuthService) VerifyClaims(claims TokenClaims) (User, bool) {
	if claims.Username == "" || claims.Username != s.cred.Username {
		return User{}, false
	}
	return s.publicUser(), true
}

func (s *AdminAuthService) publicUser() User {
	return User{ID: s.cred.ID, Username: s.cred.Username}
}

var (
	_ AuthService   = (*AdminAuthService)(nil)
	_ TokenVerifier = (*AdminAuthService)(nil)
)
