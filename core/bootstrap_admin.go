package core

import (
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// AdminID is the fixed id of the single admin credential.
const AdminID = "1"

const maxBcryptPasswordBytes = 72

// Credential is the stored admin identity. It is built once and never mutated.
type Credential struct {
	ID           string
	Username     string
	PasswordHash string
}

// BootstrapAdmin hashes the configured admin password. It runs once at process
// start so no request ever sees an uninitialized credential.
func BootstrapAdmin(cfg Config, logger *slog.Logger) (Credential, error) {
	username := firstNonEmpty(cfg.AdminUsername, "admin")
	password := firstNonEmpty(cfg.AdminPassword, "admin123")
	if len(password) > maxBcryptPasswordBytes {
		return Credential{}, errors.New("admin password exceeds 72 bytes")
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return Credential{}, err
	}

	if logger != nil {
		logger.Info("admin credential ready", "username", username)
	}
	return Credential{ID: AdminID, Username: username, PasswordHash: string(hash)}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
