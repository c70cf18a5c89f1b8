package auth

import (
	"errors"

	"github.com/storefleet/backend/internal/infrastructure/config"
	"golang.org/x/crypto/bcrypt"
)

// Password cost for bcrypt
const bcryptCost = 12

// ErrNoCredentials is returned when neither a password hash nor a plaintext
// password is configured for the admin account.
var ErrNoCredentials = errors.New("admin credentials are not configured")

// AdminCredentials holds the single dashboard account. The account comes
// from configuration rather than a user table; there is exactly one.
type AdminCredentials struct {
	username     string
	passwordHash string
}

// NewAdminCredentials builds the admin account from configuration.
// When only a plaintext password is configured (development), it is
// hashed once here so the plaintext never lives beyond startup.
func NewAdminCredentials(cfg config.AuthConfig) (*AdminCredentials, error) {
	hash := cfg.AdminPasswordHash
	if hash == "" {
		if cfg.AdminPassword == "" {
			return nil, ErrNoCredentials
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcryptCost)
		if err != nil {
			return nil, err
		}
		hash = string(hashed)
	}

	return &AdminCredentials{
		username:     cfg.AdminUsername,
		passwordHash: hash,
	}, nil
}

// Username returns the configured admin username
func (c *AdminCredentials) Username() string {
	return c.username
}

// Verify reports whether the supplied username and password match the account
func (c *AdminCredentials) Verify(username, password string) bool {
	if username != c.username {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.passwordHash), []byte(password)) == nil
}
