package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or pin")
	ErrInvalidPIN         = errors.New("pin must be exactly 6 digits")
)

// SuperAdmin verifies the configured super-admin credentials.
type SuperAdmin struct {
	username string
	pinHash  []byte
}

func NewSuperAdmin(username, pinHash string) *SuperAdmin {
	return &SuperAdmin{username: username, pinHash: []byte(pinHash)}
}

// Verify checks username and PIN. An unconfigured super admin rejects
// every login.
func (a *SuperAdmin) Verify(username, pin string) error {
	if a.username == "" || len(a.pinHash) == 0 {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	if err := bcrypt.CompareHashAndPassword(a.pinHash, []byte(pin)); err != nil || !userOK {
		return ErrInvalidCredentials
	}
	return nil
}

func (a *SuperAdmin) Username() string { return a.username }

// HashPIN returns the bcrypt hash stored as SUPER_ADMIN_PIN_HASH.
func HashPIN(pin string) (string, error) {
	if err := ValidatePIN(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

func ValidatePIN(pin string) error {
	if len(pin) != 6 {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}
