package utils

import (
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/intex-outreach/backend/internal/apperr"
)

const (
	// MinCost and MaxCost bound the configurable bcrypt work factor.
	MinCost = 4
	MaxCost = 15
	// DefaultCost is used when the configured cost is out of range.
	DefaultCost = 10
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

var bcryptPrefix = regexp.MustCompile(`^\$2[aby]\$\d{2}\$`)

// PasswordHasher hashes and verifies credentials with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using cost, or DefaultCost when cost is
// outside [MinCost, MaxCost].
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < MinCost || cost > MaxCost {
		cost = DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Cost returns the work factor in use.
func (h *PasswordHasher) Cost() int { return h.cost }

// HashPassword hashes the trimmed password. Empty input and input longer than
// MaxPasswordBytes are rejected as validation errors.
func (h *PasswordHasher) HashPassword(password string) (string, error) {
	p := strings.TrimSpace(password)
	if p == "" {
		return "", apperr.ErrEmptyPassword
	}
	if len(p) > MaxPasswordBytes {
		return "", apperr.ErrPasswordTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(p), h.cost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password. Malformed input
// of any kind is a mismatch.
func (h *PasswordHasher) CheckPassword(plain, hashed string) bool {
	p := strings.TrimSpace(plain)
	if p == "" || hashed == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(p))
	return err == nil
}

// IsBcryptHash reports whether s already carries a bcrypt prefix.
func IsBcryptHash(s string) bool {
	return bcryptPrefix.MatchString(s)
}
