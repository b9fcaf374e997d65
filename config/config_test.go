package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANONYMOUS_DONOR_USERID", "")
	t.Setenv("BCRYPT_ROUNDS", "")
	t.Setenv("S3_BUCKET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.Donations.AnonymousDonorID)
	assert.Equal(t, 10, cfg.Passwords.BcryptRounds)
	assert.Empty(t, cfg.AWS.PhotosBucket)
}

func TestLoadAnonymousDonor(t *testing.T) {
	t.Setenv("ANONYMOUS_DONOR_USERID", "42")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Donations.AnonymousDonorID)

	t.Setenv("ANONYMOUS_DONOR_USERID", "abc")
	_, err = Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())

	c.URL = "postgres://x"
	assert.Equal(t, "postgres://x", c.DSN())
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("SESSION_SECURE_COOKIE", "true")
	assert.True(t, getEnvBool("SESSION_SECURE_COOKIE", false))
	t.Setenv("SESSION_SECURE_COOKIE", "nope")
	assert.False(t, getEnvBool("SESSION_SECURE_COOKIE", false))
}

func TestLocation(t *testing.T) {
	c := &Config{TimeZone: "America/Denver"}
	assert.Equal(t, "America/Denver", c.Location().String())

	c.TimeZone = "Mars/Olympus"
	assert.Equal(t, time.UTC, c.Location())
}

func TestRateLimitDefaults(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "")
	t.Setenv("RATE_LIMIT_WINDOW_SEC", "30")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Server.RateBurst)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("BCRYPT_ROUNDS", "2")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BcryptRounds")

	t.Setenv("BCRYPT_ROUNDS", "")
	t.Setenv("EMAIL_FROM_ADDRESS", "not-an-address")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FromAddress")
}
