package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndLists(t *testing.T) {
	t.Setenv("APP_ENV", " Production ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ADMIN_EMAILS", "Admin@Example.com")
	t.Setenv("BETA_ALLOWLIST", " Tester@Example.com ")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Env)
	require.True(t, cfg.IsProduction())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
	require.Equal(t, []string{"admin@example.com"}, cfg.AdminEmails)
	require.Equal(t, []string{"tester@example.com"}, cfg.BetaAllowlist)
	require.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
	require.EqualValues(t, 1000, cfg.PlatformFeeBps)
}

func TestValidate(t *testing.T) {
	cfg := &Config{AccessTokenTTL: time.Hour, AIProvider: "openai"}
	require.EqualError(t, cfg.Validate(), "DATABASE_URL is required")

	cfg.DatabaseURL = "postgres://localhost/db"
	require.EqualError(t, cfg.Validate(), "JWT_SECRET_KEY is required")

	cfg.JWTSecret = "secret"
	require.NoError(t, cfg.Validate())

	cfg.PlatformFeeBps = 20000
	require.Error(t, cfg.Validate())

	cfg.PlatformFeeBps = 500
	cfg.AIProvider = "llama"
	require.Error(t, cfg.Validate())
}

func TestOrigins_Wildcard(t *testing.T) {
	require.Equal(t, []string{"*"}, (&Config{}).Origins())
}

func TestTLSSettings(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ENABLE_TLS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.EnableTLS, "production forces TLS")
	require.Equal(t, "8443", cfg.Port())

	cfg.DatabaseURL, cfg.JWTSecret = "postgres://localhost/db", "secret"
	require.EqualError(t, cfg.Validate(), "TLS_CERT_PATH and TLS_KEY_PATH are required in production")

	cfg.TLSCertPath, cfg.TLSKeyPath = "cert.pem", "key.pem"
	require.NoError(t, cfg.Validate())

	require.Equal(t, "8080", (&Config{}).Port())
	require.Equal(t, "9000", (&Config{ServerPort: "9000", EnableTLS: true}).Port())
}
