package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds every setting the service reads from the environment.
type Config struct {
	Env        string `env:"APP_ENV" envDefault:"development"`
	ServerPort string `env:"SERVER_PORT"`
	PublicURL  string `env:"PUBLIC_URL" envDefault:"http://localhost:3000"`

	// TLS
	EnableTLS     bool   `env:"ENABLE_TLS" envDefault:"true"`
	TLSCertPath   string `env:"TLS_CERT_PATH"`
	TLSKeyPath    string `env:"TLS_KEY_PATH"`
	TLSCertPEM    string `env:"TLS_CERT"`
	TLSKeyPEM     string `env:"TLS_KEY"`
	TLSSelfSigned bool   `env:"TLS_SELF_SIGNED" envDefault:"true"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Database
	DatabaseURL        string        `env:"DATABASE_URL"`
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	MigrateOnStart     bool          `env:"APPLY_SCHEMA_ON_START" envDefault:"true"`
	RedisURL           string        `env:"REDIS_URL"`
	StorageRoot        string        `env:"STORAGE_ROOT" envDefault:"./data/uploads"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES" envDefault:"1073741824"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCreds     bool          `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`

	// Auth
	JWTSecret      string        `env:"JWT_SECRET_KEY"`
	JWTIssuer      string        `env:"JWT_ISSUER" envDefault:"neural-salvage"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	AdminEmails    []string      `env:"ADMIN_EMAILS" envSeparator:","`

	// Rate limiting
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"30"`

	// Beta access
	BetaAllowlist    []string `env:"BETA_ALLOWLIST" envSeparator:","`
	BetaOpenFeatures []string `env:"BETA_OPEN_FEATURES" envSeparator:","`

	// Email
	SendGridAPIKey      string `env:"SENDGRID_API_KEY"`
	SendGridSenderEmail string `env:"SENDGRID_SENDER_EMAIL"`
	SendGridSenderName  string `env:"SENDGRID_SENDER_NAME" envDefault:"Neural Salvage"`

	// AI
	AIProvider       string `env:"AI_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIModel      string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	EmbeddingDim     int    `env:"EMBEDDING_DIM" envDefault:"1536"`
	DaytonaAPIURL    string `env:"DAYTONA_API_URL" envDefault:"https://app.daytona.io/api"`
	DaytonaAPIKey    string `env:"DAYTONA_API_KEY"`
	QdrantURL        string `env:"QDRANT_URL"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"media_assets"`

	// Payments
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripeProPriceID    string `env:"STRIPE_PRO_PRICE_ID"`
	PlatformFeeBps      int64  `env:"PLATFORM_FEE_BPS" envDefault:"1000"`

	// Arweave
	ArweaveGateway    string `env:"ARWEAVE_GATEWAY" envDefault:"https://arweave.net"`
	ArweaveWalletPath string `env:"ARWEAVE_WALLET_PATH"`
	ArweaveWalletJWK  string `env:"ARWEAVE_WALLET_JWK"`

	// Polygon
	PolygonRPCURL     string        `env:"POLYGON_RPC_URL"`
	PolygonChainID    int64         `env:"POLYGON_CHAIN_ID" envDefault:"137"`
	PolygonPrivateKey string        `env:"POLYGON_PRIVATE_KEY"`
	PolygonContract   string        `env:"POLYGON_NFT_CONTRACT"`
	OpenSeaBaseURL    string        `env:"OPENSEA_BASE_URL" envDefault:"https://opensea.io/assets/matic"`
	MintMessageMaxAge time.Duration `env:"MINT_MESSAGE_MAX_AGE" envDefault:"15m"`
}

// Load reads .env (when present) and parses the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.IsProduction() {
		cfg.EnableTLS = true
	}
	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)
	cfg.AdminEmails = lowerAll(cfg.AdminEmails)
	cfg.BetaAllowlist = lowerAll(cfg.BetaAllowlist)
	cfg.BetaOpenFeatures = trimAll(cfg.BetaOpenFeatures)
	return cfg, nil
}

// Validate checks the settings the HTTP server cannot run without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET_KEY is required")
	}
	if c.IsProduction() && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return errors.New("TLS_CERT_PATH and TLS_KEY_PATH are required in production")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be between 0 and 10000, got %d", c.PlatformFeeBps)
	}
	switch c.AIProvider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}
	return nil
}

// Port falls back to 8443 with TLS and 8080 without.
func (c *Config) Port() string {
	if c.ServerPort != "" {
		return c.ServerPort
	}
	if c.EnableTLS {
		return "8443"
	}
	return "8080"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Origins returns the CORS origins, defaulting to a wildcard.
func (c *Config) Origins() []string {
	if len(c.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.CORSAllowedOrigins
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := trimAll(in)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}
