package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"natours/internal/auth"
	"natours/internal/model"
	"natours/internal/password"
)

const (
	// EnvProduction enables secure cookies and JSON logs.
	EnvProduction = "production"
	// EnvDevelopment is the default environment.
	EnvDevelopment = "development"

	devJWTSecret     = "change-me"
	minProdSecretLen = 32
)

// Config holds application level configuration loaded from environment variables.
// It is built once at startup and never mutated afterwards.
type Config struct {
	Env        string
	ServerPort string
	PublicURL  string

	DBDriver    string
	DatabaseDSN string

	RedisAddr string
	RedisDB   int
	RedisPass string

	JWTSecret       string
	JWTExpiresIn    time.Duration
	CookieExpiresIn time.Duration

	ResetWindow             time.Duration
	ResetRequestLimit       int
	RevealUnknownResetEmail bool
	PasswordChangeSkew      time.Duration

	HashAlgorithm     string
	BcryptCost        int
	HashWorkers       int
	PasswordMinLength int
	SignupRoles       []model.Role

	RateLimitMax    int
	RateLimitWindow time.Duration

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	SwaggerHost string
}

// Load builds Config from the environment, overlaid on optional dotenv files,
// with sensible defaults.
func Load() (*Config, error) {
	// Missing dotenv files are fine; real environment variables win.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	roles, err := parseRoles(getEnvList("SIGNUP_ROLES", []string{string(model.RoleUser)}))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:        getEnv("APP_ENV", EnvDevelopment),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		PublicURL:  strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_URL")), "/"),

		DBDriver:    getEnv("DB_DRIVER", "mysql"),
		DatabaseDSN: getEnv("DATABASE_DSN", "user:password@tcp(localhost:3306)/natours?charset=utf8mb4&parseTime=True&loc=UTC"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		RedisPass: os.Getenv("REDIS_PASSWORD"),

		JWTSecret:       getEnv("JWT_SECRET", devJWTSecret),
		JWTExpiresIn:    getEnvDuration("JWT_EXPIRES_IN", 90*24*time.Hour),
		CookieExpiresIn: getEnvDuration("JWT_COOKIE_EXPIRES_IN", 90*24*time.Hour),

		ResetWindow:             getEnvDuration("RESET_WINDOW", 10*time.Minute),
		ResetRequestLimit:       getEnvInt("RESET_REQUEST_LIMIT", 3),
		RevealUnknownResetEmail: getEnvBool("RESET_REVEAL_UNKNOWN_EMAIL", false),
		PasswordChangeSkew:      getEnvDuration("PASSWORD_CHANGE_SKEW", time.Second),

		HashAlgorithm:     getEnv("HASH_ALGORITHM", password.AlgorithmBcrypt),
		BcryptCost:        getEnvInt("BCRYPT_COST", 12),
		HashWorkers:       getEnvInt("HASH_WORKERS", runtime.NumCPU()),
		PasswordMinLength: getEnvInt("PASSWORD_MIN_LENGTH", 8),
		SignupRoles:       roles,

		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: getEnvInt("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASSWORD"),
		MailFrom: getEnv("MAIL_FROM", "Natours <hello@natours.io>"),

		SwaggerHost: os.Getenv("SWAGGER_HOST"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the auth subsystem cannot run safely with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if c.JWTSecret == devJWTSecret {
			return errors.New("JWT_SECRET must be set in production")
		}
		if len(c.JWTSecret) < minProdSecretLen {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProdSecretLen)
		}
	}
	if c.IsProduction() && c.PublicURL == "" {
		// Links in emails would otherwise be built from the client's Host header.
		return errors.New("PUBLIC_URL must be set in production")
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("PUBLIC_URL must be an absolute http(s) URL, got %q", c.PublicURL)
		}
	}
	if c.JWTExpiresIn <= 0 || c.CookieExpiresIn <= 0 || c.ResetWindow <= 0 {
		return errors.New("token, cookie and reset durations must be positive")
	}
	if c.PasswordChangeSkew < 0 || c.PasswordChangeSkew > time.Minute {
		return errors.New("PASSWORD_CHANGE_SKEW must be between 0 and 1m")
	}
	if c.HashAlgorithm == password.AlgorithmBcrypt && (c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.HashWorkers < 1 {
		return errors.New("HASH_WORKERS must be at least 1")
	}
	if c.PasswordMinLength < 1 {
		return errors.New("PASSWORD_MIN_LENGTH must be at least 1")
	}
	switch c.DBDriver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

// IsProduction reports whether the service runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Tokens returns the session token settings.
func (c *Config) Tokens() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: []byte(c.JWTSecret),
		TTL:    c.JWTExpiresIn,
	}
}

// Hashing returns the password hasher settings.
func (c *Config) Hashing() password.Config {
	return password.Config{
		Algorithm:  c.HashAlgorithm,
		BcryptCost: c.BcryptCost,
		Argon2:     password.DefaultArgon2Params(),
		Workers:    c.HashWorkers,
	}
}

func parseRoles(values []string) ([]model.Role, error) {
	roles := make([]model.Role, 0, len(values))
	for _, v := range values {
		role, err := model.ParseRole(v)
		if err != nil {
			return nil, fmt.Errorf("SIGNUP_ROLES: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
