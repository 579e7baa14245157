package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config es la configuración completa del servicio, cargada desde variables de entorno.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Auth         AuthConfig
	OAuth        OAuthConfig
	Verification VerificationConfig
	Notifx       NotifxConfig
	Jobx         JobxConfig
}

// Load reads the whole configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Server:       loadServerConfig(),
		Database:     loadDatabaseConfig(),
		Redis:        loadRedisConfig(),
		Auth:         loadAuthConfig(),
		OAuth:        loadOAuthConfig(),
		Verification: loadVerificationConfig(),
		Notifx:       loadNotifxConfig(),
		Jobx:         loadJobxConfig(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.AccessTokenSecret == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("ACCESS_TOKEN_SECRET is required outside development")
		}
		c.Auth.AccessTokenSecret = "development-only-access-token-secret"
	}
	if len(c.Auth.AccessTokenSecret) < 32 && !c.IsDevelopment() {
		return fmt.Errorf("ACCESS_TOKEN_SECRET must be at least 32 bytes")
	}
	if k := c.Auth.AccessTokenEncryptionKey; k != "" && len(k) != 32 {
		return fmt.Errorf("ACCESS_TOKEN_ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(k))
	}
	switch c.Verification.EmailDispatch {
	case DispatchSync, DispatchQueue:
	default:
		return fmt.Errorf("VERIFICATION_EMAIL_DISPATCH must be %q or %q", DispatchSync, DispatchQueue)
	}
	return c.Notifx.validate()
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// ============================================================================
// Server
// ============================================================================

type ServerConfig struct {
	Port        string
	Environment string
	CORSOrigins []string
	// PublicURL is the externally reachable base URL of this service (no trailing slash).
	PublicURL string
}

func loadServerConfig() ServerConfig {
	port := getEnv("PORT", "8080")
	return ServerConfig{
		Port:        port,
		Environment: getEnv("APP_ENV", "development"),
		CORSOrigins: getEnvStringSlice("CORS_ORIGINS", []string{"*"}),
		PublicURL:   strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:"+port), "/"),
	}
}

// ============================================================================
// Database
// ============================================================================

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Name:            getEnv("DB_NAME", "gatekeeper"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		MigrateOnStart:  getEnvBool("DB_MIGRATE_ON_START", true),
	}
}

// ============================================================================
// Redis
// ============================================================================

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvInt("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

// ============================================================================
// Auth
// ============================================================================

type AuthConfig struct {
	AccessTokenSecret string
	// AccessTokenEncryptionKey enables JWE wrapping of access tokens when set (32 bytes).
	AccessTokenEncryptionKey string
	AccessTokenTTL           time.Duration
	RefreshTokenTTL          time.Duration
	Issuer                   string
	BcryptCost               int
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:        getEnv("ACCESS_TOKEN_SECRET", ""),
		AccessTokenEncryptionKey: getEnv("ACCESS_TOKEN_ENCRYPTION_KEY", ""),
		AccessTokenTTL:           getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:          getEnvDuration("REFRESH_TOKEN_TTL", 365*24*time.Hour),
		Issuer:                   getEnv("ACCESS_TOKEN_ISSUER", "gatekeeper"),
		BcryptCost:               getEnvInt("BCRYPT_COST", 10),
	}
}

// ============================================================================
// OAuth
// ============================================================================

// SharedCredentials are the service's own app credentials for one provider type.
type SharedCredentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

type OAuthConfig struct {
	OuterInfoTTL         time.Duration
	AuthorizationCodeTTL time.Duration
	CookieMaxAge         time.Duration
	// CallbackBaseURL is where providers redirect back to; the provider id is appended.
	CallbackBaseURL string
	// Shared is keyed by provider type (google, github, ...).
	Shared map[string]SharedCredentials
}

func loadOAuthConfig() OAuthConfig {
	base := strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:"+getEnv("PORT", "8080")), "/")

	shared := make(map[string]SharedCredentials)
	for _, p := range []string{"google", "github", "facebook", "microsoft", "spotify"} {
		prefix := strings.ToUpper(p)
		creds := SharedCredentials{
			ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
			ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
			TenantID:     getEnv(prefix+"_TENANT_ID", ""),
		}
		if creds.ClientID != "" {
			shared[p] = creds
		}
	}

	return OAuthConfig{
		OuterInfoTTL:         getEnvDuration("OAUTH_OUTER_INFO_TTL", 10*time.Minute),
		AuthorizationCodeTTL: getEnvDuration("OAUTH_AUTHORIZATION_CODE_TTL", 10*time.Minute),
		CookieMaxAge:         getEnvDuration("OAUTH_COOKIE_MAX_AGE", 10*time.Minute),
		CallbackBaseURL:      strings.TrimRight(getEnv("OAUTH_CALLBACK_BASE_URL", base+"/api/v1/auth/oauth/callback"), "/"),
		Shared:               shared,
	}
}

// ============================================================================
// Verification
// ============================================================================

const (
	DispatchSync  = "sync"
	DispatchQueue = "queue"
)

type VerificationConfig struct {
	DefaultTTL time.Duration

	// EmailDispatch: "sync" sends from the request, "queue" hands the email to jobx.
	EmailDispatch string

	// Store selects the code repository: "postgres" or "redis".
	Store string

	// InternalProjectID is the project whose users manage other projects.
	InternalProjectID string

	// TransferConfirmURL is the dashboard page that confirms project transfers.
	TransferConfirmURL string
}

func loadVerificationConfig() VerificationConfig {
	return VerificationConfig{
		DefaultTTL:         getEnvDuration("VERIFICATION_CODE_TTL", 7*24*time.Hour),
		EmailDispatch:      getEnv("VERIFICATION_EMAIL_DISPATCH", DispatchSync),
		Store:              getEnv("VERIFICATION_STORE", "postgres"),
		InternalProjectID:  getEnv("INTERNAL_PROJECT_ID", "internal"),
		TransferConfirmURL: getEnv("PROJECT_TRANSFER_CONFIRM_URL", "http://localhost:8101/integrations/neon/projects/transfer/confirm"),
	}
}

// ============================================================================
// Helpers
// ============================================================================

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
