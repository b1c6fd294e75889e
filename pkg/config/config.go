package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Credential store backends
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreVault  = "vault"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		GRPCPort string
		Env      string
		Timeout  time.Duration
		BaseURL  string
	}

	// Database configuration
	Database struct {
		Driver     string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SSLMode    string
		MaxConns   int
		Timeout    time.Duration
		SQLitePath string
	}

	// Redis configuration
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Vault configuration
	Vault struct {
		Address   string
		Token     string
		Namespace string
		Mount     string
		Path      string
	}

	// Gateway is the OpenAI-compatible chat completion endpoint
	Gateway struct {
		BaseURL          string
		Model            string
		SiteURL          string
		Title            string
		Timeout          time.Duration
		ProbeTimeout     time.Duration
		FailureThreshold uint
		RetryTimeout     time.Duration
	}

	// Credential storage
	Credential struct {
		Store         string
		EncryptionKey string
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	// Observability settings
	Observability struct {
		ServiceName    string
		TracingEnabled bool
		MetricsEnabled bool
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		instance = Load()
	})

	return instance
}

// Load reads a fresh Config from the environment without touching the
// singleton.
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "9091")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	cfg.Database.Driver = strings.ToLower(getEnvString("DB_DRIVER", DriverSQLite))
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "characterchat")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)
	cfg.Database.SQLitePath = getEnvString("SQLITE_PATH", "characterchat.db")

	cfg.Redis.Addr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Vault.Address = getEnvString("VAULT_ADDR", "http://localhost:8200")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.Mount = getEnvString("VAULT_MOUNT", "secret")
	cfg.Vault.Path = getEnvString("VAULT_PATH", "characterchat")

	cfg.Gateway.BaseURL = strings.TrimRight(getEnvString("GATEWAY_BASE_URL", "https://openrouter.ai/api/v1"), "/")
	cfg.Gateway.Model = getEnvString("GATEWAY_MODEL", "google/gemini-3-flash-preview")
	cfg.Gateway.SiteURL = getEnvString("GATEWAY_SITE_URL", cfg.Server.BaseURL)
	cfg.Gateway.Title = getEnvString("GATEWAY_TITLE", "CharacterChat")
	cfg.Gateway.Timeout = getEnvDuration("GATEWAY_TIMEOUT", 0)
	cfg.Gateway.ProbeTimeout = getEnvDuration("GATEWAY_PROBE_TIMEOUT", 15*time.Second)
	cfg.Gateway.FailureThreshold = uint(getEnvInt("GATEWAY_FAILURE_THRESHOLD", 5))
	cfg.Gateway.RetryTimeout = getEnvDuration("GATEWAY_RETRY_TIMEOUT", 30*time.Second)

	cfg.Credential.Store = strings.ToLower(getEnvString("CREDENTIAL_STORE", StoreSQLite))
	cfg.Credential.EncryptionKey = getEnvString("CREDENTIAL_ENCRYPTION_KEY", "")

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 10<<20) // 10MB

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "characterchat")
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)

	return cfg
}

// Validate rejects combinations the container cannot build.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Credential.Store {
	case StoreSQLite:
		if c.Database.Driver != DriverSQLite {
			return fmt.Errorf("CREDENTIAL_STORE=sqlite requires DB_DRIVER=sqlite")
		}
	case StoreRedis, StoreVault:
	default:
		return fmt.Errorf("unsupported CREDENTIAL_STORE %q", c.Credential.Store)
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL must not be empty")
	}
	if c.Gateway.Timeout < 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must not be negative")
	}
	return nil
}

// IsDevelopment reports whether the app runs in the development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
