package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Dashboard DashboardConfig
	AI        AIConfig
	Export    ExportConfig
	Logger    LoggerConfig
	Security  SecurityConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	CSVFile  string
	CacheDir string
}

type DashboardConfig struct {
	DefaultTopN       int
	SnapshotCacheSize int
}

type AIConfig struct {
	APIKeys        []string
	Model          string
	Timeout        time.Duration
	RPS            float64
	Burst          int
	MaxPromptChars int
	CacheSize      int
}

// Enabled reports whether at least one API key is configured.
func (c AIConfig) Enabled() bool { return len(c.APIKeys) > 0 }

type ExportConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// Enabled reports whether object storage exports are configured.
func (c ExportConfig) Enabled() bool { return c.Endpoint != "" }

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableCSRF      bool
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, is applied first without overriding variables
// that are already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			CSVFile:  getEnvString("CSV_FILE", "data.csv"),
			CacheDir: getEnvString("CACHE_DIR", ".cache"),
		},
		Dashboard: DashboardConfig{
			DefaultTopN:       getEnvInt("DASHBOARD_TOP_N", 10),
			SnapshotCacheSize: getEnvInt("DASHBOARD_SNAPSHOT_CACHE", 128),
		},
		AI: AIConfig{
			APIKeys:        apiKeys(),
			Model:          getEnvString("GEMINI_MODEL", "gemini-2.5-flash"),
			Timeout:        getEnvDuration("AI_TIMEOUT", 20*time.Second),
			RPS:            getEnvFloat("AI_RPS", 1),
			Burst:          getEnvInt("AI_BURST", 2),
			MaxPromptChars: getEnvInt("AI_MAX_PROMPT_CHARS", 4000),
			CacheSize:      getEnvInt("AI_CACHE_SIZE", 256),
		},
		Export: ExportConfig{
			Endpoint:  getEnvString("EXPORT_S3_ENDPOINT", ""),
			Region:    getEnvString("EXPORT_S3_REGION", "us-east-1"),
			AccessKey: getEnvString("EXPORT_S3_ACCESS_KEY", ""),
			SecretKey: getEnvString("EXPORT_S3_SECRET_KEY", ""),
			Bucket:    getEnvString("EXPORT_S3_BUCKET", "sales-exports"),
			UseSSL:    getEnvBool("EXPORT_S3_USE_SSL", false),
			URLExpiry: getEnvDuration("EXPORT_URL_EXPIRY", 15*time.Minute),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableCSRF:      getEnvBool("SECURITY_CSRF_ENABLED", true),
			EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", 10),
			AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Database.CSVFile == "" {
		return fmt.Errorf("CSV file path cannot be empty")
	}

	if c.Dashboard.DefaultTopN <= 0 {
		return fmt.Errorf("dashboard top N must be positive, got %d", c.Dashboard.DefaultTopN)
	}

	if c.Dashboard.SnapshotCacheSize <= 0 {
		return fmt.Errorf("dashboard snapshot cache size must be positive")
	}

	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive")
	}

	if c.AI.RPS < 0 {
		return fmt.Errorf("AI RPS cannot be negative")
	}

	if c.AI.MaxPromptChars < 512 {
		return fmt.Errorf("AI max prompt chars must be at least 512, got %d", c.AI.MaxPromptChars)
	}

	if c.Export.Enabled() && (c.Export.AccessKey == "" || c.Export.SecretKey == "") {
		return fmt.Errorf("export storage requires EXPORT_S3_ACCESS_KEY and EXPORT_S3_SECRET_KEY")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}

// apiKeys prefers the comma separated GEMINI_API_KEYS list and falls back to
// a single GEMINI_API_KEY.
func apiKeys() []string {
	if keys := getEnvStringSlice("GEMINI_API_KEYS", nil); len(keys) > 0 {
		return keys
	}
	return getEnvStringSlice("GEMINI_API_KEY", nil)
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
