package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Schema   SchemaConfig
	Connect  ConnectConfig
	Log      LogConfig
	Admin    AdminConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string
	Port            int
	MetricsPort     int // Port for Prometheus metrics HTTP server
	ShutdownTimeout time.Duration
}

// CacheConfig represents the principal cache configuration
type CacheConfig struct {
	Enabled        bool
	MaxMemoryBytes int64 // Maximum memory usage in bytes (e.g., 10485760 = 10MB)
	Metrics        bool
	TTLMinutes     int // Time-to-live for cached principals in minutes
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
}

// AuthConfig represents session token configuration
type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	TokenTTLMinutes int
}

// SchemaConfig points at the entity schema DSL file
type SchemaConfig struct {
	Path string // Relative paths are resolved against the project root
}

// ConnectConfig represents the Kafka Connect REST endpoint used to provision connectors
type ConnectConfig struct {
	Enabled  bool
	Host     string
	Port     int
	RetryMax int
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// AdminConfig holds the credentials of the bootstrap superuser
type AdminConfig struct {
	Username string
	Password string
}

// FindProjectRoot finds the project root directory by looking for go.mod
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")

	// Outside a source checkout the config file is looked up in the working directory
	if projectRoot, err := FindProjectRoot(); err == nil {
		viper.AddConfigPath(projectRoot)
	}
	viper.AddConfigPath(".")

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 50051)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 30)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "eddy")
	viper.SetDefault("DB_NAME", "eddy_dev")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)

	// Principal cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 10*1024*1024) // 10MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 5)

	viper.SetDefault("AUTH_ISSUER", "eddy")
	viper.SetDefault("AUTH_TOKEN_TTL_MINUTES", 60)

	viper.SetDefault("SCHEMA_PATH", "schema/eddy.schema")

	viper.SetDefault("CONNECT_ENABLED", true)
	viper.SetDefault("CONNECT_HOST", "debezium-connect")
	viper.SetDefault("CONNECT_PORT", 8083)
	viper.SetDefault("CONNECT_RETRY_MAX", 3)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")

	viper.SetDefault("ADMIN_USERNAME", "admin")
	viper.SetDefault("ADMIN_PASSWORD", "admin")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	// Session tokens cannot be issued without a signing secret
	jwtSecret := viper.GetString("AUTH_JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required (set via environment variable or .env file)")
	}

	config := &Config{
		Server: ServerConfig{
			Host:            viper.GetString("SERVER_HOST"),
			Port:            viper.GetInt("SERVER_PORT"),
			MetricsPort:     viper.GetInt("METRICS_PORT"),
			ShutdownTimeout: time.Duration(viper.GetInt("SHUTDOWN_TIMEOUT_SECONDS")) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetInt("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     dbPassword,
			Database:     viper.GetString("DB_NAME"),
			SSLMode:      viper.GetString("DB_SSLMODE"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			Metrics:        viper.GetBool("CACHE_METRICS"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Auth: AuthConfig{
			JWTSecret:       jwtSecret,
			Issuer:          viper.GetString("AUTH_ISSUER"),
			TokenTTLMinutes: viper.GetInt("AUTH_TOKEN_TTL_MINUTES"),
		},
		Schema: SchemaConfig{
			Path: viper.GetString("SCHEMA_PATH"),
		},
		Connect: ConnectConfig{
			Enabled:  viper.GetBool("CONNECT_ENABLED"),
			Host:     viper.GetString("CONNECT_HOST"),
			Port:     viper.GetInt("CONNECT_PORT"),
			RetryMax: viper.GetInt("CONNECT_RETRY_MAX"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		Admin: AdminConfig{
			Username: viper.GetString("ADMIN_USERNAME"),
			Password: viper.GetString("ADMIN_PASSWORD"),
		},
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// BaseURL returns the Kafka Connect REST base URL
func (c *ConnectConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// ResolveSchemaPath returns the schema path, made absolute against the project root when relative
func (c *SchemaConfig) ResolveSchemaPath() string {
	if filepath.IsAbs(c.Path) {
		return c.Path
	}
	root, err := FindProjectRoot()
	if err != nil {
		return c.Path
	}
	return filepath.Join(root, c.Path)
}
