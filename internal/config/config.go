// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Env             string `env:"APP_ENV"`
	DisplayTimezone string `env:"DISPLAY_TIMEZONE,default=America/Los_Angeles"`
	AccessFile      string `env:"ACCESS_CONFIG,default=config/access.yaml"`

	Server    ServerConfig
	Session   SessionConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Google    GoogleConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES,default=10485760"`
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	Secret     string        `env:"SESSION_SECRET"`
	CookieName string        `env:"SESSION_COOKIE,default=alfred_session"`
	TTL        time.Duration `env:"SESSION_TTL,default=168h"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver    string `env:"STORE_DRIVER"`
	ProjectID string `env:"GOOGLE_CLOUD_PROJECT"`
}

// DatabaseConfig is used by the postgres store.
type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=2"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
}

// RedisConfig enables the shared session revocation list when URL is set.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// GoogleConfig configures Gemini, Speech-to-Text and Text-to-Speech.
// With an API key Gemini uses the Gemini API; without one it uses Vertex AI
// in Project/Location, and every client falls back to Application Default Credentials.
type GoogleConfig struct {
	APIKey         string        `env:"GOOGLE_API_KEY"`
	Project        string        `env:"GOOGLE_CLOUD_PROJECT"`
	Location       string        `env:"GOOGLE_CLOUD_LOCATION,default=us-central1"`
	GeminiModel    string        `env:"GEMINI_MODEL,default=gemini-2.5-flash-lite"`
	Timeout        time.Duration `env:"GOOGLE_API_TIMEOUT,default=60s"`
	MaxRetries     int           `env:"GOOGLE_API_MAX_RETRIES,default=2"`
	GeminiURL      string        `env:"GEMINI_BASE_URL"`
	SpeechEndpoint string        `env:"SPEECH_ENDPOINT"`
	VoiceEndpoint  string        `env:"TTS_ENDPOINT"`
}

// LoggingConfig mirrors logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Format     string `env:"LOG_FORMAT"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX,default=alfred"`
}

// RateLimitConfig bounds login attempts and AI calls per client.
type RateLimitConfig struct {
	LoginPerMinute int `env:"LOGIN_RATE_PER_MINUTE,default=10"`
	LoginBurst     int `env:"LOGIN_RATE_BURST,default=5"`
	ChatPerMinute  int `env:"CHAT_RATE_PER_MINUTE,default=30"`
	ChatBurst      int `env:"CHAT_RATE_BURST,default=10"`
}

// AuditConfig controls the admin audit trail.
type AuditConfig struct {
	Path     string `env:"AUDIT_LOG_PATH"`
	Capacity int    `env:"AUDIT_LOG_CAPACITY,default=200"`
}

// Load reads an optional .env file and decodes the environment into a Config.
// Variables already present in the environment win over the .env file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(dotenv string) (*Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults resolves legacy variable names and values that depend on the runtime mode.
func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = os.Getenv("FLASK_ENV")
	}
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = EnvProduction
	}

	if c.Session.Secret == "" {
		c.Session.Secret = os.Getenv("FLASK_SECRET_KEY")
	}

	if c.Store.Driver == "" {
		if c.IsProduction() {
			c.Store.Driver = StoreFirestore
		} else {
			c.Store.Driver = StoreMemory
		}
	}
	c.Store.Driver = strings.ToLower(c.Store.Driver)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
		if c.IsDevelopment() {
			c.Logging.Level = "debug"
		}
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
		if c.IsDevelopment() {
			c.Logging.Format = "text"
		}
	}
}

// Validate reports configuration that cannot produce a working server.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case StoreFirestore, StoreMemory:
	case StorePostgres:
		if c.Database.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("invalid DISPLAY_TIMEZONE: %w", err)
	}
	return nil
}

// Addr returns the listen address, e.g. "0.0.0.0:8080".
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// Location returns the display time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
