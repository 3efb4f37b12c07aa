package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Session  SessionConfig  `yaml:"session"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Invite   InviteConfig   `yaml:"invite"`
	APNs     APNsConfig     `yaml:"apns"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite or memory
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig holds the SQLite database location
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// AWSConfig holds AWS configuration. The fallback pool override is read from
// S3Bucket/FallbackKey when both are set.
type AWSConfig struct {
	Region      string `yaml:"region"`
	S3Bucket    string `yaml:"s3_bucket"`
	FallbackKey string `yaml:"fallback_key"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	Endpoint    string `yaml:"endpoint"` // S3-compatible storage
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// SessionConfig tunes the swipe coordinator
type SessionConfig struct {
	MaxSwipes  int           `yaml:"max_swipes"`
	TxAttempts int           `yaml:"tx_attempts"`
	TxBackoff  time.Duration `yaml:"tx_backoff"`
}

// CatalogConfig holds the restaurant search settings
type CatalogConfig struct {
	FoursquareAPIKey string        `yaml:"foursquare_api_key"`
	FoursquareURL    string        `yaml:"foursquare_url"`
	RadiusMeters     int           `yaml:"radius_meters"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries  int           `yaml:"cache_max_entries"`
}

// InviteConfig holds the invite link settings
type InviteConfig struct {
	BaseURL string `yaml:"base_url"`
}

// APNsConfig enables push notifications when KeyPath is set
type APNsConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "swipe-match.db"
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.JWT.TokenTTL == 0 {
		c.JWT.TokenTTL = 365 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Session.MaxSwipes == 0 {
		c.Session.MaxSwipes = 10
	}
	if c.Session.TxAttempts == 0 {
		c.Session.TxAttempts = 5
	}
	if c.Session.TxBackoff == 0 {
		c.Session.TxBackoff = 10 * time.Millisecond
	}
	if c.Catalog.RadiusMeters == 0 {
		c.Catalog.RadiusMeters = 1609
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = 10 * time.Minute
	}
	if c.Catalog.CacheMaxEntries == 0 {
		c.Catalog.CacheMaxEntries = 256
	}
	if c.Invite.BaseURL == "" {
		c.Invite.BaseURL = "https://restaurantmatchmaker.vercel.app/invite"
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("database.host and database.dbname are required for the postgres store")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Session.MaxSwipes < 1 {
		return fmt.Errorf("session.max_swipes must be positive")
	}
	if c.Session.TxAttempts < 1 {
		return fmt.Errorf("session.tx_attempts must be positive")
	}
	if c.APNs.KeyPath != "" && (c.APNs.KeyID == "" || c.APNs.TeamID == "" || c.APNs.Topic == "") {
		return fmt.Errorf("apns.key_id, apns.team_id and apns.topic are required with apns.key_path")
	}

	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
