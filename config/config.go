// Package config loads relay configuration from the environment. Every
// setting has a default so the relay starts with no configuration at all;
// String() masks credential fields so the config can be logged at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SUNET/ais-data-relay/errors"
)

// Storage mode selection
const (
	StorageModeHistory  = "history"
	StorageModeSnapshot = "snapshot"
)

// Bounds is an inclusive geographic bounding box
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains reports whether the position falls inside the box
func (b Bounds) Contains(lat, lon float64) bool {
	return b.MinLat <= lat && lat <= b.MaxLat &&
		b.MinLon <= lon && lon <= b.MaxLon
}

// AppConfig holds the full relay configuration
type AppConfig struct {
	// Upstream AIS server
	AISHost           string
	AISPort           int
	AISUser           string
	AISPassword       string
	HashedLogin       bool
	RetryInterval     time.Duration
	ConnectionTimeout time.Duration

	// Downstream servers
	TCPPort int
	WebPort int

	// Default geographic limits for clients that never send a filter
	LimLat [2]float64
	LimLon [2]float64

	// Storage
	DatabaseDir  string
	StorageMode  string
	RetentionAge time.Duration

	// Persistence queue
	QueueSize int
	Workers   int

	// Auth
	WebUsername   string
	WebPassword   string
	TCPUsername   string
	TCPPassword   string
	EnableTCPAuth bool
	EnableWebAuth bool

	// Environment ("production" enables the daily rotation schedule)
	Environment string

	// Process log file, truncated on rotation
	LogFile string

	// CSV export interval, 0 disables the exporter
	CSVInterval time.Duration
	CSVPath     string

	// Optional NATS republish, inert when URL is empty
	NATSURL     string
	NATSSubject string
}

// Load builds an AppConfig from environment variables with defaults
func Load() (*AppConfig, error) {
	limLat, err := parsePair(os.Getenv("LIM_LAT"), [2]float64{57.6, 59.1})
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "parse LIM_LAT")
	}
	limLon, err := parsePair(os.Getenv("LIM_LON"), [2]float64{17.6, 19.4})
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "parse LIM_LON")
	}

	cfg := &AppConfig{
		AISHost:           getEnv("AIS_SERVER_HOST", "localhost"),
		AISPort:           getEnvInt("AIS_SERVER_PORT", 8040),
		AISUser:           getEnv("AIS_USER", "user"),
		AISPassword:       getEnv("AIS_USER_PASSWORD", "pass"),
		HashedLogin:       getEnvBool("AIS_HASHED_LOGIN", false),
		RetryInterval:     time.Duration(getEnvInt("RETRY_INTERVAL", 5)) * time.Second,
		ConnectionTimeout: time.Duration(getEnvInt("CONNECTION_TIMEOUT", 30)) * time.Second,

		TCPPort: getEnvInt("AIS_RELAY_TCP_PORT", 5000),
		WebPort: getEnvInt("AIS_RELAY_WEB_PORT", 8000),

		LimLat: limLat,
		LimLon: limLon,

		DatabaseDir:  getEnv("DATABASE_URL", "database"),
		StorageMode:  getEnv("AIS_RELAY_STORAGE_MODE", StorageModeHistory),
		RetentionAge: getEnvDuration("AIS_RELAY_RETENTION_AGE", 168*time.Hour),

		QueueSize: getEnvInt("AIS_RELAY_QUEUE_SIZE", 200000),
		Workers:   getEnvInt("AIS_RELAY_WORKERS", 4),

		WebUsername:   getEnv("WEB_USERNAME", "admin"),
		WebPassword:   getEnv("WEB_PASSWORD", "1234"),
		TCPUsername:   getEnv("TCP_USERNAME", "admin"),
		TCPPassword:   getEnv("TCP_PASSWORD", "1234"),
		EnableTCPAuth: getEnvBool("ENABLE_TCP_AUTH", false),
		EnableWebAuth: getEnvBool("ENABLE_WEB_AUTH", true),

		Environment: getEnv("ENVIRONMENT", "production"),
		LogFile:     getEnv("LOGGER_FILE", "ais_processor.log"),

		CSVInterval: getEnvDuration("AIS_RELAY_CSV_INTERVAL", 0),
		CSVPath:     getEnv("AIS_RELAY_CSV_PATH", "vessels.csv"),

		NATSURL:     getEnv("AIS_RELAY_NATS_URL", ""),
		NATSSubject: getEnv("AIS_RELAY_NATS_SUBJECT", "ais.reports"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the relay cannot run with
func (c *AppConfig) Validate() error {
	if c.AISHost == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "AIS server host")
	}
	if c.AISPort <= 0 || c.AISPort > 65535 {
		return errors.WrapFatal(
			fmt.Errorf("ais port out of range: %d", c.AISPort),
			"config", "Validate", "AIS server port")
	}
	if c.TCPPort <= 0 || c.TCPPort > 65535 {
		return errors.WrapFatal(
			fmt.Errorf("tcp port out of range: %d", c.TCPPort),
			"config", "Validate", "TCP relay port")
	}
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return errors.WrapFatal(
			fmt.Errorf("web port out of range: %d", c.WebPort),
			"config", "Validate", "web port")
	}
	if c.StorageMode != StorageModeHistory && c.StorageMode != StorageModeSnapshot {
		return errors.WrapFatal(
			fmt.Errorf("unknown storage mode: %q", c.StorageMode),
			"config", "Validate", "storage mode")
	}
	if c.QueueSize <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("queue size must be positive: %d", c.QueueSize),
			"config", "Validate", "queue size")
	}
	if c.Workers <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("worker count must be positive: %d", c.Workers),
			"config", "Validate", "worker count")
	}
	if c.RetryInterval <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("retry interval must be positive: %s", c.RetryInterval),
			"config", "Validate", "retry interval")
	}
	if c.LimLat[0] > c.LimLat[1] || c.LimLon[0] > c.LimLon[1] {
		return errors.WrapFatal(
			fmt.Errorf("geo limits inverted: lat=%v lon=%v", c.LimLat, c.LimLon),
			"config", "Validate", "geo limits")
	}
	return nil
}

// DefaultBounds returns the configured geographic limits as a Bounds
func (c *AppConfig) DefaultBounds() Bounds {
	return Bounds{
		MinLat: c.LimLat[0],
		MaxLat: c.LimLat[1],
		MinLon: c.LimLon[0],
		MaxLon: c.LimLon[1],
	}
}

// IsProduction reports whether the daily rotation schedule applies
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// String renders the config with credential fields masked
func (c *AppConfig) String() string {
	return fmt.Sprintf(
		"AppConfig{ais=%s:%d user=%s password=*** hashed=%t retry=%s timeout=%s "+
			"tcp_port=%d web_port=%d lim_lat=%v lim_lon=%v db=%s mode=%s retention=%s "+
			"queue=%d workers=%d web_user=%s web_password=*** tcp_user=%s tcp_password=*** "+
			"tcp_auth=%t web_auth=%t env=%s nats=%s}",
		c.AISHost, c.AISPort, c.AISUser, c.HashedLogin, c.RetryInterval, c.ConnectionTimeout,
		c.TCPPort, c.WebPort, c.LimLat, c.LimLon, c.DatabaseDir, c.StorageMode, c.RetentionAge,
		c.QueueSize, c.Workers, c.WebUsername, c.TCPUsername,
		c.EnableTCPAuth, c.EnableWebAuth, c.Environment, c.NATSURL)
}

// parsePair parses "min,max" into a two-element array
func parsePair(value string, def [2]float64) ([2]float64, error) {
	if value == "" {
		return def, nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return def, fmt.Errorf("invalid pair format: %q, expected \"min,max\"", value)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return def, fmt.Errorf("invalid pair format: %q: %w", value, err)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return def, fmt.Errorf("invalid pair format: %q: %w", value, err)
	}
	return [2]float64{lo, hi}, nil
}

// Environment variable helpers

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
