package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/afroash/sensorcheck/internal/poll"
)

// Config holds all configuration for a check run
type Config struct {
	Sensor   SensorConfig   `yaml:"sensor"`
	Poll     PollConfig     `yaml:"poll"`
	Firmware FirmwareConfig `yaml:"firmware"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SensorConfig contains connection settings for the sensor under test
type SensorConfig struct {
	URL            string        `yaml:"url"`
	AuthToken      string        `yaml:"auth_token"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
}

// PollConfig controls how long scenarios wait for the sensor
type PollConfig struct {
	Tries   int           `yaml:"tries"`
	Timeout time.Duration `yaml:"timeout"`
	Policy  string        `yaml:"policy"`
}

// FirmwareConfig describes the firmware range of the sensor
type FirmwareConfig struct {
	MaxVersion int `yaml:"max_version"`
}

// StorageConfig contains run history settings.
// With Enabled false, history is kept in memory for the process lifetime.
type StorageConfig struct {
	Enabled        bool          `yaml:"enabled"`
	DBPath         string        `yaml:"db_path"`
	RetentionDays  int           `yaml:"retention_days"`
	CleanupPeriod  time.Duration `yaml:"cleanup_period"`
	MemoryCapacity int           `yaml:"memory_capacity"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig,
// then applies environment overrides and validation
func LoadConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// decode over the defaults so keys present in the file win, zero included
	config := DefaultConfig()
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// DefaultConfig returns the configuration used for every key a file leaves out
func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			ConnectTimeout: 10 * time.Second,
			CallTimeout:    5 * time.Second,
		},
		Poll: PollConfig{
			Tries:   10,
			Timeout: 1 * time.Second,
			Policy:  poll.SwallowTransient.String(),
		},
		Firmware: FirmwareConfig{MaxVersion: 15},
		Storage: StorageConfig{
			DBPath:         "./data/sensorcheck.db",
			RetentionDays:  90,
			CleanupPeriod:  24 * time.Hour,
			MemoryCapacity: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ApplyDefaults fills zero fields of a Config built in code.
// LoadConfig does not call it: a zero read from a file is kept and validated.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Sensor.ConnectTimeout == 0 {
		c.Sensor.ConnectTimeout = d.Sensor.ConnectTimeout
	}
	if c.Sensor.CallTimeout == 0 {
		c.Sensor.CallTimeout = d.Sensor.CallTimeout
	}
	if c.Poll.Tries == 0 {
		c.Poll.Tries = d.Poll.Tries
	}
	if c.Poll.Timeout == 0 {
		c.Poll.Timeout = d.Poll.Timeout
	}
	if c.Poll.Policy == "" {
		c.Poll.Policy = d.Poll.Policy
	}
	if c.Firmware.MaxVersion == 0 {
		c.Firmware.MaxVersion = d.Firmware.MaxVersion
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = d.Storage.DBPath
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = d.Storage.RetentionDays
	}
	if c.Storage.CleanupPeriod == 0 {
		c.Storage.CleanupPeriod = d.Storage.CleanupPeriod
	}
	if c.Storage.MemoryCapacity == 0 {
		c.Storage.MemoryCapacity = d.Storage.MemoryCapacity
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// OverrideFromEnv overrides config values from environment variables.
// Only non-empty variables are applied.
func (c *Config) OverrideFromEnv() error {
	if v := os.Getenv("SENSOR_URL"); v != "" {
		c.Sensor.URL = v
	}
	if v := os.Getenv("SENSOR_AUTH_TOKEN"); v != "" {
		c.Sensor.AuthToken = v
	}
	if v := os.Getenv("POLL_TRIES"); v != "" {
		tries, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLL_TRIES: %w", err)
		}
		c.Poll.Tries = tries
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Sensor.URL == "" {
		return fmt.Errorf("sensor URL is required")
	}
	if !strings.HasPrefix(c.Sensor.URL, "ws://") && !strings.HasPrefix(c.Sensor.URL, "wss://") {
		return fmt.Errorf("sensor URL must start with ws:// or wss://")
	}
	if c.Sensor.AuthToken == "" {
		return fmt.Errorf("sensor auth token is required")
	}
	if c.Sensor.ConnectTimeout < 0 || c.Sensor.CallTimeout < 0 {
		return fmt.Errorf("sensor timeouts must not be negative")
	}
	if c.Poll.Tries < 1 {
		return fmt.Errorf("poll tries must be at least 1")
	}
	if c.Poll.Timeout < 0 {
		return fmt.Errorf("poll timeout must not be negative")
	}
	if _, err := poll.ParsePolicy(c.Poll.Policy); err != nil {
		return err
	}
	if c.Firmware.MaxVersion < 1 {
		return fmt.Errorf("firmware max version must be at least 1")
	}
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage db path is required when storage is enabled")
	}
	if c.Storage.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}
	if c.Storage.MemoryCapacity < 10 || c.Storage.MemoryCapacity > 100000 {
		return fmt.Errorf("memory capacity must be between 10 and 100000")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// PollPolicy returns the parsed poll policy. Call after Validate.
func (c *Config) PollPolicy() poll.Policy {
	p, _ := poll.ParsePolicy(c.Poll.Policy)
	return p
}

// String returns a safe string representation (hides auth token)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Sensor: [URL=%s, Token=%s, ConnectTimeout=%s, CallTimeout=%s], Poll: %+v, Firmware: %+v, Storage: %+v, Logging: %+v}",
		c.Sensor.URL,
		maskToken(c.Sensor.AuthToken),
		c.Sensor.ConnectTimeout,
		c.Sensor.CallTimeout,
		c.Poll,
		c.Firmware,
		c.Storage,
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
