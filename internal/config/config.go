// ABOUTME: Configuration loading and parsing for dishpatch
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dishpatch configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Bot      BotConfig      `yaml:"bot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
// BotToken keys customer-signed credential verification; StaffTokenSecret
// signs staff-bearer tokens.
type AuthConfig struct {
	BotToken         string `yaml:"bot_token"`
	StaffTokenSecret string `yaml:"staff_token_secret"`

	StaffTokenTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	StaffTokenTTLRaw string `yaml:"staff_token_ttl"`
}

// BotConfig holds the outbound notification endpoint. An empty webhook URL
// disables notifications.
type BotConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// defaultStaffTokenTTL applies when staff_token_ttl is not configured.
const defaultStaffTokenTTL = 12 * time.Hour

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.BotToken == "" {
		return fmt.Errorf("auth.bot_token is required")
	}
	if c.Auth.StaffTokenSecret == "" {
		return fmt.Errorf("auth.staff_token_secret is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	cfg.Auth.StaffTokenTTL = defaultStaffTokenTTL

	if cfg.Auth.StaffTokenTTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Auth.StaffTokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing staff_token_ttl %q: %w", cfg.Auth.StaffTokenTTLRaw, err)
		}
		cfg.Auth.StaffTokenTTL = ttl
	}

	return nil
}
