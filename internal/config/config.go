// Package config loads the flash-auth configuration from environment
// variables (prefix FLASHAUTH) layered over an optional YAML file. The
// environment wins on conflict.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix for all environment variables.
const EnvPrefix = "FLASHAUTH"

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Store   StoreConfig   `yaml:"store" envconfig:"STORE"`
	Admin   AdminConfig   `yaml:"admin" envconfig:"ADMIN"`
	Verify  VerifyConfig  `yaml:"verify" envconfig:"VERIFY"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// StoreConfig holds license store settings.
type StoreConfig struct {
	// DataFile is the JSON snapshot holding all license records.
	DataFile string `yaml:"data_file" envconfig:"DATA_FILE" default:"data.json"`
}

// AdminConfig guards the administrative API.
type AdminConfig struct {
	// PasswordHash is the bcrypt hash of the operator password. Empty
	// disables the admin API entirely.
	PasswordHash string `yaml:"password_hash" envconfig:"PASSWORD_HASH"`
	// TokenSecret signs the session tokens issued at login. Generated at
	// startup when empty, which invalidates sessions across restarts.
	TokenSecret string `yaml:"token_secret" envconfig:"TOKEN_SECRET"`
	// SessionTTL bounds how long an issued admin token stays valid.
	SessionTTL time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL" default:"30m"`
}

// VerifyConfig holds the verification endpoint rate-limit windows, keyed by
// caller address. Brute-force key guessing is the threat these defend
// against, so the defaults are conservative.
type VerifyConfig struct {
	RateLimitEnabled bool `yaml:"rate_limit_enabled" envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	PerMinute        int  `yaml:"per_minute" envconfig:"PER_MINUTE" default:"5"`
	PerHour          int  `yaml:"per_hour" envconfig:"PER_HOUR" default:"50"`
	PerDay           int  `yaml:"per_day" envconfig:"PER_DAY" default:"200"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	// FilePath is used when Output is "file" or "both".
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/flash-auth.log"`
}

// Load reads environment variables, layers them over the optional YAML file
// at path (skipped when path is empty or the file does not exist), then
// validates the result. Environment wins over file, file over defaults.
func Load(path string) (*Config, error) {
	var envCfg Config
	if err := envconfig.Process(EnvPrefix, &envCfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}

	cfg := envCfg
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			fileCfg, err := loadFromFile(path)
			if err != nil {
				return nil, err
			}
			cfg = mergeConfigs(*fileCfg, envCfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// mergeConfigs merges file config with env config. envconfig fills every
// field with its default when the variable is unset, so a field takes the
// file's value only when its variable is absent from the environment and the
// file actually set it. A zero value means absent at the file layer, which is
// why the rate limiter can only be switched off via the environment.
func mergeConfigs(fileCfg, envCfg Config) Config {
	cfg := envCfg

	if !envSet("SERVER_PORT") && fileCfg.Server.Port != 0 {
		cfg.Server.Port = fileCfg.Server.Port
	}
	if !envSet("SERVER_READ_TIMEOUT") && fileCfg.Server.ReadTimeout != 0 {
		cfg.Server.ReadTimeout = fileCfg.Server.ReadTimeout
	}
	if !envSet("SERVER_WRITE_TIMEOUT") && fileCfg.Server.WriteTimeout != 0 {
		cfg.Server.WriteTimeout = fileCfg.Server.WriteTimeout
	}
	if !envSet("SERVER_IDLE_TIMEOUT") && fileCfg.Server.IdleTimeout != 0 {
		cfg.Server.IdleTimeout = fileCfg.Server.IdleTimeout
	}
	if !envSet("SERVER_SHUTDOWN_TIMEOUT") && fileCfg.Server.ShutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = fileCfg.Server.ShutdownTimeout
	}

	if !envSet("STORE_DATA_FILE") && fileCfg.Store.DataFile != "" {
		cfg.Store.DataFile = fileCfg.Store.DataFile
	}

	if !envSet("ADMIN_PASSWORD_HASH") && fileCfg.Admin.PasswordHash != "" {
		cfg.Admin.PasswordHash = fileCfg.Admin.PasswordHash
	}
	if !envSet("ADMIN_TOKEN_SECRET") && fileCfg.Admin.TokenSecret != "" {
		cfg.Admin.TokenSecret = fileCfg.Admin.TokenSecret
	}
	if !envSet("ADMIN_SESSION_TTL") && fileCfg.Admin.SessionTTL != 0 {
		cfg.Admin.SessionTTL = fileCfg.Admin.SessionTTL
	}

	if !envSet("VERIFY_PER_MINUTE") && fileCfg.Verify.PerMinute != 0 {
		cfg.Verify.PerMinute = fileCfg.Verify.PerMinute
	}
	if !envSet("VERIFY_PER_HOUR") && fileCfg.Verify.PerHour != 0 {
		cfg.Verify.PerHour = fileCfg.Verify.PerHour
	}
	if !envSet("VERIFY_PER_DAY") && fileCfg.Verify.PerDay != 0 {
		cfg.Verify.PerDay = fileCfg.Verify.PerDay
	}

	if !envSet("LOGGING_LEVEL") && fileCfg.Logging.Level != "" {
		cfg.Logging.Level = fileCfg.Logging.Level
	}
	if !envSet("LOGGING_OUTPUT") && fileCfg.Logging.Output != "" {
		cfg.Logging.Output = fileCfg.Logging.Output
	}
	if !envSet("LOGGING_FILE_PATH") && fileCfg.Logging.FilePath != "" {
		cfg.Logging.FilePath = fileCfg.Logging.FilePath
	}

	return cfg
}

// envSet reports whether the named FLASHAUTH variable is present in the
// environment, which is how an explicit value is told apart from an
// envconfig default.
func envSet(name string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + name)
	return ok
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Store.DataFile == "" {
		return fmt.Errorf("store data_file must not be empty")
	}
	if c.Admin.SessionTTL <= 0 {
		return fmt.Errorf("admin session_ttl must be positive")
	}
	if c.Verify.RateLimitEnabled {
		if c.Verify.PerMinute < 1 || c.Verify.PerHour < 1 || c.Verify.PerDay < 1 {
			return fmt.Errorf("rate limit windows must be positive")
		}
	}
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		return fmt.Errorf("logging output %q not one of stdout, file, both", c.Logging.Output)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
