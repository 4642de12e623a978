package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config defines configuration for a mirror run.
type Config struct {
	SourceDirectory      string        `yaml:"source_directory"`
	BaseURL              string        `yaml:"base_url"`
	DestinationDirectory string        `yaml:"destination_directory"`
	WorkerLimit          int           `yaml:"worker_limit"`
	HeadRequestTimeout   time.Duration `yaml:"head_request_timeout"`
	GetRequestTimeout    time.Duration `yaml:"get_request_timeout"`
	Retry                RetryConfig   `yaml:"retry"`
	InsecureSkipVerify   bool          `yaml:"insecure_skip_verify"`
	AtomicWrites         bool          `yaml:"atomic_writes"`
	ProbeBodyLimit       int64         `yaml:"probe_body_limit"`
	Progress             bool          `yaml:"progress"`
	Log                  LogConfig     `yaml:"log"`
}

// RetryConfig defines retry behavior for downloads.
// Count is the number of retries after the first failed attempt.
type RetryConfig struct {
	Count int           `yaml:"count"`
	Delay time.Duration `yaml:"delay"`
}

// LogConfig defines log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		WorkerLimit:        8,
		HeadRequestTimeout: 5 * time.Second,
		GetRequestTimeout:  60 * time.Second,
		Retry: RetryConfig{
			Count: 3,
			Delay: time.Second,
		},
		InsecureSkipVerify: true,
		ProbeBodyLimit:     1024,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
// Pointers distinguish an explicit false from an absent key.
type yamlConfig struct {
	SourceDirectory      string          `yaml:"source_directory"`
	BaseURL              string          `yaml:"base_url"`
	DestinationDirectory string          `yaml:"destination_directory"`
	WorkerLimit          int             `yaml:"worker_limit"`
	HeadRequestTimeout   string          `yaml:"head_request_timeout"`
	GetRequestTimeout    string          `yaml:"get_request_timeout"`
	Retry                yamlRetryConfig `yaml:"retry"`
	InsecureSkipVerify   *bool           `yaml:"insecure_skip_verify"`
	AtomicWrites         bool            `yaml:"atomic_writes"`
	ProbeBodyLimit       string          `yaml:"probe_body_limit"`
	Progress             bool            `yaml:"progress"`
	Log                  LogConfig       `yaml:"log"`
}

type yamlRetryConfig struct {
	Count *int   `yaml:"count"`
	Delay string `yaml:"delay"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.SourceDirectory != "" {
		cfg.SourceDirectory = yc.SourceDirectory
	}
	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.DestinationDirectory != "" {
		cfg.DestinationDirectory = yc.DestinationDirectory
	}
	if yc.WorkerLimit != 0 {
		cfg.WorkerLimit = yc.WorkerLimit
	}
	if yc.HeadRequestTimeout != "" {
		d, err := time.ParseDuration(yc.HeadRequestTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse head_request_timeout: %w", err)
		}
		cfg.HeadRequestTimeout = d
	}
	if yc.GetRequestTimeout != "" {
		d, err := time.ParseDuration(yc.GetRequestTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse get_request_timeout: %w", err)
		}
		cfg.GetRequestTimeout = d
	}
	if yc.Retry.Count != nil {
		cfg.Retry.Count = *yc.Retry.Count
	}
	if yc.Retry.Delay != "" {
		d, err := time.ParseDuration(yc.Retry.Delay)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.delay: %w", err)
		}
		cfg.Retry.Delay = d
	}
	if yc.InsecureSkipVerify != nil {
		cfg.InsecureSkipVerify = *yc.InsecureSkipVerify
	}
	cfg.AtomicWrites = yc.AtomicWrites
	if yc.ProbeBodyLimit != "" {
		size, err := humanize.ParseBytes(yc.ProbeBodyLimit)
		if err != nil {
			return Config{}, fmt.Errorf("parse probe_body_limit: %w", err)
		}
		cfg.ProbeBodyLimit = int64(size)
	}
	cfg.Progress = yc.Progress
	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}
	if yc.Log.Format != "" {
		cfg.Log.Format = yc.Log.Format
	}
	if yc.Log.File != "" {
		cfg.Log.File = yc.Log.File
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. With no
// arguments it loads ./.env and silently ignores a missing file.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// envKeys are the environment variables LoadFromEnv reads.
var envKeys = []string{
	"SOURCE_DIRECTORY", "BASE_URL", "DESTINATION_DIRECTORY",
	"WORKER_LIMIT", "RETRY_COUNT",
	"HEAD_REQUEST_TIMEOUT", "GET_REQUEST_TIMEOUT", "RETRY_DELAY",
	"INSECURE_SKIP_VERIFY", "ATOMIC_WRITES", "PROGRESS",
	"PROBE_BODY_LIMIT",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
}

// newEnvViper returns a viper instance bound to envKeys. Empty variables
// count as unset.
func newEnvViper() (*viper.Viper, error) {
	v := viper.New()
	v.AllowEmptyEnv(false)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return v, nil
}

// LoadFromEnv loads configuration from environment variables.
// Timeouts and the retry delay are given in milliseconds. A variable that
// is set but does not parse is an error rather than a silent zero.
func (c *Config) LoadFromEnv() error {
	v, err := newEnvViper()
	if err != nil {
		return err
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"SOURCE_DIRECTORY", &c.SourceDirectory},
		{"BASE_URL", &c.BaseURL},
		{"DESTINATION_DIRECTORY", &c.DestinationDirectory},
		{"LOG_LEVEL", &c.Log.Level},
		{"LOG_FORMAT", &c.Log.Format},
		{"LOG_FILE", &c.Log.File},
	}
	for _, it := range strs {
		if v.IsSet(it.key) {
			*it.dst = v.GetString(it.key)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"WORKER_LIMIT", &c.WorkerLimit},
		{"RETRY_COUNT", &c.Retry.Count},
	}
	for _, it := range ints {
		if !v.IsSet(it.key) {
			continue
		}
		n, err := parseInt(v.GetString(it.key))
		if err != nil {
			return fmt.Errorf("parse %s: %w", it.key, err)
		}
		*it.dst = n
	}

	millis := []struct {
		key string
		dst *time.Duration
	}{
		{"HEAD_REQUEST_TIMEOUT", &c.HeadRequestTimeout},
		{"GET_REQUEST_TIMEOUT", &c.GetRequestTimeout},
		{"RETRY_DELAY", &c.Retry.Delay},
	}
	for _, it := range millis {
		if !v.IsSet(it.key) {
			continue
		}
		n, err := parseInt(v.GetString(it.key))
		if err != nil {
			return fmt.Errorf("parse %s: %w", it.key, err)
		}
		*it.dst = time.Duration(n) * time.Millisecond
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"INSECURE_SKIP_VERIFY", &c.InsecureSkipVerify},
		{"ATOMIC_WRITES", &c.AtomicWrites},
		{"PROGRESS", &c.Progress},
	}
	for _, it := range bools {
		if !v.IsSet(it.key) {
			continue
		}
		b, err := cast.ToBoolE(strings.TrimSpace(v.GetString(it.key)))
		if err != nil {
			return fmt.Errorf("parse %s: %w", it.key, err)
		}
		*it.dst = b
	}

	if v.IsSet("PROBE_BODY_LIMIT") {
		size, err := humanize.ParseBytes(v.GetString("PROBE_BODY_LIMIT"))
		if err != nil {
			return fmt.Errorf("parse PROBE_BODY_LIMIT: %w", err)
		}
		c.ProbeBodyLimit = int64(size)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SourceDirectory == "" {
		return errors.New("config: source directory is required")
	}
	if c.BaseURL == "" {
		return errors.New("config: base URL is required")
	}
	if c.DestinationDirectory == "" {
		return errors.New("config: destination directory is required")
	}
	if c.WorkerLimit <= 0 {
		return errors.New("config: worker limit must be positive")
	}
	if c.HeadRequestTimeout <= 0 {
		return errors.New("config: head request timeout must be positive")
	}
	if c.GetRequestTimeout <= 0 {
		return errors.New("config: get request timeout must be positive")
	}
	if c.Retry.Count < 0 {
		return errors.New("config: retry count must not be negative")
	}
	if c.Retry.Delay < 0 {
		return errors.New("config: retry delay must not be negative")
	}
	if c.ProbeBodyLimit < 0 {
		return errors.New("config: probe body limit must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.SourceDirectory != "" {
		c.SourceDirectory = override.SourceDirectory
	}
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.DestinationDirectory != "" {
		c.DestinationDirectory = override.DestinationDirectory
	}
	if override.WorkerLimit != 0 {
		c.WorkerLimit = override.WorkerLimit
	}
	if override.HeadRequestTimeout != 0 {
		c.HeadRequestTimeout = override.HeadRequestTimeout
	}
	if override.GetRequestTimeout != 0 {
		c.GetRequestTimeout = override.GetRequestTimeout
	}
	if override.Retry.Count != 0 {
		c.Retry.Count = override.Retry.Count
	}
	if override.Retry.Delay != 0 {
		c.Retry.Delay = override.Retry.Delay
	}
	if override.AtomicWrites {
		c.AtomicWrites = override.AtomicWrites
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.ProbeBodyLimit != 0 {
		c.ProbeBodyLimit = override.ProbeBodyLimit
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.Log.File != "" {
		c.Log.File = override.Log.File
	}
	return c
}

// parseInt accepts decimal integers only, so zero-padded values such as
// "0500" are not read as octal.
func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
