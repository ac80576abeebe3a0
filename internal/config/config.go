// Package config loads application configuration from an optional YAML file
// and environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/glucoshare/internal/domain/model"
)

const envPrefix = "GLUCOSHARE_"

// standardInterval is the sensor cadence used when splitting WAIT_TIME into
// an interval and a slack.
const standardInterval = 5 * time.Minute

// Config holds the application configuration.
type Config struct {
	AccountName   string `yaml:"account_name"`
	Password      string `yaml:"password"`
	ApplicationID string `yaml:"application_id"`
	Region        string `yaml:"region"`
	BaseURL       string `yaml:"base_url"`

	PollInterval     time.Duration `yaml:"poll_interval"`
	PollSlack        time.Duration `yaml:"poll_slack"`
	RetryMinBackoff  time.Duration `yaml:"min_timeout"`
	RetryMaxBackoff  time.Duration `yaml:"max_timeout"`
	Minutes          int           `yaml:"minutes"`
	MaxCount         int           `yaml:"max_count"`
	MaxWindowMinutes int           `yaml:"max_window_minutes"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`

	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	// SecretKeyBase64 is the base64 form of SecretKey as it appears in the
	// file or environment.
	SecretKeyBase64 string `yaml:"secret_key"`
	// SecretKey is the decoded 32-byte AES-256 key for stored credentials.
	// Nil disables credential storage.
	SecretKey []byte `yaml:"-"`

	LogLevel slog.Level `yaml:"log_level"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Region:           "us",
		PollInterval:     standardInterval,
		PollSlack:        10 * time.Second,
		RetryMinBackoff:  5 * time.Second,
		RetryMaxBackoff:  5 * time.Minute,
		Minutes:          model.DefaultFetchMinutes,
		MaxCount:         model.DefaultFetchMaxCount,
		MaxWindowMinutes: model.DefaultFetchMinutes,
		HTTPTimeout:      30 * time.Second,
		ListenAddr:       "127.0.0.1:8080",
		DBPath:           "glucoshare.db",
		LogLevel:         slog.LevelInfo,
	}
}

// Credentials returns the account credentials from the configuration.
func (c *Config) Credentials() model.Credentials {
	return model.Credentials{
		AccountName:   c.AccountName,
		Password:      c.Password,
		ApplicationID: c.ApplicationID,
	}
}

// HasCredentials returns true when both account name and password are set.
// Without them the app starts but polling fails until credentials are
// provided through the API.
func (c *Config) HasCredentials() bool {
	return c.Credentials().IsComplete()
}

// Load builds the configuration from defaults, then the YAML file named by
// GLUCOSHARE_CONFIG_FILE (if set), then GLUCOSHARE_* environment variables,
// and validates the result.
func Load() (*Config, error) {
	cfg := Defaults()

	if path, ok := os.LookupEnv(envPrefix + "CONFIG_FILE"); ok && path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.SecretKeyBase64 != "" {
		key, err := decodeSecretKey(cfg.SecretKeyBase64)
		if err != nil {
			return nil, err
		}
		cfg.SecretKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the poller and HTTP client rely on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Region) {
	case "us", "ous":
	default:
		return fmt.Errorf("region must be us or ous, got %q", c.Region)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.PollSlack < 0 {
		return errors.New("poll slack must not be negative")
	}
	if c.RetryMinBackoff < 0 || c.RetryMinBackoff > c.RetryMaxBackoff {
		return fmt.Errorf("min timeout %s must be between 0 and max timeout %s", c.RetryMinBackoff, c.RetryMaxBackoff)
	}
	if c.Minutes < 1 || c.MaxCount < 1 {
		return errors.New("minutes and max count must be at least 1")
	}
	if c.MaxWindowMinutes < 0 {
		return errors.New("max window minutes must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode yaml %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	lookupString("USERNAME", &cfg.AccountName)
	lookupString("ACCOUNT_NAME", &cfg.AccountName)
	lookupString("PASSWORD", &cfg.Password)
	lookupString("APPLICATION_ID", &cfg.ApplicationID)
	lookupString("REGION", &cfg.Region)
	lookupString("BASE_URL", &cfg.BaseURL)
	lookupString("LISTEN_ADDR", &cfg.ListenAddr)
	lookupString("DB_PATH", &cfg.DBPath)
	lookupString("SECRET_KEY", &cfg.SecretKeyBase64)

	var waitTime time.Duration
	if err := lookupDuration("WAIT_TIME", &waitTime); err != nil {
		return err
	}
	if waitTime > 0 {
		cfg.PollInterval, cfg.PollSlack = splitWaitTime(waitTime)
	}

	for _, d := range []struct {
		name string
		dst  *time.Duration
	}{
		{"POLL_INTERVAL", &cfg.PollInterval},
		{"POLL_SLACK", &cfg.PollSlack},
		{"MIN_TIMEOUT", &cfg.RetryMinBackoff},
		{"MAX_TIMEOUT", &cfg.RetryMaxBackoff},
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
	} {
		if err := lookupDuration(d.name, d.dst); err != nil {
			return err
		}
	}

	for _, n := range []struct {
		name string
		dst  *int
	}{
		{"MINUTES", &cfg.Minutes},
		{"MAX_COUNT", &cfg.MaxCount},
		{"MAX_WINDOW_MINUTES", &cfg.MaxWindowMinutes},
	} {
		if err := lookupInt(n.name, n.dst); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%sLOG_LEVEL has invalid level %q: %w", envPrefix, v, err)
		}
	}
	return nil
}

// splitWaitTime divides a total wait into the standard five-minute interval
// and the remaining slack. Waits shorter than the interval become the
// interval with no slack.
func splitWaitTime(total time.Duration) (interval, slack time.Duration) {
	if total <= standardInterval {
		return total, 0
	}
	return standardInterval, total - standardInterval
}

func decodeSecretKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%sSECRET_KEY is not valid base64: %w", envPrefix, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%sSECRET_KEY must decode to 32 bytes, got %d", envPrefix, len(key))
	}
	return key, nil
}

func lookupString(name string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		*dst = v
	}
}

func lookupDuration(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s has invalid duration %q: %w", envPrefix, name, v, err)
	}
	*dst = parsed
	return nil
}

func lookupInt(name string, dst *int) error {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s has invalid integer %q: %w", envPrefix, name, v, err)
	}
	*dst = parsed
	return nil
}
