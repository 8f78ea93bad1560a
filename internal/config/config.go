// Package config loads reviewd's configuration file (with environment
// variable overrides for secrets) and applies a fill-in-defaults-then-
// validate pass over it.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config captures reviewd's full runtime configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	GitHubToken string `mapstructure:"github_token"`

	DefaultTargetBranch string `mapstructure:"default_target_branch"`
	WatchDebounce       time.Duration
	WatchDebounceMillis int `mapstructure:"watch_debounce_millis"`
	StalenessWindow     int `mapstructure:"staleness_window_lines"`

	DBPath string `mapstructure:"db_path"`

	PushAllow map[string][]string `mapstructure:"push_allow"`

	OAuthAccessTokenTTL  time.Duration
	OAuthAccessTTLSecs   int `mapstructure:"oauth_access_ttl_seconds"`
	OAuthRefreshTokenTTL time.Duration
	OAuthRefreshTTLSecs  int `mapstructure:"oauth_refresh_ttl_seconds"`
	OAuthCodeTTL         time.Duration
	OAuthCodeTTLSecs     int `mapstructure:"oauth_code_ttl_seconds"`

	HostedClientID     string   `mapstructure:"hosted_client_id"`
	HostedClientSecret string   `mapstructure:"hosted_client_secret"`
	HostedRedirectURL  string   `mapstructure:"hosted_redirect_url"`
	HostedScopes       []string `mapstructure:"hosted_scopes"`

	EnableDebugLogging bool   `mapstructure:"enable_debug_logging"`
	LogFile            string `mapstructure:"log_file"`
}

// defaults returns the configuration values used when the config file
// and environment leave a field unset.
func defaults() *Config {
	return &Config{
		ListenAddr:          ":8576",
		DefaultTargetBranch: "main",
		WatchDebounceMillis: 300,
		StalenessWindow:     5,
		DBPath:              "reviewd.db",
		OAuthAccessTTLSecs:  3600,
		OAuthRefreshTTLSecs: 30 * 24 * 3600,
		OAuthCodeTTLSecs:    600,
		HostedScopes:        []string{"repo"},
	}
}

// Load reads the config file at path (if non-empty) layered under the
// defaults, with REVIEWD_* environment variables overriding secrets.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REVIEWD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		}
	}

	cfg := defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if token := os.Getenv("REVIEWD_GITHUB_TOKEN"); token != "" {
		cfg.GitHubToken = token
	}
	if secret := os.Getenv("REVIEWD_HOSTED_CLIENT_SECRET"); secret != "" {
		cfg.HostedClientSecret = secret
	}

	applyDerivedDurations(cfg)

	if err := cfg.IsValid(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDerivedDurations(c *Config) {
	if c.WatchDebounceMillis <= 0 {
		c.WatchDebounceMillis = 300
	}
	c.WatchDebounce = time.Duration(c.WatchDebounceMillis) * time.Millisecond

	if c.OAuthAccessTTLSecs <= 0 {
		c.OAuthAccessTTLSecs = 3600
	}
	c.OAuthAccessTokenTTL = time.Duration(c.OAuthAccessTTLSecs) * time.Second

	if c.OAuthRefreshTTLSecs <= 0 {
		c.OAuthRefreshTTLSecs = 30 * 24 * 3600
	}
	c.OAuthRefreshTokenTTL = time.Duration(c.OAuthRefreshTTLSecs) * time.Second

	if c.OAuthCodeTTLSecs <= 0 {
		c.OAuthCodeTTLSecs = 600
	}
	c.OAuthCodeTTL = time.Duration(c.OAuthCodeTTLSecs) * time.Second

	if c.StalenessWindow <= 0 {
		c.StalenessWindow = 5
	}

	if len(c.HostedScopes) == 0 {
		c.HostedScopes = []string{"repo"}
	}
	if c.HostedRedirectURL == "" && c.ListenAddr != "" {
		c.HostedRedirectURL = "http://localhost" + c.ListenAddr + "/oauth/hosted/callback"
	}
}

// IsValid checks that the configuration is well-formed, returning a
// plain descriptive error for the first problem found.
func (c *Config) IsValid() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	return nil
}

// NewLogger builds the shared logrus logger, rotating through
// lumberjack when a log file is configured.
func NewLogger(c *Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if c.EnableDebugLogging {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	if c.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		})
	}
	return logger
}

// Store is a lock-guarded holder for the active configuration, letting
// it be swapped atomically out from under concurrent readers.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewStore wraps an initial configuration value.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

// Get returns the active configuration under read lock. The returned
// value is treated as immutable by callers.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the active configuration under write lock.
func (s *Store) Set(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
