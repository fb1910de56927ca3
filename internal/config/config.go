// Package config loads the shared configuration: defaults, then an optional
// YAML file, then GROC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"grocery-cli/internal/types"
)

// fileConfig is the YAML layout. Unset fields keep their defaults.
type fileConfig struct {
	RequestDelay          *time.Duration `yaml:"request_delay"`
	Timeout               *time.Duration `yaml:"timeout"`
	MaxConcurrentRequests *int           `yaml:"max_concurrent_requests"`
	Headless              *bool          `yaml:"headless"`
	UserAgent             string         `yaml:"user_agent"`

	SessionDir      string         `yaml:"session_dir"`
	SessionLifetime *time.Duration `yaml:"session_lifetime"`
	DiagnosticsDir  string         `yaml:"diagnostics_dir"`

	CacheDB  string         `yaml:"cache_db"`
	CacheTTL *time.Duration `yaml:"cache_ttl"`

	LoginTimeout         *time.Duration `yaml:"login_timeout"`
	ElementTimeout       *time.Duration `yaml:"element_timeout"`
	PollInterval         *time.Duration `yaml:"poll_interval"`
	SlotSelectionTimeout *time.Duration `yaml:"slot_selection_timeout"`
	PaymentTimeout       *time.Duration `yaml:"payment_timeout"`

	Providers map[string]fileProvider `yaml:"providers"`
}

type fileProvider struct {
	BaseURL      string `yaml:"base_url"`
	WebURL       string `yaml:"web_url"`
	StoreNumber  string `yaml:"store_number"`
	RegionID     string `yaml:"region_id"`
	MinimumSpend string `yaml:"minimum_spend"`
}

// DefaultPath is the config file read when no path is given
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".groc", "config.yaml")
}

// Load builds the configuration. A missing file at path is not an error; an
// unreadable or invalid one is.
func Load(path string) (*types.Config, error) {
	cfg := types.DefaultConfig()

	if path != "" {
		if err := loadAndMerge(cfg, expandHome(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.SessionDir = expandHome(cfg.SessionDir)
	cfg.DiagnosticsDir = expandHome(cfg.DiagnosticsDir)
	cfg.CacheDBPath = expandHome(cfg.CacheDBPath)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadAndMerge(cfg *types.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override fileConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	return mergeConfig(cfg, &override)
}

func mergeConfig(base *types.Config, override *fileConfig) error {
	setDuration(&base.RequestDelay, override.RequestDelay)
	setDuration(&base.Timeout, override.Timeout)
	if override.MaxConcurrentRequests != nil {
		base.MaxConcurrentRequests = *override.MaxConcurrentRequests
	}
	if override.Headless != nil {
		base.Headless = *override.Headless
	}
	if override.UserAgent != "" {
		base.UserAgent = override.UserAgent
	}

	if override.SessionDir != "" {
		base.SessionDir = override.SessionDir
	}
	setDuration(&base.SessionLifetime, override.SessionLifetime)
	if override.DiagnosticsDir != "" {
		base.DiagnosticsDir = override.DiagnosticsDir
	}

	if override.CacheDB != "" {
		base.CacheDBPath = override.CacheDB
	}
	setDuration(&base.CacheTTL, override.CacheTTL)

	setDuration(&base.LoginTimeout, override.LoginTimeout)
	setDuration(&base.ElementTimeout, override.ElementTimeout)
	setDuration(&base.PollInterval, override.PollInterval)
	setDuration(&base.SlotSelectionTimeout, override.SlotSelectionTimeout)
	setDuration(&base.PaymentTimeout, override.PaymentTimeout)

	for name, fp := range override.Providers {
		pc := base.Provider(name)
		if fp.BaseURL != "" {
			pc.BaseURL = fp.BaseURL
		}
		if fp.WebURL != "" {
			pc.WebURL = fp.WebURL
		}
		if fp.StoreNumber != "" {
			pc.StoreNumber = fp.StoreNumber
		}
		if fp.RegionID != "" {
			pc.RegionID = fp.RegionID
		}
		if fp.MinimumSpend != "" {
			minimum, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(fp.MinimumSpend), "£"))
			if err != nil {
				return fmt.Errorf("providers.%s.minimum_spend: %w", name, err)
			}
			pc.MinimumSpend = minimum
		}
		if base.Providers == nil {
			base.Providers = make(map[string]types.ProviderConfig)
		}
		base.Providers[name] = pc
	}
	return nil
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

func applyEnvOverrides(cfg *types.Config) {
	if v, ok := envBool("GROC_HEADLESS"); ok {
		cfg.Headless = v
	}
	if v := os.Getenv("GROC_SESSION_DIR"); v != "" {
		cfg.SessionDir = v
	}
	if v := os.Getenv("GROC_DIAGNOSTICS_DIR"); v != "" {
		cfg.DiagnosticsDir = v
	}
	if v := os.Getenv("GROC_CACHE_DB"); v != "" {
		cfg.CacheDBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("GROC_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.CacheTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("GROC_REQUEST_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.RequestDelay = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("GROC_MAX_CONCURRENT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentRequests = n
		}
	}
	if v := os.Getenv("GROC_STORE_NUMBER"); v != "" {
		pc := cfg.Provider("sainsburys")
		pc.StoreNumber = v
		cfg.Providers["sainsburys"] = pc
	}
	if v := os.Getenv("GROC_OCADO_REGION"); v != "" {
		pc := cfg.Provider("ocado")
		pc.RegionID = v
		cfg.Providers["ocado"] = pc
	}
}

func envBool(key string) (bool, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func validate(cfg *types.Config) error {
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if cfg.MaxConcurrentRequests <= 0 {
		return errors.New("max_concurrent_requests must be positive")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	for name, pc := range cfg.Providers {
		if pc.BaseURL == "" {
			return fmt.Errorf("providers.%s.base_url is required", name)
		}
		if pc.MinimumSpend.IsNegative() {
			return fmt.Errorf("providers.%s.minimum_spend must not be negative", name)
		}
	}
	return nil
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
}
