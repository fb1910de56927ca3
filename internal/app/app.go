// Package app wires configuration, logging, storage and the provider registry
// for the command binaries.
package app

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"grocery-cli/adapters"
	"grocery-cli/flows"
	"grocery-cli/internal/config"
	"grocery-cli/internal/store"
	"grocery-cli/internal/types"
	"grocery-cli/registry"
)

// App is everything a command needs
type App struct {
	Config   *types.Config
	Logger   *logrus.Logger
	Store    *store.Store
	Registry *registry.Registry
}

// Options configure New
type Options struct {
	ConfigPath string
	Verbose    bool
	Prompter   flows.CodePrompter
	// Browser overrides the Chrome client (probe and tests)
	Browser types.Browser
}

// NewLogger creates the logrus logger used by every binary.
// LOG_LEVEL wins over verbose.
func NewLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := logrus.ParseLevel(levelStr); err == nil {
			logger.SetLevel(level)
		}
	} else if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// New loads .env and the config file, opens the store and builds the registry.
// A store that cannot be opened is logged and left nil.
func New(opts Options) (*App, error) {
	// Load .env file if present
	_ = godotenv.Load()

	logger := NewLogger(opts.Verbose)

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv("GROC_CONFIG")
	}
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}

	dbPath := cfg.CacheDBPath
	if dbPath == "" {
		dbPath = defaultDBPath()
	}
	if dbPath != "" {
		s, err := store.Open(dbPath, logger)
		if err != nil {
			logger.Warnf("Store unavailable, continuing without cache and order journal: %v", err)
		} else {
			a.Store = s
		}
	}

	deps := adapters.Deps{
		Config:   cfg,
		Logger:   logger,
		Browser:  opts.Browser,
		Prompter: opts.Prompter,
	}
	// a nil *store.Store must not become a non-nil interface
	if a.Store != nil {
		deps.Cache = a.Store
	}
	a.Registry = registry.New(deps)

	return a, nil
}

// Close releases the store
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warnf("Failed to close store: %v", err)
		}
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".groc", "groc.db")
}
