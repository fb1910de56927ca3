// Package session persists retailer login sessions on disk.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"grocery-cli/internal/types"
)

// Data is a persisted authentication session
type Data struct {
	Cookies   []types.Cookie `json:"cookies"`
	ExpiresAt time.Time      `json:"expiresAt"`
	LastLogin time.Time      `json:"lastLogin"`
}

// Expired reports whether the session is past its expiry at the given time
func (d *Data) Expired(now time.Time) bool {
	return !d.ExpiresAt.After(now)
}

// CookieHeader joins the cookies into a single Cookie header value
func (d *Data) CookieHeader() string {
	parts := make([]string, 0, len(d.Cookies))
	for _, c := range d.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// AuthToken returns the value of the first cookie whose name matches pattern
func (d *Data) AuthToken(pattern *regexp.Regexp) (string, bool) {
	if pattern == nil {
		return "", false
	}
	for _, c := range d.Cookies {
		if pattern.MatchString(c.Name) {
			return c.Value, true
		}
	}
	return "", false
}

// Store reads and writes one retailer's session file. It is the single writer for that file.
type Store struct {
	path   string
	logger types.Logger
	now    func() time.Time
}

// NewStore creates a store backed by the file at path
func NewStore(path string, logger types.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// Path returns the session file location for a provider.
// With an empty dir the file lives at ~/.<provider>/session.json.
func Path(dir, provider string) string {
	dir = expandHome(dir)
	if dir != "" {
		return filepath.Join(dir, provider, "session.json")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join("."+provider, "session.json")
	}
	return filepath.Join(home, "."+provider, "session.json")
}

// Path returns the file this store writes
func (s *Store) Path() string {
	return s.path
}

// Save writes the session with owner-only permissions, creating parent directories
func (s *Store) Save(data *Data) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict session permissions: %w", err)
	}

	s.logger.Debugf("Session saved to %s", s.path)
	return nil
}

// Load returns the stored session, or nil when there is none.
// An expired session yields nil and is left in place; an unparsable one is deleted.
func (s *Store) Load() (*Data, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warnf("Session file %s is corrupt, removing it: %v", s.path, err)
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove corrupt session: %w", rmErr)
		}
		return nil, nil
	}

	if data.Expired(s.now()) {
		s.logger.Infof("Session expired at %s", data.ExpiresAt.Format(time.RFC3339))
		return nil, nil
	}

	return &data, nil
}

// Clear deletes the session file. Clearing a missing file is a no-op.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear session: %w", err)
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
