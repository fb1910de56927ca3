// Package store keeps product snapshots and the checkout order journal in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"grocery-cli/internal/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	provider TEXT NOT NULL,
	product_uid TEXT NOT NULL,
	data TEXT NOT NULL,
	fetched_at INTEGER NOT NULL,
	PRIMARY KEY (provider, product_uid)
);
CREATE TABLE IF NOT EXISTS orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	order_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	total TEXT NOT NULL,
	placed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_provider_placed ON orders (provider, placed_at);
`

// JournalEntry is one recorded checkout
type JournalEntry struct {
	Provider string
	OrderID  string
	RunID    string
	Total    decimal.Decimal
	PlacedAt time.Time
}

// Store is a SQLite database shared by the product cache and the order journal
type Store struct {
	db     *sql.DB
	logger types.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path
func Open(path string, logger types.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetProduct returns a snapshot no older than maxAge, or nil when there is none
func (s *Store) GetProduct(ctx context.Context, provider, productUID string, maxAge time.Duration) (*types.Product, error) {
	var data string
	var fetchedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT data, fetched_at FROM products WHERE provider = ? AND product_uid = ?`,
		provider, productUID,
	).Scan(&data, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product %s/%s: %w", provider, productUID, err)
	}

	if s.now().Sub(time.Unix(0, fetchedAt)) > maxAge {
		return nil, nil
	}

	var product types.Product
	if err := json.Unmarshal([]byte(data), &product); err != nil {
		s.logger.Warnf("Cache: failed to decode product %s/%s: %v", provider, productUID, err)
		return nil, nil
	}
	return &product, nil
}

// PutProduct stores a snapshot, replacing any previous one
func (s *Store) PutProduct(ctx context.Context, product *types.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product %s/%s: %w", product.Provider, product.ProductUID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (provider, product_uid, data, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(provider, product_uid)
		 DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
		product.Provider, product.ProductUID, string(data), s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store product %s/%s: %w", product.Provider, product.ProductUID, err)
	}
	return nil
}

// RecordOrder journals a placed order. Placeholder order ids are not recorded.
func (s *Store) RecordOrder(ctx context.Context, provider string, order *types.Order, runID string) error {
	if order == nil || order.IsPlaceholder() {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (provider, order_id, run_id, total, placed_at) VALUES (?, ?, ?, ?, ?)`,
		provider, order.OrderID, runID, order.Total.String(), s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record order %s: %w", order.OrderID, err)
	}
	s.logger.Debugf("[%s] Recorded order %s (run %s)", provider, order.OrderID, runID)
	return nil
}

// LastOrder returns the most recent journaled order for provider, or nil
func (s *Store) LastOrder(ctx context.Context, provider string) (*JournalEntry, error) {
	var entry JournalEntry
	var total string
	var placedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT provider, order_id, run_id, total, placed_at FROM orders
		 WHERE provider = ? ORDER BY placed_at DESC, id DESC LIMIT 1`,
		provider,
	).Scan(&entry.Provider, &entry.OrderID, &entry.RunID, &total, &placedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order journal: %w", err)
	}

	entry.Total, err = decimal.NewFromString(total)
	if err != nil {
		entry.Total = decimal.Zero
	}
	entry.PlacedAt = time.Unix(0, placedAt)
	return &entry, nil
}

// RecentOrder fails with ErrOrderAlreadyPlaced when an order for provider was
// journaled within the window
func (s *Store) RecentOrder(ctx context.Context, provider string, window time.Duration) error {
	last, err := s.LastOrder(ctx, provider)
	if err != nil {
		return err
	}
	if last == nil || s.now().Sub(last.PlacedAt) > window {
		return nil
	}
	return fmt.Errorf("%s: %w: order %s at %s", provider, types.ErrOrderAlreadyPlaced,
		last.OrderID, last.PlacedAt.Format(time.RFC3339))
}
