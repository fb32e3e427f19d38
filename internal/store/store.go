/*
 * Copyright (c) 2019 OysterPack, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store is the storefront's relational data layer, backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"strings"
	"time"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

// Store errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrUnknownUser       = errors.New("unknown user")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// MemoryDB is the database path used for an in-memory database
const MemoryDB = ":memory:"

// Store provides access to the catalog, users, and orders
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database and waits for it to respond to a ping.
// Opening is retried with exponential backoff until the context is done or the max elapsed time is reached.
func Open(ctx context.Context, path string, maxElapsedTime time.Duration) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("database path is required")
	}

	var db *sql.DB
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 50 * time.Millisecond
	retry.MaxElapsedTime = maxElapsedTime
	err := backoff.Retry(func() error {
		conn, err := sql.Open("sqlite", dsn(path))
		if err != nil {
			return backoff.Permanent(err)
		}
		if path == MemoryDB {
			// every connection would otherwise get its own empty database
			conn.SetMaxOpenConns(1)
		}
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return err
		}
		db = conn
		return nil
	}, backoff.WithContext(retry, ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", path)
	}
	return &Store{db: db}, nil
}

// Transactions take the write lock when they begin. A deferred transaction that reads stock and then writes fails
// with SQLITE_BUSY, without waiting for busy_timeout, when another connection commits in between.
func dsn(path string) string {
	if path == MemoryDB {
		return "file::memory:?_pragma=foreign_keys(1)&_txlock=immediate"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL CHECK (price >= 0),
		image TEXT NOT NULL DEFAULT '',
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		category_id INTEGER NOT NULL REFERENCES categories (id),
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS products_category_created ON products (category_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS products_created ON products (created_at)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users (id),
		total INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'shipped', 'delivered')),
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_created ON orders (created_at)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products (id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order ON order_items (order_id)`,
	`CREATE INDEX IF NOT EXISTS order_items_product ON order_items (product_id)`,
}

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.Wrap(err, "schema migration failed")
			}
		}
		return nil
	})
}

// Reset deletes all rows, child tables first, and restarts the id sequences at 1.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"order_items", "orders", "products", "categories", "users"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return errors.Wrapf(err, "failed to delete from %s", table)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence"); err != nil {
			return errors.Wrap(err, "failed to reset id sequences")
		}
		return nil
	})
}

// Counts returns the row count per table
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM categories),
		(SELECT COUNT(*) FROM products),
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM orders)`).
		Scan(&counts.Categories, &counts.Products, &counts.Users, &counts.Orders)
	return counts, errors.Wrap(err, "failed to count rows")
}

func (s *Store) inTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// timestamps are stored as unix milliseconds
func toDB(t time.Time) int64 {
	return t.UnixMilli()
}

func fromDB(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
