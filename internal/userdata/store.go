// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package userdata implements the per-user play-state store on SQLite.
package userdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scrobblarr/scrobblarr/internal/host"
	"github.com/scrobblarr/scrobblarr/internal/metrics"
	"github.com/scrobblarr/scrobblarr/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_data (
	user_id     TEXT NOT NULL,
	item_key    TEXT NOT NULL,
	played      INTEGER NOT NULL DEFAULT 0,
	play_count  INTEGER NOT NULL DEFAULT 0,
	last_played INTEGER,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (user_id, item_key)
);
`

// Store persists per-user play-state in a single SQLite file. A single
// connection in WAL mode serializes writers, which matches the write
// pattern: reconciliation passes rewrite many rows sequentially while the
// API occasionally reads.
type Store struct {
	db *sql.DB
}

// Ensure Store implements the host-facing interface.
var _ host.UserDataStore = (*Store)(nil)

// NewStore opens (and if needed creates) the play-state database at path.
// Use ":memory:" for an ephemeral store in tests.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("userdata: db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("userdata: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("userdata: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("userdata: set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("userdata: set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("userdata: create schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the play-state for one user and item. A missing row is not
// an error: callers receive a zero-value record to mutate and save back.
func (s *Store) Get(ctx context.Context, userID, itemKey string) (*models.UserData, error) {
	start := time.Now()
	data, err := s.get(ctx, userID, itemKey)
	metrics.RecordStoreQuery("get", time.Since(start), err)
	return data, err
}

func (s *Store) get(ctx context.Context, userID, itemKey string) (*models.UserData, error) {
	var (
		played     int
		playCount  int
		lastPlayed sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT played, play_count, last_played FROM user_data WHERE user_id = ? AND item_key = ?`,
		userID, itemKey,
	).Scan(&played, &playCount, &lastPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.UserData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("userdata: get %s/%s: %w", userID, itemKey, err)
	}

	data := &models.UserData{
		Played:    played != 0,
		PlayCount: playCount,
	}
	if lastPlayed.Valid {
		data.LastPlayed = time.Unix(lastPlayed.Int64, 0)
	}
	return data, nil
}

// Save upserts the play-state for one user and item.
func (s *Store) Save(ctx context.Context, userID, itemKey string, data *models.UserData) error {
	start := time.Now()
	err := s.save(ctx, userID, itemKey, data)
	metrics.RecordStoreQuery("save", time.Since(start), err)
	return err
}

func (s *Store) save(ctx context.Context, userID, itemKey string, data *models.UserData) error {
	if userID == "" || itemKey == "" {
		return fmt.Errorf("userdata: user id and item key are required")
	}
	if data == nil {
		return fmt.Errorf("userdata: nil record")
	}

	played := 0
	if data.Played {
		played = 1
	}
	var lastPlayed any
	if !data.LastPlayed.IsZero() {
		lastPlayed = data.LastPlayed.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_data (user_id, item_key, played, play_count, last_played, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_key) DO UPDATE SET
			played      = excluded.played,
			play_count  = excluded.play_count,
			last_played = excluded.last_played,
			updated_at  = excluded.updated_at`,
		userID, itemKey, played, data.PlayCount, lastPlayed, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("userdata: save %s/%s: %w", userID, itemKey, err)
	}
	return nil
}
