package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MrWong99/tngbot/pkg/markov"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS character_models (
	character  TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteStore is a [Store] backed by a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path in WAL mode and creates
// the schema. Parent directories are created as needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("modelstore: create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("modelstore: open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("modelstore: enable wal: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("modelstore: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, character string, m *markov.Model) error {
	data, err := Encode(character, m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO character_models (character, model, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(character) DO UPDATE SET
		 	model = excluded.model,
		 	updated_at = excluded.updated_at`,
		Key(character), string(data),
	)
	if err != nil {
		return fmt.Errorf("modelstore: save %q: %w", character, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, character string) (*markov.Model, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT model FROM character_models WHERE character = ?`, Key(character),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, Key(character))
	}
	if err != nil {
		return nil, fmt.Errorf("modelstore: load %q: %w", character, err)
	}
	_, m, err := Decode([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("modelstore: load %q: %w", character, err)
	}
	return m, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT character FROM character_models ORDER BY character`)
	if err != nil {
		return nil, fmt.Errorf("modelstore: list: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("modelstore: list scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("modelstore: list: %w", err)
	}
	return keys, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
