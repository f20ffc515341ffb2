package modelstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/tngbot/pkg/markov"
)

// Schema is the SQL DDL for the character_models table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS character_models (
    character   TEXT PRIMARY KEY,
    model       JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL table. Each model is one
// JSONB document.
type PostgresStore struct {
	db    DB
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store that uses the given connection or pool.
// The caller owns db and must call [PostgresStore.Migrate] before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, close: func() {}}
}

// OpenPostgres connects a pool to dsn, migrates the schema and returns a
// store that closes the pool on [PostgresStore.Close].
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("modelstore: parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("modelstore: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("modelstore: ping postgres: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("modelstore: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, character string, m *markov.Model) error {
	data, err := Encode(character, m)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO character_models (character, model)
		VALUES ($1, $2)
		ON CONFLICT (character) DO UPDATE SET
			model = EXCLUDED.model,
			updated_at = now()`
	if _, err := s.db.Exec(ctx, query, Key(character), data); err != nil {
		return fmt.Errorf("modelstore: save %q: %w", character, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, character string) (*markov.Model, error) {
	const query = `SELECT model FROM character_models WHERE character = $1`
	var data []byte
	if err := s.db.QueryRow(ctx, query, Key(character)).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, Key(character))
		}
		return nil, fmt.Errorf("modelstore: load %q: %w", character, err)
	}
	_, m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("modelstore: load %q: %w", character, err)
	}
	return m, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT character FROM character_models ORDER BY character`)
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

func (s *PostgresStore) Close() error {
	s.close()
	return nil
}
