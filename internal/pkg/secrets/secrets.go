// Package secrets is the credential store shared by every fanbridge process.
// Values live in a single Postgres table so the daemon, the relay and any
// companion tooling observe the same credentials.
package secrets

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("secret not found")

// Keys used by the bridge.
const (
	KeyAPIKey       = "api_key"
	KeyAuthToken    = "auth_token"
	KeyRefreshToken = "refresh_token"
)

// Store is the secret-store boundary the rest of the bridge depends on.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgStore struct {
	conn querier
}

func New(conn querier) Store {
	return &pgStore{conn: conn}
}

func (s *pgStore) Get(ctx context.Context, key string) (string, error) {
	const query = `SELECT value FROM secrets WHERE key = $1;`

	var value string
	if err := s.conn.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *pgStore) Set(ctx context.Context, key, value string) error {
	const query = `
	INSERT INTO secrets (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();
	`
	_, err := s.conn.Exec(ctx, query, key, value)
	return err
}

func (s *pgStore) Delete(ctx context.Context, key string) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM secrets WHERE key = $1;`, key)
	return err
}
