// Package cache persists the merged device list so a restarted bridge can
// serve the last known state before the first cloud refresh completes.
package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fabex3d/fanbridge/internal/pkg/model"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	conn querier
}

func New(conn querier) *Store {
	return &Store{conn: conn}
}

// Save replaces the cached list wholesale. The cache mirrors the authoritative
// in-memory list, so a device absent from devices is dropped here too.
func (s *Store) Save(ctx context.Context, devices []model.Device) error {
	payload, err := json.Marshal(devices)
	if err != nil {
		return err
	}

	const query = `
	INSERT INTO device_cache (id, payload, updated_at)
	VALUES (1, $1, now())
	ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now();
	`
	_, err = s.conn.Exec(ctx, query, payload)
	return err
}

// Load returns the cached list, or an empty list when nothing has been
// persisted yet.
func (s *Store) Load(ctx context.Context) ([]model.Device, error) {
	const query = `SELECT payload FROM device_cache WHERE id = 1;`

	var payload []byte
	if err := s.conn.QueryRow(ctx, query).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []model.Device{}, nil
		}
		return nil, err
	}

	var devices []model.Device
	if err := json.Unmarshal(payload, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}
