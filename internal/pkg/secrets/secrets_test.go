package secrets

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

type fakeQuerier struct {
	rows map[string]string
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if strings.HasPrefix(strings.TrimSpace(sql), "INSERT") {
		f.rows[args[0].(string)] = args[1].(string)
	} else {
		delete(f.rows, args[0].(string))
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	value, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: value}
}

func newStore() (Store, *fakeQuerier) {
	q := &fakeQuerier{rows: map[string]string{}}
	return New(q), q
}

func TestSetAndGet(t *testing.T) {
	store, _ := newStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyAPIKey, "key-1"))

	value, err := store.Get(ctx, KeyAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "key-1", value)
}

func TestGet_MissingKey(t *testing.T) {
	store, _ := newStore()

	_, err := store.Get(context.Background(), KeyAuthToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSet_Overwrites(t *testing.T) {
	store, _ := newStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyRefreshToken, "old"))
	require.NoError(t, store.Set(ctx, KeyRefreshToken, "new"))

	value, err := store.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "new", value)
}

func TestDelete(t *testing.T) {
	store, _ := newStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyAPIKey, "key-1"))
	require.NoError(t, store.Delete(ctx, KeyAPIKey))

	_, err := store.Get(ctx, KeyAPIKey)
	assert.ErrorIs(t, err, ErrNotFound)
}
