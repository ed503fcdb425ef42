package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabex3d/fanbridge/internal/pkg/secrets"
)

type fakeStore struct {
	values map[string]string
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", secrets.ErrNotFound
	}
	return value, nil
}

func (f *fakeStore) Set(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

type fakeRefresher struct {
	token string
	err   error
	calls int
}

func (f *fakeRefresher) RefreshAccessToken(context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestEnsureValid_FutureTokenUntouched(t *testing.T) {
	store := &fakeStore{values: map[string]string{
		secrets.KeyRefreshToken: signedToken(t, time.Now().Add(time.Hour)),
	}}
	client := &fakeRefresher{token: "unused"}

	require.NoError(t, NewGuard(store, client).EnsureValid(context.Background()))
	assert.Zero(t, client.calls)
}

func TestEnsureValid_ExpiredTokenRefreshed(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	store := &fakeStore{values: map[string]string{
		secrets.KeyRefreshToken: signedToken(t, time.Now().Add(-time.Second)),
	}}
	client := &fakeRefresher{token: fresh}

	require.NoError(t, NewGuard(store, client).EnsureValid(context.Background()))
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, fresh, store.values[secrets.KeyRefreshToken])
}

func TestEnsureValid_MissingTokenRefreshed(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	store := &fakeStore{values: map[string]string{}}
	client := &fakeRefresher{token: fresh}

	require.NoError(t, NewGuard(store, client).EnsureValid(context.Background()))
	assert.Equal(t, fresh, store.values[secrets.KeyRefreshToken])
}

func TestEnsureValid_UndecodableTokenCountsAsExpired(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	store := &fakeStore{values: map[string]string{
		secrets.KeyRefreshToken: "not-a-jwt",
	}}
	client := &fakeRefresher{token: fresh}

	require.NoError(t, NewGuard(store, client).EnsureValid(context.Background()))
	assert.Equal(t, 1, client.calls)
}

func TestEnsureValid_FailedRefreshKeepsPriorToken(t *testing.T) {
	stale := signedToken(t, time.Now().Add(-time.Minute))
	store := &fakeStore{values: map[string]string{
		secrets.KeyRefreshToken: stale,
	}}
	client := &fakeRefresher{err: errors.New("cloud down")}

	err := NewGuard(store, client).EnsureValid(context.Background())
	assert.Error(t, err)
	assert.Equal(t, stale, store.values[secrets.KeyRefreshToken])
}

func TestEnsureValid_TokenWithoutExpCountsAsExpired(t *testing.T) {
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "fanbridge",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	store := &fakeStore{values: map[string]string{
		secrets.KeyRefreshToken: noExp,
	}}
	client := &fakeRefresher{token: signedToken(t, time.Now().Add(time.Hour))}

	require.NoError(t, NewGuard(store, client).EnsureValid(context.Background()))
	assert.Equal(t, 1, client.calls)
}
