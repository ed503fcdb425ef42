// Package token keeps the cloud access token fresh. Tokens are JWTs; expiry
// is read from the exp claim without signature verification, since the
// vendor's key is not published and the server re-checks every call anyway.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fabex3d/fanbridge/internal/pkg/secrets"
)

type refresher interface {
	RefreshAccessToken(ctx context.Context) (string, error)
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type Guard struct {
	store   store
	client  refresher
	logger  *zap.Logger
	now     func() time.Time
	refresh chan struct{}
}

func NewGuard(store store, client refresher) *Guard {
	g := &Guard{
		store:   store,
		client:  client,
		logger:  zap.L(),
		now:     time.Now,
		refresh: make(chan struct{}, 1),
	}
	g.refresh <- struct{}{}
	return g
}

// EnsureValid refreshes the stored access token if it is missing, expired or
// undecodable. A failed refresh leaves the previous token in place so that
// any residual validity window is not thrown away.
func (g *Guard) EnsureValid(ctx context.Context) error {
	current, err := g.store.Get(ctx, secrets.KeyRefreshToken)
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return fmt.Errorf("read access token: %w", err)
	}
	if err == nil && g.valid(current) {
		return nil
	}

	// One refresh in flight at a time; latecomers re-check the store.
	select {
	case <-g.refresh:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { g.refresh <- struct{}{} }()

	latest, err := g.store.Get(ctx, secrets.KeyRefreshToken)
	if err == nil && latest != current && g.valid(latest) {
		return nil
	}

	fresh, err := g.client.RefreshAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}
	if err := g.store.Set(ctx, secrets.KeyRefreshToken, fresh); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	g.logger.Info("access token refreshed")
	return nil
}

// valid reports whether the token's exp claim is strictly in the future.
// Tokens that cannot be decoded count as expired.
func (g *Guard) valid(raw string) bool {
	if raw == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		g.logger.Debug("stored token undecodable", zap.Error(err))
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(g.now())
}
