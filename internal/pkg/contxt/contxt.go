package contxt

import (
	"context"
	"time"
)

// NewContext returns a context bounded by timeout for fire-and-forget side
// effects (cache writes, relay publishes) that must not inherit a caller's
// cancellation.
func NewContext(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ctx
}
