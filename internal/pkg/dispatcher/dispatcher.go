// Package dispatcher turns user intents into cloud commands. Rapid repeats of
// the same control on the same device are coalesced inside a debounce window;
// only the newest value is sent.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fabex3d/fanbridge/internal/pkg/cloud"
	"github.com/fabex3d/fanbridge/internal/pkg/contxt"
	"github.com/fabex3d/fanbridge/internal/pkg/model"
	"github.com/fabex3d/fanbridge/pkg/broadcast"
)

// DefaultDebounce keeps a slider drag from producing one cloud call per tick.
const DefaultDebounce = 500 * time.Millisecond

const commandTimeout = 45 * time.Second

type sender interface {
	SendCommand(ctx context.Context, cmd model.Command) (*model.CommandResponse, error)
}

type refresher interface {
	RefreshOne(ctx context.Context, deviceID string) error
}

type tokenGuard interface {
	EnsureValid(ctx context.Context) error
}

type pendingKey struct {
	deviceID string
	kind     model.ControlKind
}

type pendingEntry struct {
	seq   uint64
	timer *time.Timer
}

type Dispatcher struct {
	client  sender
	rec     refresher
	guard   tokenGuard
	notices *broadcast.Latest[string]
	delay   time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	seq     uint64
	pending map[pendingKey]*pendingEntry
	closed  bool
}

func New(client sender, rec refresher, guard tokenGuard, notices *broadcast.Latest[string], delay time.Duration) *Dispatcher {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Dispatcher{
		client:  client,
		rec:     rec,
		guard:   guard,
		notices: notices,
		delay:   delay,
		logger:  zap.L(),
		pending: make(map[pendingKey]*pendingEntry),
	}
}

// Submit schedules a command after the debounce window. A newer submission
// for the same (device, control) pair replaces the pending one; the displaced
// command is never sent. Out-of-range values fail immediately.
func (d *Dispatcher) Submit(cmd model.Command) error {
	if cmd.DeviceID == "" {
		return model.ErrBadCommandValue
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	key := pendingKey{deviceID: cmd.DeviceID, kind: cmd.Kind}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("dispatcher closed")
	}

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	d.seq++
	entry := &pendingEntry{seq: d.seq}
	seq := d.seq
	entry.timer = time.AfterFunc(d.delay, func() {
		d.fire(key, seq, cmd)
	})
	d.pending[key] = entry
	return nil
}

// Close stops all pending timers. Commands already past their window still
// complete.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, entry := range d.pending {
		entry.timer.Stop()
		delete(d.pending, key)
	}
}

// fire runs when a debounce window elapses without a superseding submission.
// A stale timer that lost the race to Stop gives up here via the seq check.
func (d *Dispatcher) fire(key pendingKey, seq uint64, cmd model.Command) {
	d.mu.Lock()
	entry, ok := d.pending[key]
	if !ok || entry.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	ctx := contxt.NewContext(commandTimeout)

	if _, err := d.client.SendCommand(ctx, cmd); err != nil {
		d.logger.Warn("command send failed",
			zap.String("device_id", cmd.DeviceID),
			zap.String("control", string(cmd.Kind)),
			zap.Error(err))
		d.notify(err)
		if errors.Is(err, cloud.ErrUnauthorized) {
			if err := d.guard.EnsureValid(ctx); err != nil {
				d.logger.Warn("token refresh after unauthorized failed", zap.Error(err))
			}
		}
	} else {
		d.logger.Debug("command sent",
			zap.String("device_id", cmd.DeviceID),
			zap.String("control", string(cmd.Kind)))
	}

	// The ack carries no device state; a pull is mandatory either way.
	if err := d.rec.RefreshOne(ctx, cmd.DeviceID); err != nil {
		d.logger.Warn("post-command refresh failed",
			zap.String("device_id", cmd.DeviceID),
			zap.Error(err))
		d.notify(err)
	}
}

// notify publishes the user-visible wording for an error, if a notice feed is
// wired.
func (d *Dispatcher) notify(err error) {
	if d.notices == nil {
		return
	}
	var ce *cloud.Error
	if errors.As(err, &ce) {
		d.notices.Publish(ce.Message())
		return
	}
	d.notices.Publish("Unknown error. Please try again.")
}
