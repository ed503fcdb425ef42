// Package reconciler owns the authoritative device list. It merges identities
// from the cloud device list with statuses from the cloud, the UDP listener
// and the relay, then persists and forwards every successful merge.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fabex3d/fanbridge/internal/pkg/contxt"
	"github.com/fabex3d/fanbridge/internal/pkg/model"
	"github.com/fabex3d/fanbridge/pkg/broadcast"
)

const sideEffectTimeout = 10 * time.Second

type cloudClient interface {
	DeviceList(ctx context.Context) ([]model.Device, error)
	DeviceState(ctx context.Context, deviceID string) ([]model.DeviceStatus, error)
}

type cacheStore interface {
	Save(ctx context.Context, devices []model.Device) error
	Load(ctx context.Context) ([]model.Device, error)
}

// Sink receives a snapshot of the device list after every successful merge.
// Delivery is best-effort; a failing sink never fails the merge.
type Sink interface {
	Send(ctx context.Context, devices []model.Device) error
}

type Reconciler struct {
	client cloudClient
	cache  cacheStore
	logger *zap.Logger

	mu      sync.Mutex
	devices []model.Device
	sinks   []Sink
}

func New(client cloudClient, cache cacheStore) *Reconciler {
	return &Reconciler{
		client: client,
		cache:  cache,
		logger: zap.L(),
	}
}

// AddSink registers a snapshot consumer. Not safe to call once Run has
// started; wire sinks during startup.
func (r *Reconciler) AddSink(sink Sink) {
	r.sinks = append(r.sinks, sink)
}

// Seed loads the persisted list so the bridge serves last known state before
// the first cloud refresh lands.
func (r *Reconciler) Seed(ctx context.Context) error {
	devices, err := r.cache.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()

	r.logger.Info("device list seeded from cache", zap.Int("devices", len(devices)))
	return nil
}

// RefreshAll replaces the list with cloud identities overlaid with cloud
// statuses. List and states are fetched concurrently; if either fetch fails
// the list is left untouched.
func (r *Reconciler) RefreshAll(ctx context.Context) error {
	var (
		identities []model.Device
		statuses   []model.DeviceStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		identities, err = r.client.DeviceList(gctx)
		return err
	})
	g.Go(func() (err error) {
		statuses, err = r.client.DeviceState(gctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	byID := lo.KeyBy(statuses, func(s model.DeviceStatus) string { return s.DeviceID })
	merged := lo.Map(identities, func(d model.Device, _ int) model.Device {
		if status, ok := byID[d.DeviceID]; ok {
			return d.WithState(&status)
		}
		// A device with no status yet is still listed.
		return d.WithState(nil)
	})

	r.mu.Lock()
	r.devices = merged
	r.mu.Unlock()

	r.logger.Info("full refresh applied",
		zap.Int("devices", len(merged)),
		zap.Int("statuses", len(statuses)))
	r.persistAndForward()
	return nil
}

// RefreshOne merges fresh statuses for one device into the existing list.
// Identities are not touched; statuses for IDs not in the list are dropped.
func (r *Reconciler) RefreshOne(ctx context.Context, deviceID string) error {
	statuses, err := r.client.DeviceState(ctx, deviceID)
	if err != nil {
		return err
	}

	byID := lo.KeyBy(statuses, func(s model.DeviceStatus) string { return s.DeviceID })

	r.mu.Lock()
	applied := 0
	for i, d := range r.devices {
		if status, ok := byID[d.DeviceID]; ok {
			r.devices[i] = d.WithState(&status)
			applied++
		}
	}
	r.mu.Unlock()

	if applied == 0 {
		r.logger.Debug("refresh matched no known device", zap.String("device_id", deviceID))
		return nil
	}
	r.persistAndForward()
	return nil
}

// ApplyStatus merges a UDP decode into the list. The datagram does not carry
// online/offline, so the device's prior online flag is kept. Statuses for
// unknown device IDs are dropped.
func (r *Reconciler) ApplyStatus(state model.FanState) {
	r.mu.Lock()
	matched := false
	for i, d := range r.devices {
		if d.DeviceID != state.DeviceID {
			continue
		}
		wasOnline := d.State != nil && d.State.IsOnline
		r.devices[i] = d.WithState(state.Status(wasOnline))
		matched = true
		break
	}
	r.mu.Unlock()

	if !matched {
		r.logger.Debug("dropping status for unknown device", zap.String("device_id", state.DeviceID))
		return
	}
	r.persistAndForward()
}

// ApplyRelayList applies a list pushed by the relay, replacing the current
// list the same way a full cloud refresh does.
func (r *Reconciler) ApplyRelayList(devices []model.Device) {
	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()

	r.logger.Info("relay list applied", zap.Int("devices", len(devices)))
	r.persistAndForward()
}

// Devices returns a snapshot of the list. Statuses are shared immutable
// values; merges always swap pointers, never mutate in place.
func (r *Reconciler) Devices() []model.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]model.Device, len(r.devices))
	copy(snapshot, r.devices)
	return snapshot
}

// Run consumes the UDP status feed until ctx is done.
func (r *Reconciler) Run(ctx context.Context, feed *broadcast.Latest[model.FanState]) error {
	ch, cancel := feed.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state, ok := <-ch:
			if !ok {
				return nil
			}
			r.ApplyStatus(state)
		}
	}
}

// persistAndForward pushes the merged list to the cache and every sink. Both
// are idempotent, so re-delivery of an identical snapshot is harmless.
func (r *Reconciler) persistAndForward() {
	devices := r.Devices()
	ctx := contxt.NewContext(sideEffectTimeout)

	if err := r.cache.Save(ctx, devices); err != nil {
		r.logger.Warn("device cache save failed", zap.Error(err))
	}
	for _, sink := range r.sinks {
		if err := sink.Send(ctx, devices); err != nil {
			r.logger.Warn("sink delivery failed", zap.Error(err))
		}
	}
}
