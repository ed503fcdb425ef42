// Package udp listens for the status datagrams fans broadcast on the local
// subnet and publishes every successful decode to a last-value feed.
package udp

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fabex3d/fanbridge/internal/pkg/codec"
	"github.com/fabex3d/fanbridge/internal/pkg/config"
	"github.com/fabex3d/fanbridge/internal/pkg/model"
	"github.com/fabex3d/fanbridge/pkg/broadcast"
)

const (
	maxDatagram    = 4096
	rebindInterval = time.Second
)

type Listener struct {
	cfg    *config.UDPConfig
	feed   *broadcast.Latest[model.FanState]
	logger *zap.Logger

	mu   sync.Mutex
	conn *net.UDPConn
	done chan struct{}
}

func New(cfg *config.UDPConfig, feed *broadcast.Latest[model.FanState]) *Listener {
	return &Listener{
		cfg:    cfg,
		feed:   feed,
		logger: zap.L(),
	}
}

// Start binds the broadcast port and begins receiving. Calling Start on a
// listener that is already running is a no-op.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: l.cfg.Port})
	if err != nil {
		return err
	}
	l.conn = conn
	l.done = make(chan struct{})
	l.logger.Info("udp listener started", zap.Stringer("addr", conn.LocalAddr()))

	go l.receive(conn, l.done)
	return nil
}

// Stop closes the socket and waits for the receive loop to exit. Safe to call
// when not running, and safe to call more than once.
func (l *Listener) Stop() {
	l.mu.Lock()
	conn, done := l.conn, l.done
	l.conn, l.done = nil, nil
	l.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.Close()
	<-done
	l.logger.Info("udp listener stopped")
}

// Addr reports the bound address, nil when the listener is not running.
// Useful with port 0 where the kernel picks the port.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// restart closes the failed socket and rebinds. Returns nil when Stop won the
// race, which ends the receive loop.
func (l *Listener) restart(old *net.UDPConn) *net.UDPConn {
	_ = old.Close()
	for {
		l.mu.Lock()
		if l.conn != old {
			l.mu.Unlock()
			return nil
		}
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: l.cfg.Port})
		if err == nil {
			l.conn = conn
			l.mu.Unlock()
			l.logger.Info("udp listener restarted", zap.Stringer("addr", conn.LocalAddr()))
			return conn
		}
		l.mu.Unlock()
		l.logger.Warn("udp rebind failed", zap.Error(err))
		time.Sleep(rebindInterval)
	}
}

func (l *Listener) receive(conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, maxDatagram)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Receive failure: full restart, stop then start. Rebinds are
			// retried flat; failures here are rare and local.
			l.logger.Warn("udp receive failed, restarting listener", zap.Error(err))
			if conn = l.restart(conn); conn == nil {
				return
			}
			continue
		}

		state, err := codec.Decode(buf[:n])
		if err != nil {
			// Anything may broadcast on this port; drop quietly.
			l.logger.Debug("ignoring undecodable datagram",
				zap.Stringer("from", remote),
				zap.Error(err))
			continue
		}
		l.logger.Debug("fan status received",
			zap.String("device_id", state.DeviceID),
			zap.Stringer("from", remote))
		l.feed.Publish(state)
	}
}
