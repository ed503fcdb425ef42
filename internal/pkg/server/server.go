// Package server exposes the device list over a local WebSocket feed. Clients
// get the current snapshot on connect, a devices frame after every merge, and
// error frames carrying user-visible messages. Clients may send command
// frames, which feed the same dispatcher as every other intake.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fabex3d/fanbridge/internal/pkg/config"
	"github.com/fabex3d/fanbridge/internal/pkg/model"
	"github.com/fabex3d/fanbridge/pkg/broadcast"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	sendQueueSize   = 8
)

type commandSubmitter interface {
	Submit(cmd model.Command) error
}

type deviceSource interface {
	Devices() []model.Device
}

// frame is the wire shape in both directions. Type selects which fields are
// meaningful: "devices" and "error" are outbound, "command" is inbound.
type frame struct {
	Type    string         `json:"type"`
	Devices []model.Device `json:"devices,omitempty"`
	Message string         `json:"message,omitempty"`

	DeviceID string            `json:"device_id,omitempty"`
	Control  model.ControlKind `json:"control,omitempty"`
	Value    json.RawMessage   `json:"value,omitempty"`
}

type Server struct {
	cfg       *config.FeedConfig
	source    deviceSource
	submitter commandSubmitter
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte

	httpServer *http.Server
}

func New(cfg *config.FeedConfig, source deviceSource, submitter commandSubmitter) *Server {
	s := &Server{
		cfg:       cfg,
		source:    source,
		submitter: submitter,
		logger:    zap.L(),
		upgrader: websocket.Upgrader{
			// Local bridge feed; the listener binds loopback by default.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]chan []byte),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// Run serves the feed until ctx is done, forwarding user-visible notices as
// error frames while it runs.
func (s *Server) Run(ctx context.Context, notices *broadcast.Latest[string]) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("feed listening", zap.String("addr", s.cfg.Addr))

	var noticeCh <-chan string
	if notices != nil {
		ch, cancel := notices.Subscribe()
		defer cancel()
		noticeCh = ch
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = s.httpServer.Shutdown(shutdownCtx)
			s.closeAll()
			return ctx.Err()
		case err := <-errCh:
			return err
		case msg, ok := <-noticeCh:
			if !ok {
				noticeCh = nil
				continue
			}
			s.broadcastFrame(frame{Type: "error", Message: msg})
		}
	}
}

// Send broadcasts a merged snapshot to every connected client. Satisfies the
// reconciler's sink contract.
func (s *Server) Send(_ context.Context, devices []model.Device) error {
	s.broadcastFrame(frame{Type: "devices", Devices: devices})
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	queue := make(chan []byte, sendQueueSize)
	s.mu.Lock()
	s.conns[conn] = queue
	s.mu.Unlock()
	s.logger.Debug("feed client connected", zap.String("remote", conn.RemoteAddr().String()))

	go s.writeLoop(conn, queue)

	// Current state straight away so a client never starts blank.
	s.enqueue(conn, queue, frame{Type: "devices", Devices: s.source.Devices()})

	s.readLoop(conn, queue)
}

func (s *Server) readLoop(conn *websocket.Conn, queue chan []byte) {
	defer s.drop(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.enqueue(conn, queue, frame{Type: "error", Message: "Malformed frame."})
			continue
		}
		if f.Type != "command" {
			s.enqueue(conn, queue, frame{Type: "error", Message: "Unknown frame type: " + f.Type})
			continue
		}

		req := model.CommandRequest{DeviceID: f.DeviceID, Control: f.Control, Value: f.Value}
		cmd, err := req.Command()
		if err == nil {
			err = s.submitter.Submit(cmd)
		}
		if err != nil {
			s.enqueue(conn, queue, frame{Type: "error", Message: err.Error()})
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, queue chan []byte) {
	for data := range queue {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.drop(conn)
			return
		}
	}
	_ = conn.Close()
}

func (s *Server) broadcastFrame(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Warn("frame marshal failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, queue := range s.conns {
		select {
		case queue <- data:
		default:
			// Queue full: the client is not draining; cut it loose.
			delete(s.conns, conn)
			close(queue)
		}
	}
}

func (s *Server) enqueue(conn *websocket.Conn, queue chan []byte, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Warn("frame marshal failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn]; !ok {
		return
	}
	select {
	case queue <- data:
	default:
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	queue, ok := s.conns[conn]
	if ok {
		delete(s.conns, conn)
		close(queue)
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, queue := range s.conns {
		delete(s.conns, conn)
		close(queue)
		_ = conn.Close()
	}
}
