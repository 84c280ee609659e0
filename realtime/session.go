package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"registration-system/broadcast"
	"registration-system/monitoring"
)

// Conn is the subset of *websocket.Conn the session needs. Tests swap in
// an in-memory fake.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

// Session is one connected dashboard: a write pump with ping liveness, a
// read pump that only watches for disconnect, and a forward loop that
// relays bus events matching the session's category.
type Session struct {
	ID       string
	Category string

	hub  *Hub
	conn Conn
	sub  *broadcast.Subscription
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closeMu sync.Mutex
	closed  bool
}

func newSession(h *Hub, conn Conn, category string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:       uuid.NewString(),
		Category: category,
		hub:      h,
		conn:     conn,
		sub:      h.bus.Subscribe(category),
		send:     make(chan []byte, h.opts.SendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Session) Start() {
	monitoring.DashboardConnected()
	go s.writePump()
	go s.readPump()
	go s.forward()
}

// forward relays bus events to the send channel, dropping events scoped
// to a different category (client-side filtering baseline).
func (s *Session) forward() {
	for event := range s.sub.C {
		if !event.Matches(s.Category) {
			continue
		}
		data, err := encodeEvent(event)
		if err != nil {
			slog.Error("encode event failed", "session", s.ID, "kind", event.Kind, "error", err)
			continue
		}
		if !s.Send(data) {
			return
		}
	}
	// Bus closed the subscription (slow consumer or shutdown).
	s.Close()
}

func (s *Session) writePump() {
	interval := s.hub.opts.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(s.ctx, s.hub.opts.WriteTimeout)
			err := s.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Warn("dashboard write failed", "session", s.ID, "error", err)
				return
			}

		case <-ticker.C:
			// Liveness probe; a peer that misses the pong deadline is
			// treated as disconnected.
			pingCtx, cancel := context.WithTimeout(s.ctx, s.hub.opts.WriteTimeout)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Warn("dashboard ping failed", "session", s.ID, "error", err)
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// readPump drains the connection. Dashboards issue mutations over HTTP,
// so inbound frames are ignored; reading is still required to process
// control frames and to notice the peer going away.
func (s *Session) readPump() {
	defer s.Close()
	for {
		_, _, err := s.conn.Read(s.ctx)
		if err != nil {
			return
		}
	}
}

// Send queues a frame. A full buffer means the client stopped draining;
// it is closed rather than allowed to stall the pumps.
func (s *Session) Send(message []byte) bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}

	select {
	case s.send <- message:
		return true
	default:
		slog.Warn("send buffer full, dropping slow dashboard", "session", s.ID, "category", s.Category)
		go s.Close()
		return false
	}
}

func (s *Session) sendEvent(name string, payload json.RawMessage) {
	data, err := json.Marshal(wireMessage{Event: name, Payload: payload})
	if err != nil {
		slog.Error("encode frame failed", "session", s.ID, "event", name, "error", err)
		return
	}
	s.Send(data)
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Close tears the session down exactly once.
func (s *Session) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()
	s.sub.Close()
	close(s.send)
	_ = s.conn.Close(websocket.StatusNormalClosure, "")
	s.hub.detach(s.ID)
	monitoring.DashboardDisconnected()
}
