package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"registration-system/broadcast"
	"registration-system/models"
	"registration-system/reconcile"
)

// SettingsFetcher loads the decoded settings map for snapshots.
type SettingsFetcher func(ctx context.Context) (map[string]any, error)

// Hub owns the dashboard WebSocket sessions. Each session gets the bus
// event stream filtered to its category; on attach it first receives a
// snapshot built from a server-resident Reconciler so it never needs a
// second fetch before rendering.
//
// There is no replay: a session that reconnects gets a fresh snapshot
// and the live stream from that point on.
type Hub struct {
	bus      *broadcast.Bus
	fetch    reconcile.Fetcher
	settings SettingsFetcher

	opts Options

	mu       sync.Mutex
	views    map[string]*reconcile.Reconciler
	sessions map[string]*Session
	closed   bool
}

// Options tunes session behaviour.
type Options struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	// SnapshotOnAttach controls whether a fresh session gets the full
	// state frame before live events. Disable only when clients fetch
	// the list themselves over HTTP first.
	SnapshotOnAttach bool
}

func NewHub(bus *broadcast.Bus, fetch reconcile.Fetcher, settings SettingsFetcher, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Hub{
		bus:      bus,
		fetch:    fetch,
		settings: settings,
		opts:     opts,
		views:    make(map[string]*reconcile.Reconciler),
		sessions: make(map[string]*Session),
	}
}

// View returns the shared reconciled view for a category, creating and
// priming it on first use. The view stays subscribed to the bus, so
// subsequent snapshots are served from memory.
func (h *Hub) View(ctx context.Context, category string) (*reconcile.Reconciler, error) {
	h.mu.Lock()
	if view, ok := h.views[category]; ok {
		h.mu.Unlock()
		return view, nil
	}
	h.mu.Unlock()

	view := reconcile.New(category)
	settings, err := h.settings(ctx)
	if err != nil {
		return nil, err
	}
	if err := view.Resync(ctx, h.fetch, settings); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.views[category]; ok {
		// Lost the race; use the one that is already subscribed.
		return existing, nil
	}
	h.views[category] = view

	sub := h.bus.Subscribe(category)
	go func() {
		for event := range sub.C {
			view.Apply(event)
		}
	}()
	return view, nil
}

// Snapshot builds the attach payload for one category.
func (h *Hub) Snapshot(ctx context.Context, category string) (json.RawMessage, error) {
	view, err := h.View(ctx, category)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"registrations": view.Snapshot(),
		"stats":         view.Stats(),
		"settings":      view.Settings(),
	})
}

// Attach registers a connection and starts its pumps. It returns once
// the session is running; the session removes itself on disconnect.
func (h *Hub) Attach(ctx context.Context, conn Conn, category string) (*Session, error) {
	// The session subscribes to the bus before the snapshot is taken.
	// An event published in between is queued behind the snapshot
	// instead of falling into a gap; a duplicate apply on the client
	// is harmless.
	session := newSession(h, conn, category)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		session.Close()
		return nil, context.Canceled
	}
	h.sessions[session.ID] = session
	total := len(h.sessions)
	h.mu.Unlock()

	if h.opts.SnapshotOnAttach {
		snapshot, err := h.Snapshot(ctx, category)
		if err != nil {
			session.Close()
			return nil, err
		}
		session.sendEvent("snapshot", snapshot)
	}
	session.Start()

	slog.Info("dashboard connected", "session", session.ID, "category", category, "sessions", total)
	return session, nil
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[id]; ok {
		delete(h.sessions, id)
		slog.Info("dashboard disconnected", "session", id, "sessions", len(h.sessions))
	}
}

// SessionCount reports how many dashboard sessions are attached.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// wireMessage is the frame pushed to dashboard clients.
type wireMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func encodeEvent(event models.ChangeEvent) ([]byte, error) {
	return json.Marshal(wireMessage{
		Event:   event.Kind.WireName(),
		Payload: event.Payload(),
	})
}
