package reconcile

import (
	"context"
	"sync"

	"registration-system/models"
)

// Fetcher loads the authoritative registration list, used for the
// initial load and for resynchronization after a missed-event gap.
type Fetcher func(ctx context.Context, category string) ([]models.Registration, error)

// Reconciler is the dashboard-session view of the registration queue:
// an ordered newest-first list kept consistent with the server-confirmed
// state by applying ChangeEvents, plus derived statistics recomputed on
// every change. The server keeps one per WebSocket snapshot scope and a
// Go dashboard client keeps one per open session.
//
// The store remains the single source of truth; this view is an
// eventually-consistent projection. An update for an unknown id is
// ignored, not synthesized — only the next Resync can fill such a gap.
type Reconciler struct {
	mu       sync.RWMutex
	category string
	list     []models.Registration
	settings map[string]any
	stats    models.DashboardStats
}

func New(category string) *Reconciler {
	r := &Reconciler{
		category: category,
		settings: map[string]any{},
	}
	r.stats = computeStats(r.list, r.settings)
	return r
}

func (r *Reconciler) Category() string {
	return r.category
}

// Resync replaces the local view with a fresh authoritative fetch.
// Required after any reconnect, since the broadcast channel replays
// nothing.
func (r *Reconciler) Resync(ctx context.Context, fetch Fetcher, settings map[string]any) error {
	list, err := fetch(ctx, r.category)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = list
	if settings != nil {
		r.settings = settings
	}
	r.recompute()
	return nil
}

// Apply folds one ChangeEvent into the local view. Events scoped to a
// different category are ignored; every apply path is idempotent.
func (r *Reconciler) Apply(event models.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Kind {
	case models.EventCreated:
		if event.Registration == nil || !event.Matches(r.category) {
			return
		}
		if r.indexOf(event.Registration.ID) >= 0 {
			return
		}
		r.list = append([]models.Registration{*event.Registration}, r.list...)

	case models.EventUpdated:
		if event.Registration == nil || !event.Matches(r.category) {
			return
		}
		idx := r.indexOf(event.Registration.ID)
		if idx < 0 {
			// Missed the create; the next resync resolves it.
			return
		}
		r.list[idx] = *event.Registration

	case models.EventDeleted:
		idx := r.indexOf(event.ID)
		if idx < 0 {
			return
		}
		r.list = append(r.list[:idx], r.list[idx+1:]...)

	case models.EventCleared:
		r.applyClear(event.Category)

	case models.EventSettingChanged:
		r.settings[event.SettingKey] = event.SettingValue

	default:
		return
	}

	r.recompute()
}

func (r *Reconciler) applyClear(category string) {
	switch {
	case category == "":
		r.list = nil
	case r.category == "":
		kept := r.list[:0]
		for _, reg := range r.list {
			if reg.Category != category {
				kept = append(kept, reg)
			}
		}
		r.list = kept
	case r.category == category:
		r.list = nil
	}
	// A clear scoped to a different category leaves this view alone.
}

// Snapshot returns a copy of the current list, newest first.
func (r *Reconciler) Snapshot() []models.Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Registration, len(r.list))
	copy(out, r.list)
	return out
}

// Stats returns the derived statistics for the current view.
func (r *Reconciler) Stats() models.DashboardStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Settings returns the locally cached settings map.
func (r *Reconciler) Settings() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.settings))
	for k, v := range r.settings {
		out[k] = v
	}
	return out
}

// QueueView returns the list grouped into display tiers, arrival order
// preserved inside each tier. This is presentation only; the reconciled
// list itself keeps plain newest-first order.
func (r *Reconciler) QueueView() []models.Registration {
	view := r.Snapshot()
	stableSortByTier(view)
	return view
}

func (r *Reconciler) indexOf(id string) int {
	for i := range r.list {
		if r.list[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler) recompute() {
	r.stats = computeStats(r.list, r.settings)
}
