package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"registration-system/broadcast"
	"registration-system/internal/status"
	"registration-system/models"
	"registration-system/monitoring"
	"registration-system/store"
)

// Debounce key kinds. One key space per operation so a status toggle and
// a remark edit on the same record never suppress each other.
const (
	kindCreate  = "create"
	kindStatus  = "status"
	kindRemark  = "remark"
	kindDelete  = "delete"
	kindClear   = "clear"
	kindSetting = "setting"
)

// Dispatcher applies validated mutation commands to the store and
// publishes exactly one ChangeEvent per successful, non-debounced
// mutation. Nothing is published on failure.
//
// Debounce policy: create/delete/clear requests inside the window are
// dropped entirely (double-submit protection). Status, remark and
// setting updates inside the window are still written (last-write-wins
// in the store) but produce no event, so a keystroke storm cannot flood
// the broadcast channel; dashboards converge on the next event or resync.
type Dispatcher struct {
	store   store.RegistrationStore
	bus     *broadcast.Bus
	guard   DebounceGuard
	timeout time.Duration
}

func NewDispatcher(st store.RegistrationStore, bus *broadcast.Bus, guard DebounceGuard, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		store:   st,
		bus:     bus,
		guard:   guard,
		timeout: timeout,
	}
}

// Create registers a new attendee. All three identity fields are
// required; the store assigns id and timestamps.
func (d *Dispatcher) Create(ctx context.Context, studentName, phoneNumber, programme, category string) (*models.Registration, bool, error) {
	studentName = strings.TrimSpace(studentName)
	phoneNumber = strings.TrimSpace(phoneNumber)
	programme = strings.TrimSpace(programme)

	if studentName == "" || phoneNumber == "" || programme == "" {
		monitoring.TrackMutation(kindCreate, "invalid")
		return nil, false, fmt.Errorf("%w: studentName, phoneNumber and programme are required", status.ErrValidation)
	}

	// A repeated submit of the same phone number inside the window is a
	// duplicate, not a second attendee.
	if !d.guard.Allow(ctx, kindCreate, phoneNumber+":"+category) {
		monitoring.TrackDebounced(kindCreate)
		return nil, true, nil
	}

	reg, err := d.callStore(ctx, kindCreate, func(ctx context.Context) (*models.Registration, error) {
		return d.store.Create(ctx, studentName, phoneNumber, programme, category)
	})
	if err != nil {
		// Nothing was persisted, so the window must not outlive the
		// failure: the user's resubmit is a retry, not a duplicate.
		d.guard.Forget(ctx, kindCreate, phoneNumber+":"+category)
		return nil, false, err
	}

	d.bus.Publish(models.ChangeEvent{
		Kind:         models.EventCreated,
		Registration: reg,
		Category:     reg.Category,
	})
	return reg, false, nil
}

// SetStatus moves a registration to a new status from the configured
// vocabulary. First entry into an in-progress status stamps timeIn in
// the store; re-entering preserves the original stamp.
func (d *Dispatcher) SetStatus(ctx context.Context, id, newStatus string) (*models.Registration, bool, error) {
	allowed, err := d.statusVocabulary(ctx)
	if err != nil {
		return nil, false, err
	}
	if !slices.Contains(allowed, newStatus) {
		monitoring.TrackMutation(kindStatus, "invalid")
		return nil, false, fmt.Errorf("%w: unknown status %q", status.ErrValidation, newStatus)
	}

	debounced := !d.guard.Allow(ctx, kindStatus, id)

	reg, err := d.callStore(ctx, kindStatus, func(ctx context.Context) (*models.Registration, error) {
		return d.store.UpdateStatus(ctx, id, newStatus)
	})
	if err != nil {
		if !debounced {
			// The window this request opened covers a write that never
			// happened; drop it so the retry publishes its event.
			d.guard.Forget(ctx, kindStatus, id)
		}
		return nil, false, err
	}

	if debounced {
		monitoring.TrackDebounced(kindStatus)
		return reg, true, nil
	}

	d.bus.Publish(models.ChangeEvent{
		Kind:         models.EventUpdated,
		Registration: reg,
		Category:     reg.Category,
	})
	return reg, false, nil
}

// SetRemark replaces the free-text remark. Empty clears it.
func (d *Dispatcher) SetRemark(ctx context.Context, id, remark string) (*models.Registration, bool, error) {
	debounced := !d.guard.Allow(ctx, kindRemark, id)

	reg, err := d.callStore(ctx, kindRemark, func(ctx context.Context) (*models.Registration, error) {
		return d.store.UpdateRemark(ctx, id, remark)
	})
	if err != nil {
		if !debounced {
			d.guard.Forget(ctx, kindRemark, id)
		}
		return nil, false, err
	}

	if debounced {
		monitoring.TrackDebounced(kindRemark)
		return reg, true, nil
	}

	d.bus.Publish(models.ChangeEvent{
		Kind:         models.EventUpdated,
		Registration: reg,
		Category:     reg.Category,
	})
	return reg, false, nil
}

// Delete removes a registration. Deleting an absent id is a success with
// no event, which makes retries harmless.
func (d *Dispatcher) Delete(ctx context.Context, id string) (bool, error) {
	if !d.guard.Allow(ctx, kindDelete, id) {
		monitoring.TrackDebounced(kindDelete)
		return true, nil
	}

	_, err := d.callStore(ctx, kindDelete, func(ctx context.Context) (*models.Registration, error) {
		return nil, d.store.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			// An absent id is treated as already deleted, so the window
			// it opened stands and a double click is still suppressed.
			slog.Info("delete of missing registration ignored", "id", id)
			return false, nil
		}
		d.guard.Forget(ctx, kindDelete, id)
		return false, err
	}

	d.bus.Publish(models.ChangeEvent{
		Kind: models.EventDeleted,
		ID:   id,
	})
	return false, nil
}

// Clear wipes all registrations, or one category's worth when scoped.
func (d *Dispatcher) Clear(ctx context.Context, category string) (bool, error) {
	scope := category
	if scope == "" {
		scope = "all"
	}
	if !d.guard.Allow(ctx, kindClear, scope) {
		monitoring.TrackDebounced(kindClear)
		return true, nil
	}

	_, err := d.callStore(ctx, kindClear, func(ctx context.Context) (*models.Registration, error) {
		return nil, d.store.ClearAll(ctx, category)
	})
	if err != nil {
		d.guard.Forget(ctx, kindClear, scope)
		return false, err
	}

	d.bus.Publish(models.ChangeEvent{
		Kind:     models.EventCleared,
		Category: category,
	})
	return false, nil
}

// SetSetting validates and persists one settings key. Structured values
// are serialized at the store boundary and broadcast in decoded form.
func (d *Dispatcher) SetSetting(ctx context.Context, key string, value any) (bool, error) {
	if !models.KnownSettingKey(key) {
		monitoring.TrackMutation(kindSetting, "invalid")
		return false, fmt.Errorf("%w: unknown setting key %q", status.ErrValidation, key)
	}

	encoded, err := models.EncodeSettingValue(key, value)
	if err != nil {
		monitoring.TrackMutation(kindSetting, "invalid")
		return false, fmt.Errorf("%w: %v", status.ErrValidation, err)
	}
	if key == models.KeyMaxCapacity {
		if n, ok := models.DecodeSettingValue(key, encoded).(int); !ok || n < 1 {
			monitoring.TrackMutation(kindSetting, "invalid")
			return false, fmt.Errorf("%w: max_capacity must be a positive integer", status.ErrValidation)
		}
	}

	debounced := !d.guard.Allow(ctx, kindSetting, key)

	_, err = d.callStore(ctx, kindSetting, func(ctx context.Context) (*models.Registration, error) {
		return nil, d.store.SetSetting(ctx, key, encoded)
	})
	if err != nil {
		if !debounced {
			d.guard.Forget(ctx, kindSetting, key)
		}
		return false, err
	}

	if debounced {
		monitoring.TrackDebounced(kindSetting)
		return true, nil
	}

	d.bus.Publish(models.ChangeEvent{
		Kind:         models.EventSettingChanged,
		SettingKey:   key,
		SettingValue: models.DecodeSettingValue(key, encoded),
	})
	return false, nil
}

// List fetches the current registrations, newest first.
func (d *Dispatcher) List(ctx context.Context, category string) ([]models.Registration, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	regs, err := d.store.List(ctx, category)
	monitoring.TrackStoreCall("list", time.Since(start))
	if err != nil {
		return nil, mapTimeout(err)
	}
	return regs, nil
}

// Settings fetches and decodes the full settings map.
func (d *Dispatcher) Settings(ctx context.Context) (map[string]any, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := d.store.GetAllSettings(ctx)
	monitoring.TrackStoreCall("settings", time.Since(start))
	if err != nil {
		return nil, mapTimeout(err)
	}
	return models.DecodeSettings(raw), nil
}

func (d *Dispatcher) statusVocabulary(ctx context.Context) ([]string, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	raw, err := d.store.GetSetting(ctx, models.KeyStatuses)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return models.StatusValues(models.DefaultStatuses), nil
		}
		return nil, mapTimeout(err)
	}
	return models.StatusValues(models.DecodeSettingValue(models.KeyStatuses, raw)), nil
}

// callStore runs one store operation under the configured timeout and
// records its outcome. The mutation is only considered applied when the
// store confirms it.
func (d *Dispatcher) callStore(ctx context.Context, operation string, fn func(context.Context) (*models.Registration, error)) (*models.Registration, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	reg, err := fn(ctx)
	monitoring.TrackStoreCall(operation, time.Since(start))

	if err != nil {
		err = mapTimeout(err)
		outcome := "error"
		if errors.Is(err, status.ErrTimeout) {
			outcome = "timeout"
		}
		monitoring.TrackMutation(operation, outcome)
		slog.Error("store call failed", "operation", operation, "error", err)
		return nil, err
	}

	monitoring.TrackMutation(operation, "success")
	return reg, nil
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", status.ErrTimeout, err)
	}
	return err
}
