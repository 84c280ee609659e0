package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-system/broadcast"
	"registration-system/internal/status"
	"registration-system/models"
)

// fakeStore is an in-memory RegistrationStore for dispatcher tests.
type fakeStore struct {
	mu       sync.Mutex
	regs     []models.Registration
	settings map[string]string
	nextID   int

	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: make(map[string]string)}
}

func (f *fakeStore) Create(ctx context.Context, studentName, phoneNumber, programme, category string) (*models.Registration, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	reg := models.Registration{
		ID:          "reg" + strconv.Itoa(f.nextID),
		StudentName: studentName,
		PhoneNumber: phoneNumber,
		Programme:   programme,
		Category:    category,
		Status:      models.DefaultStatus,
		Timestamp:   time.Now(),
	}
	f.regs = append([]models.Registration{reg}, f.regs...)
	return &reg, nil
}

func (f *fakeStore) List(ctx context.Context, category string) ([]models.Registration, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if category == "" {
		return append([]models.Registration(nil), f.regs...), nil
	}
	var out []models.Registration
	for _, r := range f.regs {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id, newStatus string) (*models.Registration, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.regs {
		if f.regs[i].ID == id {
			f.regs[i].Status = newStatus
			if models.IsTimeInStatus(newStatus) && f.regs[i].TimeIn == nil {
				now := time.Now()
				f.regs[i].TimeIn = &now
			}
			reg := f.regs[i]
			return &reg, nil
		}
	}
	return nil, fmt.Errorf("%w: registration %s", status.ErrNotFound, id)
}

func (f *fakeStore) UpdateRemark(ctx context.Context, id, remark string) (*models.Registration, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.regs {
		if f.regs[i].ID == id {
			f.regs[i].Remark = remark
			reg := f.regs[i]
			return &reg, nil
		}
	}
	return nil, fmt.Errorf("%w: registration %s", status.ErrNotFound, id)
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.regs {
		if f.regs[i].ID == id {
			f.regs = append(f.regs[:i], f.regs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: registration %s", status.ErrNotFound, id)
}

func (f *fakeStore) ClearAll(ctx context.Context, category string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if category == "" {
		f.regs = nil
		return nil
	}
	var kept []models.Registration
	for _, r := range f.regs {
		if r.Category != category {
			kept = append(kept, r)
		}
	}
	f.regs = kept
	return nil
}

func (f *fakeStore) GetSetting(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.settings[key]
	if !ok {
		return "", fmt.Errorf("%w: setting %s", status.ErrNotFound, key)
	}
	return v, nil
}

func (f *fakeStore) SetSetting(ctx context.Context, key, value string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.settings[key] = value
	return nil
}

func (f *fakeStore) GetAllSettings(ctx context.Context) (map[string]string, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]string, len(f.settings))
	for k, v := range f.settings {
		out[k] = v
	}
	return out, nil
}

// collectEvents drains a bus subscription into a slice for assertions.
func collectEvents(t *testing.T, bus *broadcast.Bus) func() []models.ChangeEvent {
	t.Helper()

	sub := bus.Subscribe("")
	var mu sync.Mutex
	var events []models.ChangeEvent
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range sub.C {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}
	}()

	return func() []models.ChangeEvent {
		sub.Close()
		<-done
		mu.Lock()
		defer mu.Unlock()
		return append([]models.ChangeEvent(nil), events...)
	}
}

func newTestDispatcher(st *fakeStore, window time.Duration) (*Dispatcher, *broadcast.Bus) {
	bus := broadcast.NewBus(16)
	return NewDispatcher(st, bus, NewMemoryDebounce(window), time.Second), bus
}

func TestDispatcher_CreatePublishesOneEvent(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, 0)
	drain := collectEvents(t, bus)

	reg, debounced, err := d.Create(context.Background(), "Alice", "12345678", "Computer Science", "science")
	require.NoError(t, err)
	assert.False(t, debounced)
	require.NotNil(t, reg)
	assert.Equal(t, models.DefaultStatus, reg.Status)
	assert.Equal(t, "science", reg.Category)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCreated, events[0].Kind)
	assert.Equal(t, reg.ID, events[0].Registration.ID)
	assert.Equal(t, "science", events[0].Category)
}

func TestDispatcher_CreateValidation(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, 0)
	drain := collectEvents(t, bus)

	cases := []struct {
		name, phone, programme string
	}{
		{"", "123", "CS"},
		{"Alice", "", "CS"},
		{"Alice", "123", ""},
		{"   ", "123", "CS"},
	}
	for _, c := range cases {
		_, _, err := d.Create(context.Background(), c.name, c.phone, c.programme, "")
		assert.ErrorIs(t, err, status.ErrValidation)
	}

	assert.Empty(t, drain())
	assert.Empty(t, st.regs)
}

func TestDispatcher_CreateDoubleSubmitSuppressed(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, time.Minute)
	drain := collectEvents(t, bus)

	reg, debounced, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	require.NoError(t, err)
	assert.False(t, debounced)
	require.NotNil(t, reg)

	// Same phone again inside the window: no record, no event.
	reg2, debounced, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	require.NoError(t, err)
	assert.True(t, debounced)
	assert.Nil(t, reg2)

	assert.Len(t, st.regs, 1)
	assert.Len(t, drain(), 1)
}

func TestDispatcher_CreateSamePhoneDifferentCategory(t *testing.T) {
	st := newFakeStore()
	d, _ := newTestDispatcher(st, time.Minute)

	_, debounced, err := d.Create(context.Background(), "Alice", "12345678", "CS", "science")
	require.NoError(t, err)
	assert.False(t, debounced)

	_, debounced, err = d.Create(context.Background(), "Alice", "12345678", "CS", "business")
	require.NoError(t, err)
	assert.False(t, debounced)

	assert.Len(t, st.regs, 2)
}

func TestDispatcher_SetStatusPublishesUpdate(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, 0)

	reg, _, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	updated, debounced, err := d.SetStatus(context.Background(), reg.ID, "waiting")
	require.NoError(t, err)
	assert.False(t, debounced)
	assert.Equal(t, "waiting", updated.Status)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUpdated, events[0].Kind)
	assert.Equal(t, "waiting", events[0].Registration.Status)
}

func TestDispatcher_SetStatusUnknownStatusRejected(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, 0)

	reg, _, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	_, _, err = d.SetStatus(context.Background(), reg.ID, "teleported")
	assert.ErrorIs(t, err, status.ErrValidation)

	assert.Empty(t, drain())
	assert.Equal(t, models.DefaultStatus, st.regs[0].Status)
}

func TestDispatcher_SetStatusStampsTimeInOnce(t *testing.T) {
	st := newFakeStore()
	d, _ := newTestDispatcher(st, 0)
	ctx := context.Background()

	reg, _, err := d.Create(ctx, "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	inside, _, err := d.SetStatus(ctx, reg.ID, "inside")
	require.NoError(t, err)
	require.NotNil(t, inside.TimeIn)
	first := *inside.TimeIn

	_, _, err = d.SetStatus(ctx, reg.ID, "waiting")
	require.NoError(t, err)

	again, _, err := d.SetStatus(ctx, reg.ID, "inside")
	require.NoError(t, err)
	require.NotNil(t, again.TimeIn)
	assert.Equal(t, first, *again.TimeIn)
}

func TestDispatcher_DebouncedUpdateWritesButStaysSilent(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, time.Minute)

	reg, _, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	// First update: written and broadcast.
	_, debounced, err := d.SetStatus(context.Background(), reg.ID, "waiting")
	require.NoError(t, err)
	assert.False(t, debounced)

	// Second update inside the window: written, not broadcast.
	updated, debounced, err := d.SetStatus(context.Background(), reg.ID, "urgent")
	require.NoError(t, err)
	assert.True(t, debounced)
	assert.Equal(t, "urgent", updated.Status)

	// The store reflects the second value; exactly one event went out.
	assert.Equal(t, "urgent", st.regs[0].Status)
	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, "waiting", events[0].Registration.Status)
}

func TestDispatcher_SetRemark(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, 0)

	reg, _, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	updated, debounced, err := d.SetRemark(context.Background(), reg.ID, "VIP guest")
	require.NoError(t, err)
	assert.False(t, debounced)
	assert.Equal(t, "VIP guest", updated.Remark)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUpdated, events[0].Kind)
}

func TestDispatcher_DeleteIsIdempotent(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, 0)

	reg, _, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	debounced, err := d.Delete(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.False(t, debounced)

	// Absent id: success, no event.
	debounced, err = d.Delete(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, debounced)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventDeleted, events[0].Kind)
	assert.Equal(t, reg.ID, events[0].ID)
}

func TestDispatcher_DeleteDoubleClickSuppressed(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, time.Minute)

	reg, _, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	debounced, err := d.Delete(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.False(t, debounced)

	debounced, err = d.Delete(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.True(t, debounced)

	assert.Len(t, drain(), 1)
}

func TestDispatcher_ClearScoped(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, 0)
	ctx := context.Background()

	_, _, err := d.Create(ctx, "Alice", "111", "CS", "science")
	require.NoError(t, err)
	_, _, err = d.Create(ctx, "Bob", "222", "Law", "business")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	debounced, err := d.Clear(ctx, "science")
	require.NoError(t, err)
	assert.False(t, debounced)

	require.Len(t, st.regs, 1)
	assert.Equal(t, "business", st.regs[0].Category)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCleared, events[0].Kind)
	assert.Equal(t, "science", events[0].Category)
}

func TestDispatcher_ClearAll(t *testing.T) {
	st := newFakeStore()
	d, _ := newTestDispatcher(st, 0)
	ctx := context.Background()

	_, _, err := d.Create(ctx, "Alice", "111", "CS", "science")
	require.NoError(t, err)
	_, _, err = d.Create(ctx, "Bob", "222", "Law", "")
	require.NoError(t, err)

	_, err = d.Clear(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, st.regs)
}

func TestDispatcher_SetSetting(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, 0)
	drain := collectEvents(t, bus)

	debounced, err := d.SetSetting(context.Background(), models.KeyEventName, "Open Day 2025")
	require.NoError(t, err)
	assert.False(t, debounced)
	assert.Equal(t, "Open Day 2025", st.settings[models.KeyEventName])

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSettingChanged, events[0].Kind)
	assert.Equal(t, models.KeyEventName, events[0].SettingKey)
	assert.Equal(t, "Open Day 2025", events[0].SettingValue)
}

func TestDispatcher_SetSettingRejectsUnknownKey(t *testing.T) {
	st := newFakeStore()
	d, _ := newTestDispatcher(st, 0)

	_, err := d.SetSetting(context.Background(), "favourite_color", "blue")
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestDispatcher_SetSettingRejectsBadCapacity(t *testing.T) {
	st := newFakeStore()
	d, _ := newTestDispatcher(st, 0)
	ctx := context.Background()

	for _, v := range []any{0, -3, "lots"} {
		_, err := d.SetSetting(ctx, models.KeyMaxCapacity, v)
		assert.ErrorIs(t, err, status.ErrValidation, "value %v", v)
	}

	_, err := d.SetSetting(ctx, models.KeyMaxCapacity, 120)
	require.NoError(t, err)
	assert.Equal(t, "120", st.settings[models.KeyMaxCapacity])
}

func TestDispatcher_StoreFailurePublishesNothing(t *testing.T) {
	st := newFakeStore()
	st.failWith = fmt.Errorf("%w: backend down", status.ErrStore)
	d, bus := newTestDispatcher(st, 0)
	drain := collectEvents(t, bus)

	_, _, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	assert.ErrorIs(t, err, status.ErrStore)

	assert.Empty(t, drain())
}

func TestDispatcher_FailedCreateDoesNotDebounceRetry(t *testing.T) {
	st := newFakeStore()
	st.failWith = fmt.Errorf("%w: backend down", status.ErrStore)
	d, bus := newTestDispatcher(st, time.Minute)
	drain := collectEvents(t, bus)
	ctx := context.Background()

	_, debounced, err := d.Create(ctx, "Alice", "12345678", "CS", "")
	assert.ErrorIs(t, err, status.ErrStore)
	assert.False(t, debounced)

	// The failed attempt opened no window: the immediate resubmit is
	// applied, and it lands in the store.
	st.failWith = nil
	reg, debounced, err := d.Create(ctx, "Alice", "12345678", "CS", "")
	require.NoError(t, err)
	assert.False(t, debounced)
	require.NotNil(t, reg)
	require.Len(t, st.regs, 1)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCreated, events[0].Kind)
}

func TestDispatcher_FailedStatusUpdateRetryStillPublishes(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, time.Minute)
	ctx := context.Background()

	reg, _, err := d.Create(ctx, "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	st.failWith = fmt.Errorf("%w: backend down", status.ErrStore)
	_, _, err = d.SetStatus(ctx, reg.ID, "waiting")
	assert.ErrorIs(t, err, status.ErrStore)

	// The retry is a fresh accepted mutation, so its event goes out
	// instead of being swallowed by a window the failure opened.
	st.failWith = nil
	updated, debounced, err := d.SetStatus(ctx, reg.ID, "waiting")
	require.NoError(t, err)
	assert.False(t, debounced)
	assert.Equal(t, "waiting", updated.Status)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventUpdated, events[0].Kind)
	assert.Equal(t, "waiting", events[0].Registration.Status)
}

func TestDispatcher_FailedDeleteRetrySucceeds(t *testing.T) {
	st := newFakeStore()
	d, bus := newTestDispatcher(st, time.Minute)
	ctx := context.Background()

	reg, _, err := d.Create(ctx, "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	drain := collectEvents(t, bus)

	st.failWith = fmt.Errorf("%w: backend down", status.ErrStore)
	_, err = d.Delete(ctx, reg.ID)
	assert.ErrorIs(t, err, status.ErrStore)

	st.failWith = nil
	debounced, err := d.Delete(ctx, reg.ID)
	require.NoError(t, err)
	assert.False(t, debounced)
	assert.Empty(t, st.regs)

	events := drain()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventDeleted, events[0].Kind)
}

func TestDispatcher_StoreTimeoutMapped(t *testing.T) {
	st := newFakeStore()
	st.failWith = context.DeadlineExceeded
	d, _ := newTestDispatcher(st, 0)

	_, _, err := d.Create(context.Background(), "Alice", "12345678", "CS", "")
	assert.ErrorIs(t, err, status.ErrTimeout)
}

func TestDispatcher_StatusVocabularyFromSettings(t *testing.T) {
	st := newFakeStore()
	encoded, err := models.EncodeSettingValue(models.KeyStatuses, []models.StatusOption{
		{Value: "open", Label: "Open"},
		{Value: "closed", Label: "Closed"},
	})
	require.NoError(t, err)
	st.settings[models.KeyStatuses] = encoded

	d, _ := newTestDispatcher(st, 0)
	ctx := context.Background()

	reg, _, err := d.Create(ctx, "Alice", "12345678", "CS", "")
	require.NoError(t, err)

	_, _, err = d.SetStatus(ctx, reg.ID, "open")
	require.NoError(t, err)

	// The default vocabulary no longer applies once overridden.
	_, _, err = d.SetStatus(ctx, reg.ID, "waiting")
	assert.ErrorIs(t, err, status.ErrValidation)
}
