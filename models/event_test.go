package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventKind_WireName(t *testing.T) {
	assert.Equal(t, "new-registration", EventCreated.WireName())
	assert.Equal(t, "registration-updated", EventUpdated.WireName())
	assert.Equal(t, "registration-deleted", EventDeleted.WireName())
	assert.Equal(t, "registrations-cleared", EventCleared.WireName())
	assert.Equal(t, "settings-updated", EventSettingChanged.WireName())
}

func TestChangeEvent_Payload(t *testing.T) {
	reg := &Registration{ID: "a", StudentName: "Alice"}

	assert.Equal(t, reg, ChangeEvent{Kind: EventCreated, Registration: reg}.Payload())
	assert.Equal(t, reg, ChangeEvent{Kind: EventUpdated, Registration: reg}.Payload())

	assert.Equal(t, map[string]any{"id": "a"}, ChangeEvent{Kind: EventDeleted, ID: "a"}.Payload())
	assert.Equal(t, map[string]any{"category": "science"}, ChangeEvent{Kind: EventCleared, Category: "science"}.Payload())
	assert.Equal(t,
		map[string]any{"key": KeyMaxCapacity, "value": 80},
		ChangeEvent{Kind: EventSettingChanged, SettingKey: KeyMaxCapacity, SettingValue: 80}.Payload())
}

func TestChangeEvent_Matches(t *testing.T) {
	unscoped := ChangeEvent{Kind: EventDeleted, ID: "a"}
	scoped := ChangeEvent{Kind: EventCreated, Category: "science"}

	assert.True(t, unscoped.Matches(""))
	assert.True(t, unscoped.Matches("science"))

	assert.True(t, scoped.Matches(""))
	assert.True(t, scoped.Matches("science"))
	assert.False(t, scoped.Matches("business"))
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []string{"inside", "consulting"} {
		assert.True(t, IsInProgress(s), s)
		assert.True(t, IsTimeInStatus(s), s)
		assert.False(t, IsWaitingLike(s), s)
	}
	for _, s := range []string{"registered", "waiting", "urgent"} {
		assert.True(t, IsWaitingLike(s), s)
		assert.False(t, IsInProgress(s), s)
	}
	for _, s := range []string{"ended", "noanswer", "exited"} {
		assert.False(t, IsWaitingLike(s), s)
		assert.False(t, IsInProgress(s), s)
	}
}

func TestTierOrdering(t *testing.T) {
	assert.Equal(t, TierUrgent, Tier("urgent"))
	assert.Equal(t, TierActive, Tier("registered"))
	assert.Equal(t, TierActive, Tier("waiting"))
	assert.Equal(t, TierActive, Tier("inside"))
	assert.Equal(t, TierConsulting, Tier("consulting"))
	assert.Equal(t, TierDone, Tier("ended"))
	assert.Equal(t, TierDone, Tier("something-else"))
}
