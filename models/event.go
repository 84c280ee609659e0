package models

type EventKind string

const (
	EventCreated        EventKind = "created"
	EventUpdated        EventKind = "updated"
	EventDeleted        EventKind = "deleted"
	EventCleared        EventKind = "cleared"
	EventSettingChanged EventKind = "setting_changed"
)

// WireName returns the event name pushed to dashboard clients.
func (k EventKind) WireName() string {
	switch k {
	case EventCreated:
		return "new-registration"
	case EventUpdated:
		return "registration-updated"
	case EventDeleted:
		return "registration-deleted"
	case EventCleared:
		return "registrations-cleared"
	case EventSettingChanged:
		return "settings-updated"
	}
	return string(k)
}

// ChangeEvent is the normalized notification of a confirmed mutation,
// published exactly once per successful mutation and fanned out to every
// connected dashboard.
type ChangeEvent struct {
	Kind         EventKind     `json:"kind"`
	Registration *Registration `json:"registration,omitempty"`
	ID           string        `json:"id,omitempty"`       // set for deleted
	Category     string        `json:"category,omitempty"` // scoping tag, empty = unscoped
	SettingKey   string        `json:"settingKey,omitempty"`
	SettingValue any           `json:"settingValue,omitempty"`
}

// Payload returns the wire payload for the event, shaped the way
// dashboard clients consume it.
func (e ChangeEvent) Payload() any {
	switch e.Kind {
	case EventCreated, EventUpdated:
		return e.Registration
	case EventDeleted:
		return map[string]any{"id": e.ID}
	case EventCleared:
		return map[string]any{"category": e.Category}
	case EventSettingChanged:
		return map[string]any{"key": e.SettingKey, "value": e.SettingValue}
	}
	return nil
}

// Matches reports whether the event is visible to a subscriber watching
// the given category. Unscoped events are visible to everyone.
func (e ChangeEvent) Matches(category string) bool {
	if e.Category == "" || category == "" {
		return true
	}
	return e.Category == category
}
