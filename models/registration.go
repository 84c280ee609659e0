package models

import (
	"time"
)

type Registration struct {
	ID          string     `json:"id"`
	StudentName string     `json:"studentName"`
	PhoneNumber string     `json:"phoneNumber"`
	Programme   string     `json:"programme"`
	Category    string     `json:"category,omitempty"`
	Status      string     `json:"status"` // registered, waiting, urgent, consulting, inside, ended, noanswer, exited
	Remark      string     `json:"remark"`
	Timestamp   time.Time  `json:"timestamp"`
	TimeIn      *time.Time `json:"timeIn,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// DefaultStatus is assigned to every new registration.
const DefaultStatus = "registered"

// Display tiers for the dashboard queue. Lower tier sorts first;
// arrival order is preserved within a tier.
const (
	TierUrgent = iota
	TierActive
	TierConsulting
	TierDone
)

// IsInProgress reports whether a status counts against the capacity limit.
func IsInProgress(status string) bool {
	return status == "inside" || status == "consulting"
}

// IsWaitingLike reports whether a registration is still in the queue.
func IsWaitingLike(status string) bool {
	return status == "registered" || status == "waiting" || status == "urgent"
}

// IsTimeInStatus reports whether entering the status stamps timeIn.
func IsTimeInStatus(status string) bool {
	return status == "inside" || status == "consulting"
}

// Tier maps a status to its display tier.
func Tier(status string) int {
	switch status {
	case "urgent":
		return TierUrgent
	case "registered", "waiting", "inside":
		return TierActive
	case "consulting":
		return TierConsulting
	default:
		return TierDone
	}
}

type DashboardStats struct {
	Total          int             `json:"total"`
	WaitingCount   int             `json:"waitingCount"`
	InsideCount    int             `json:"insideCount"`
	MaxCapacity    int             `json:"maxCapacity"`
	AvailableSlots int             `json:"availableSlots"`
	ByStatus       map[string]int  `json:"byStatus"`
	ProgrammeRanks []ProgrammeRank `json:"programmeRanks"`
	LongestWaiting *Registration   `json:"longestWaiting,omitempty"`
}

// ProgrammeRank is one row of the queue-priority ranking: waiting entries
// grouped by programme, sorted by descending count.
type ProgrammeRank struct {
	Programme string `json:"programme"`
	Count     int    `json:"count"`
}
