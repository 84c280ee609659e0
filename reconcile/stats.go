package reconcile

import (
	"sort"

	"registration-system/models"
)

// computeStats derives the dashboard statistics from a newest-first list
// and the cached settings. The list is not modified.
func computeStats(list []models.Registration, settings map[string]any) models.DashboardStats {
	stats := models.DashboardStats{
		Total:    len(list),
		ByStatus: make(map[string]int),
	}

	capacity := models.DefaultMaxCapacity
	if v, ok := settings[models.KeyMaxCapacity]; ok {
		if n, ok := v.(int); ok && n > 0 {
			capacity = n
		}
	}
	stats.MaxCapacity = capacity

	var longest *models.Registration
	for i := range list {
		reg := &list[i]
		stats.ByStatus[reg.Status]++

		switch {
		case models.IsInProgress(reg.Status):
			stats.InsideCount++
		case models.IsWaitingLike(reg.Status):
			stats.WaitingCount++
			if longest == nil || reg.Timestamp.Before(longest.Timestamp) {
				longest = reg
			}
		}
	}

	stats.AvailableSlots = capacity - stats.InsideCount
	if stats.AvailableSlots < 0 {
		stats.AvailableSlots = 0
	}

	if longest != nil {
		copied := *longest
		stats.LongestWaiting = &copied
	}

	stats.ProgrammeRanks = rankProgrammes(list)
	return stats
}

// rankProgrammes groups waiting entries by programme, descending by
// count, ties broken by which programme was seen first (earliest
// creation). The input list is newest-first, so first-seen order is the
// reverse iteration order.
func rankProgrammes(list []models.Registration) []models.ProgrammeRank {
	counts := make(map[string]int)
	var firstSeen []string

	for i := len(list) - 1; i >= 0; i-- {
		reg := list[i]
		if !models.IsWaitingLike(reg.Status) {
			continue
		}
		if _, ok := counts[reg.Programme]; !ok {
			firstSeen = append(firstSeen, reg.Programme)
		}
		counts[reg.Programme]++
	}

	ranks := make([]models.ProgrammeRank, 0, len(firstSeen))
	for _, programme := range firstSeen {
		ranks = append(ranks, models.ProgrammeRank{Programme: programme, Count: counts[programme]})
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Count > ranks[j].Count
	})
	return ranks
}

func stableSortByTier(list []models.Registration) {
	sort.SliceStable(list, func(i, j int) bool {
		return models.Tier(list[i].Status) < models.Tier(list[j].Status)
	})
}
