package mapper

import "strings"

// Priority ranks, default Medium=2 (spec §4.1).
const (
	PriorityUrgent = 0
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
	PriorityNone   = 4

	defaultPriority = PriorityMedium
)

// PriorityRank maps a free-text priority label to its numeric rank,
// defaulting to Medium when unrecognized.
func PriorityRank(label string) int {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "urgent", "critical":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	case "low":
		return PriorityLow
	case "no", "none", "minimal":
		return PriorityNone
	default:
		return defaultPriority
	}
}
