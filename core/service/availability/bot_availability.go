package availability

import (
	"calendar_bot/core/domain"
)

// Overlaps reports whether two half-open intervals share any instant.
// Intervals that only touch at an endpoint do not overlap.
func Overlaps(a, b domain.TimeInterval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// CheckAvailability tests candidate against every well-formed busy period.
// Busy entries with a missing bound or start >= end are skipped and listed
// in the report's Skipped field; they never count as conflicts.
func CheckAvailability(busy []domain.BusyPeriod, candidate domain.TimeInterval) *domain.ConflictReport {
	report := &domain.ConflictReport{Conflicts: []domain.TimeInterval{}}

	for _, period := range busy {
		if !period.Valid() {
			report.Skipped = append(report.Skipped, period)
			continue
		}
		if Overlaps(candidate, period.TimeInterval) {
			report.Conflicts = append(report.Conflicts, period.TimeInterval)
		}
	}

	report.IsAvailable = len(report.Conflicts) == 0
	return report
}
