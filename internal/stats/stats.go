// Package stats summarizes a set of bug records for reporting.
package stats

import (
	"time"

	"github.com/fieldstone/bugtrack/internal/models"
)

// Summary holds aggregate counts over a record set.
type Summary struct {
	Total      int
	ByStatus   map[models.Status]int
	BySeverity map[models.Severity]int
	Unassigned int
	OpenRatio  float64 // open + in-progress over total
	OldestOpen *models.Bug
}

// Summarize computes a Summary from the given records.
func Summarize(bugs []*models.Bug) *Summary {
	s := &Summary{
		Total:      len(bugs),
		ByStatus:   make(map[models.Status]int),
		BySeverity: make(map[models.Severity]int),
	}

	active := 0
	for _, b := range bugs {
		s.ByStatus[b.Status]++
		s.BySeverity[b.Severity]++
		if b.AssignedTo == "" {
			s.Unassigned++
		}
		if b.Status == models.StatusOpen || b.Status == models.StatusInProgress {
			active++
			if s.OldestOpen == nil || b.CreatedAt.Before(s.OldestOpen.CreatedAt) {
				s.OldestOpen = b
			}
		}
	}

	if s.Total > 0 {
		s.OpenRatio = float64(active) / float64(s.Total)
	}
	return s
}

// Age returns how long the bug has been on the books.
func Age(b *models.Bug, now time.Time) time.Duration {
	return now.Sub(b.CreatedAt)
}
