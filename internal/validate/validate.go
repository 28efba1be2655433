// Package validate holds the field constraints for bug records. All checks
// are pure; callers get every violation at once rather than the first one.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fieldstone/bugtrack/internal/models"
)

// Field bounds in characters (runes, not bytes), measured after trimming.
const (
	TitleMin       = 3
	TitleMax       = 100
	DescriptionMin = 10
	DescriptionMax = 1000
	ReporterMin    = 2
	ReporterMax    = 50
	AssigneeMax    = 50
	TagMax         = 20
	ReproStepsMax  = 500
)

// Violation is a single field-level constraint failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Violations aggregates every constraint failure for one payload.
type Violations []Violation

func (v Violations) Error() string {
	msgs := make([]string, len(v))
	for i, viol := range v {
		msgs[i] = viol.Field + ": " + viol.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether any violation names the given field.
func (v Violations) Has(field string) bool {
	for _, viol := range v {
		if viol.Field == field {
			return true
		}
	}
	return false
}

var severities = []models.Severity{
	models.SeverityLow,
	models.SeverityMedium,
	models.SeverityHigh,
	models.SeverityCritical,
}

var statuses = []models.Status{
	models.StatusOpen,
	models.StatusInProgress,
	models.StatusResolved,
	models.StatusClosed,
}

// IsValidSeverity reports whether s names a known severity, ignoring case.
func IsValidSeverity(s string) bool {
	lower := models.Severity(strings.ToLower(s))
	for _, sev := range severities {
		if lower == sev {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether s names a known status, ignoring case.
func IsValidStatus(s string) bool {
	lower := models.Status(strings.ToLower(s))
	for _, st := range statuses {
		if lower == st {
			return true
		}
	}
	return false
}

// Normalize trims every string field, lowercases the enums, and drops
// blank tags. It runs before validation so enum checks only ever see
// canonical lowercase values.
func Normalize(b *models.Bug) {
	b.Title = strings.TrimSpace(b.Title)
	b.Description = strings.TrimSpace(b.Description)
	b.ReportedBy = strings.TrimSpace(b.ReportedBy)
	b.AssignedTo = strings.TrimSpace(b.AssignedTo)
	b.ReproductionSteps = strings.TrimSpace(b.ReproductionSteps)
	b.Severity = models.Severity(strings.ToLower(strings.TrimSpace(string(b.Severity))))
	b.Status = models.Status(strings.ToLower(strings.TrimSpace(string(b.Status))))

	if b.Tags != nil {
		tags := make([]string, 0, len(b.Tags))
		for _, t := range b.Tags {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
		b.Tags = tags
	}
}

// Record checks a normalized record against every constraint and returns
// nil or the full violation list. Callers are expected to Normalize first
// and to have applied defaults for blank severity/status.
func Record(b *models.Bug) error {
	var v Violations

	if n := utf8.RuneCountInString(b.Title); n < TitleMin || n > TitleMax {
		v = append(v, Violation{
			Field:   "title",
			Message: fmt.Sprintf("Title must be between %d and %d characters", TitleMin, TitleMax),
		})
	}
	if n := utf8.RuneCountInString(b.Description); n < DescriptionMin || n > DescriptionMax {
		v = append(v, Violation{
			Field:   "description",
			Message: fmt.Sprintf("Description must be between %d and %d characters", DescriptionMin, DescriptionMax),
		})
	}
	if !IsValidSeverity(string(b.Severity)) {
		v = append(v, Violation{
			Field:   "severity",
			Message: "Severity must be one of: low, medium, high, critical",
		})
	}
	if !IsValidStatus(string(b.Status)) {
		v = append(v, Violation{
			Field:   "status",
			Message: "Status must be one of: open, in-progress, resolved, closed",
		})
	}
	if n := utf8.RuneCountInString(b.ReportedBy); n < ReporterMin || n > ReporterMax {
		v = append(v, Violation{
			Field:   "reportedBy",
			Message: fmt.Sprintf("Reporter name must be between %d and %d characters", ReporterMin, ReporterMax),
		})
	}
	if utf8.RuneCountInString(b.AssignedTo) > AssigneeMax {
		v = append(v, Violation{
			Field:   "assignedTo",
			Message: fmt.Sprintf("Assignee name cannot exceed %d characters", AssigneeMax),
		})
	}
	for _, t := range b.Tags {
		if utf8.RuneCountInString(t) > TagMax {
			v = append(v, Violation{
				Field:   "tags",
				Message: fmt.Sprintf("Each tag cannot exceed %d characters", TagMax),
			})
			break
		}
	}
	if utf8.RuneCountInString(b.ReproductionSteps) > ReproStepsMax {
		v = append(v, Violation{
			Field:   "reproductionSteps",
			Message: fmt.Sprintf("Reproduction steps cannot exceed %d characters", ReproStepsMax),
		})
	}

	if len(v) > 0 {
		return v
	}
	return nil
}

// ApplyDefaults fills blank severity/status with their documented defaults.
func ApplyDefaults(b *models.Bug) {
	if b.Severity == "" {
		b.Severity = models.SeverityMedium
	}
	if b.Status == "" {
		b.Status = models.StatusOpen
	}
}
