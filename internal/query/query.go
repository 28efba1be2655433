// Package query turns filter/sort parameters into a deterministic
// ordering over a bug collection. It always works on a snapshot: inputs
// are never mutated.
package query

import (
	"sort"
	"strings"

	"github.com/fieldstone/bugtrack/internal/models"
)

// Order is a sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// DefaultField and DefaultOrder are used when nothing is specified, and
// DefaultField is the fallback for unknown field names.
const DefaultField = "createdAt"

const DefaultOrder = Desc

// FilterAll disables status filtering.
const FilterAll = "all"

// Sort is a (field, direction) pair.
type Sort struct {
	Field string
	Order Order
}

// DefaultSort returns the (createdAt, desc) default.
func DefaultSort() Sort {
	return Sort{Field: DefaultField, Order: DefaultOrder}
}

// ParseSort parses the API's sort parameter: a field name optionally
// prefixed with '-' for descending. Empty input yields the default.
func ParseSort(s string) Sort {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSort()
	}
	if strings.HasPrefix(s, "-") {
		return Sort{Field: s[1:], Order: Desc}
	}
	return Sort{Field: s, Order: Asc}
}

// FilterByStatus returns the bugs whose status equals the given filter.
// "all" or empty means no filtering. Relative order is unchanged.
func FilterByStatus(bugs []*models.Bug, filter string) []*models.Bug {
	if filter == "" || filter == FilterAll {
		return append([]*models.Bug(nil), bugs...)
	}
	want := models.Status(strings.ToLower(filter))
	out := make([]*models.Bug, 0, len(bugs))
	for _, b := range bugs {
		if b.Status == want {
			out = append(out, b)
		}
	}
	return out
}

// SortBugs returns a sorted copy of bugs. Timestamp fields compare as
// instants, everything else as case-sensitive strings. Equal keys
// tie-break on id ascending so the ordering is fully deterministic.
func SortBugs(bugs []*models.Bug, s Sort) []*models.Bug {
	out := append([]*models.Bug(nil), bugs...)

	sort.Slice(out, func(i, j int) bool {
		less, equal := compare(out[i], out[j], s.Field)
		if equal {
			return out[i].ID < out[j].ID
		}
		if s.Order == Desc {
			return !less
		}
		return less
	})
	return out
}

// Apply filters then sorts in one step.
func Apply(bugs []*models.Bug, filter string, s Sort) []*models.Bug {
	return SortBugs(FilterByStatus(bugs, filter), s)
}

func compare(a, b *models.Bug, field string) (less, equal bool) {
	switch field {
	case "createdAt":
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
	}
	av, ok := stringField(a, field)
	if !ok {
		// Unknown field names fall back to the default ordering.
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	}
	bv, _ := stringField(b, field)
	return av < bv, av == bv
}

func stringField(b *models.Bug, field string) (string, bool) {
	switch field {
	case "id":
		return b.ID, true
	case "title":
		return b.Title, true
	case "description":
		return b.Description, true
	case "severity":
		return string(b.Severity), true
	case "status":
		return string(b.Status), true
	case "reportedBy":
		return b.ReportedBy, true
	case "assignedTo":
		return b.AssignedTo, true
	case "reproductionSteps":
		return b.ReproductionSteps, true
	}
	return "", false
}
