package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fieldstone/bugtrack/internal/models"
)

func bugAt(id, title string, status models.Status, created time.Time) *models.Bug {
	return &models.Bug{
		ID:        id,
		Title:     title,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, Sort{Field: "createdAt", Order: Desc}, ParseSort(""))
	assert.Equal(t, Sort{Field: "createdAt", Order: Desc}, ParseSort("-createdAt"))
	assert.Equal(t, Sort{Field: "severity", Order: Asc}, ParseSort("severity"))
	assert.Equal(t, Sort{Field: "title", Order: Desc}, ParseSort("-title"))
}

func TestFilterByStatus(t *testing.T) {
	now := time.Now()
	bugs := []*models.Bug{
		bugAt("1", "a", models.StatusOpen, now),
		bugAt("2", "b", models.StatusClosed, now),
		bugAt("3", "c", models.StatusOpen, now),
	}

	open := FilterByStatus(bugs, "open")
	assert.Len(t, open, 2)
	assert.Equal(t, "1", open[0].ID)
	assert.Equal(t, "3", open[1].ID, "relative order unchanged")

	assert.Len(t, FilterByStatus(bugs, "all"), 3)
	assert.Len(t, FilterByStatus(bugs, ""), 3)
	assert.Len(t, FilterByStatus(bugs, "resolved"), 0)
}

func TestSortBugs_TimestampDesc(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	bugs := []*models.Bug{
		bugAt("1", "older", models.StatusOpen, t1),
		bugAt("2", "newer", models.StatusOpen, t2),
	}

	sorted := SortBugs(bugs, Sort{Field: "createdAt", Order: Desc})
	assert.Equal(t, "2", sorted[0].ID, "newest first under desc")
	assert.Equal(t, "1", sorted[1].ID)

	sorted = SortBugs(bugs, Sort{Field: "createdAt", Order: Asc})
	assert.Equal(t, "1", sorted[0].ID)
}

func TestSortBugs_StringField(t *testing.T) {
	now := time.Now()
	bugs := []*models.Bug{
		bugAt("1", "zebra", models.StatusOpen, now),
		bugAt("2", "apple", models.StatusOpen, now),
		bugAt("3", "Mango", models.StatusOpen, now),
	}

	sorted := SortBugs(bugs, Sort{Field: "title", Order: Asc})
	// Case-sensitive: uppercase sorts before lowercase.
	assert.Equal(t, []string{"Mango", "apple", "zebra"},
		[]string{sorted[0].Title, sorted[1].Title, sorted[2].Title})
}

func TestSortBugs_TieBreakOnID(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bugs := []*models.Bug{
		bugAt("c", "same", models.StatusOpen, now),
		bugAt("a", "same", models.StatusOpen, now),
		bugAt("b", "same", models.StatusOpen, now),
	}

	sorted := SortBugs(bugs, Sort{Field: "createdAt", Order: Desc})
	assert.Equal(t, []string{"a", "b", "c"},
		[]string{sorted[0].ID, sorted[1].ID, sorted[2].ID},
		"equal keys order by id ascending")

	sorted = SortBugs(bugs, Sort{Field: "createdAt", Order: Asc})
	assert.Equal(t, "a", sorted[0].ID, "tie-break direction is stable across orders")
}

func TestSortBugs_UnknownFieldFallsBack(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bugs := []*models.Bug{
		bugAt("1", "older", models.StatusOpen, t1),
		bugAt("2", "newer", models.StatusOpen, t1.Add(time.Hour)),
	}

	sorted := SortBugs(bugs, Sort{Field: "nope", Order: Desc})
	assert.Equal(t, "2", sorted[0].ID)
}

func TestSortBugs_DoesNotMutateInput(t *testing.T) {
	now := time.Now()
	bugs := []*models.Bug{
		bugAt("2", "b", models.StatusOpen, now.Add(time.Hour)),
		bugAt("1", "a", models.StatusOpen, now),
	}

	_ = SortBugs(bugs, Sort{Field: "createdAt", Order: Asc})
	assert.Equal(t, "2", bugs[0].ID, "input slice untouched")
}
