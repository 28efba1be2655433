package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstone/bugtrack/internal/models"
)

func validBug() *models.Bug {
	return &models.Bug{
		Title:       "Crash on save",
		Description: "The editor crashes whenever a file is saved twice.",
		Severity:    models.SeverityMedium,
		Status:      models.StatusOpen,
		ReportedBy:  "Alice",
	}
}

func TestRecord_ValidBug(t *testing.T) {
	assert.NoError(t, Record(validBug()))
}

func TestRecord_TitleTooShort(t *testing.T) {
	b := validBug()
	b.Title = "ab"

	err := Record(b)
	require.Error(t, err)

	v, ok := err.(Violations)
	require.True(t, ok)
	assert.True(t, v.Has("title"))
}

func TestRecord_DescriptionTooShort(t *testing.T) {
	b := validBug()
	b.Description = "too short"

	err := Record(b)
	require.Error(t, err)
	assert.True(t, err.(Violations).Has("description"))
}

func TestRecord_ReporterBounds(t *testing.T) {
	b := validBug()
	b.ReportedBy = "A"
	err := Record(b)
	require.Error(t, err)
	assert.True(t, err.(Violations).Has("reportedBy"))

	b.ReportedBy = strings.Repeat("x", 51)
	err = Record(b)
	require.Error(t, err)
	assert.True(t, err.(Violations).Has("reportedBy"))
}

func TestRecord_CountsRunesNotBytes(t *testing.T) {
	// Two CJK runes (six bytes) are still under the 3-character minimum.
	b := validBug()
	b.Title = "日本"

	err := Record(b)
	require.Error(t, err)
	v, ok := err.(Violations)
	require.True(t, ok)
	assert.True(t, v.Has("title"))

	// A 400-rune CJK description (1200 bytes) is within the 1000-character cap.
	b = validBug()
	b.Description = strings.Repeat("語", 400)
	assert.NoError(t, Record(b))

	// The same description at 1001 runes is over it.
	b.Description = strings.Repeat("語", DescriptionMax+1)
	err = Record(b)
	require.Error(t, err)
	v, ok = err.(Violations)
	require.True(t, ok)
	assert.True(t, v.Has("description"))
}

func TestRecord_CollectsAllViolations(t *testing.T) {
	b := &models.Bug{
		Title:       "ab",
		Description: "short",
		Severity:    "urgent",
		Status:      "pending",
		ReportedBy:  "",
	}

	err := Record(b)
	require.Error(t, err)

	v := err.(Violations)
	assert.Len(t, v, 5)
	assert.True(t, v.Has("title"))
	assert.True(t, v.Has("description"))
	assert.True(t, v.Has("severity"))
	assert.True(t, v.Has("status"))
	assert.True(t, v.Has("reportedBy"))
}

func TestIsValidSeverity(t *testing.T) {
	for _, s := range []string{"low", "Medium", "HIGH", "cRiTiCaL"} {
		assert.True(t, IsValidSeverity(s), s)
	}
	for _, s := range []string{"", "urgent", "med", "critical!"} {
		assert.False(t, IsValidSeverity(s), s)
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{"open", "In-Progress", "RESOLVED", "Closed"} {
		assert.True(t, IsValidStatus(s), s)
	}
	for _, s := range []string{"", "done", "in progress", "wontfix"} {
		assert.False(t, IsValidStatus(s), s)
	}
}

func TestNormalize_TrimsAndLowercases(t *testing.T) {
	b := &models.Bug{
		Title:       "  Crash on save  ",
		Description: "  The editor crashes on the second save.  ",
		Severity:    "  HIGH ",
		Status:      "In-Progress",
		ReportedBy:  " Alice ",
		AssignedTo:  " Bob ",
	}
	Normalize(b)

	assert.Equal(t, "Crash on save", b.Title)
	assert.Equal(t, "The editor crashes on the second save.", b.Description)
	assert.Equal(t, models.SeverityHigh, b.Severity)
	assert.Equal(t, models.StatusInProgress, b.Status)
	assert.Equal(t, "Alice", b.ReportedBy)
	assert.Equal(t, "Bob", b.AssignedTo)
}

func TestNormalize_DropsBlankTags(t *testing.T) {
	b := validBug()
	b.Tags = []string{"  ui ", "", "   ", "ui"}
	Normalize(b)

	// Blanks go, duplicates stay: de-duplication is a client-side rule.
	assert.Equal(t, []string{"ui", "ui"}, b.Tags)
}

func TestApplyDefaults(t *testing.T) {
	b := &models.Bug{}
	ApplyDefaults(b)
	assert.Equal(t, models.SeverityMedium, b.Severity)
	assert.Equal(t, models.StatusOpen, b.Status)

	b2 := &models.Bug{Severity: models.SeverityHigh, Status: models.StatusClosed}
	ApplyDefaults(b2)
	assert.Equal(t, models.SeverityHigh, b2.Severity)
	assert.Equal(t, models.StatusClosed, b2.Status)
}
