package sync

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstone/bugtrack/internal/api"
	"github.com/fieldstone/bugtrack/internal/client"
	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/query"
	"github.com/fieldstone/bugtrack/internal/store"
)

func newTestSync(t *testing.T) (*Synchronizer, *httptest.Server) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "bugtrack.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(api.NewServer(st).Router())
	t.Cleanup(srv.Close)

	return New(client.New(srv.URL, 5*time.Second)), srv
}

func TestFetchPopulatesMirror(t *testing.T) {
	s, _ := newTestSync(t)
	ctx := context.Background()

	_, err := s.Create(ctx, client.NewBug{
		Title:       "Login button unresponsive",
		Description: "Clicking login does nothing on Safari",
		ReportedBy:  "alice",
	})
	require.NoError(t, err)

	require.NoError(t, s.Fetch(ctx))

	st := s.State()
	assert.Len(t, st.Bugs, 1)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Err)
}

func TestFetchUnreachableSkipsListAndEmptiesMirror(t *testing.T) {
	s, srv := newTestSync(t)
	ctx := context.Background()

	_, err := s.Create(ctx, client.NewBug{
		Title:       "Stale data shown",
		Description: "Old records remain visible after reload",
		ReportedBy:  "bob",
	})
	require.NoError(t, err)
	assert.Len(t, s.State().Bugs, 1)

	srv.Close()

	err = s.Fetch(ctx)
	require.ErrorIs(t, err, ErrBackendUnreachable)

	st := s.State()
	assert.Empty(t, st.Bugs, "failed reload must not leave stale records")
	assert.False(t, st.Loading)
	assert.Contains(t, st.Err, "not accessible")
}

// flakyService reaches the liveness probe fine but fails the list call.
type flakyService struct {
	Service
}

func (f *flakyService) Health(ctx context.Context) error { return nil }
func (f *flakyService) ListBugs(ctx context.Context, opts client.ListOptions) ([]*models.Bug, error) {
	return nil, errors.New("list blew up")
}

func TestFetchListFailureKeepsErrorMessage(t *testing.T) {
	s := New(&flakyService{})

	err := s.Fetch(context.Background())
	require.Error(t, err)

	st := s.State()
	assert.Empty(t, st.Bugs)
	assert.False(t, st.Loading)
	assert.Contains(t, st.Err, "list blew up", "emptying the mirror must not wipe the captured error")
}

func TestCreatePrependsServerRecord(t *testing.T) {
	s, _ := newTestSync(t)
	ctx := context.Background()

	first, err := s.Create(ctx, client.NewBug{
		Title:       "Export fails silently",
		Description: "CSV export returns an empty file",
		ReportedBy:  "carol",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.SeverityMedium, first.Severity)
	assert.Equal(t, models.StatusOpen, first.Status)

	second, err := s.Create(ctx, client.NewBug{
		Title:       "Avatar upload rejected",
		Description: "PNG uploads under 1MB are rejected",
		ReportedBy:  "carol",
	})
	require.NoError(t, err)

	st := s.State()
	require.Len(t, st.Bugs, 2)
	assert.Equal(t, second.ID, st.Bugs[0].ID, "newest bug goes to the front")
	assert.Equal(t, first.ID, st.Bugs[1].ID)
}

func TestCreateValidationFailureLeavesMirrorUntouched(t *testing.T) {
	s, _ := newTestSync(t)
	ctx := context.Background()

	_, err := s.Create(ctx, client.NewBug{Title: "no", Description: "short", ReportedBy: "d"})
	require.Error(t, err)

	st := s.State()
	assert.Empty(t, st.Bugs)
	assert.False(t, st.Loading)
	assert.NotEmpty(t, st.Err)
}

func TestUpdateReplacesLocalCopy(t *testing.T) {
	s, _ := newTestSync(t)
	ctx := context.Background()

	bug, err := s.Create(ctx, client.NewBug{
		Title:       "Session expires too early",
		Description: "Users are logged out after five minutes",
		ReportedBy:  "erin",
	})
	require.NoError(t, err)

	closed := string(models.StatusClosed)
	updated, err := s.Update(ctx, bug.ID, models.BugPatch{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, updated.Status)

	st := s.State()
	require.Len(t, st.Bugs, 1)
	assert.Equal(t, models.StatusClosed, st.Bugs[0].Status)
	assert.Equal(t, "Session expires too early", st.Bugs[0].Title, "untouched fields survive the merge")
}

func TestDeleteRemovesAfterServerConfirms(t *testing.T) {
	s, _ := newTestSync(t)
	ctx := context.Background()

	bug, err := s.Create(ctx, client.NewBug{
		Title:       "Duplicate notifications",
		Description: "Every mention triggers two emails",
		ReportedBy:  "frank",
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, bug.ID))
	assert.Empty(t, s.State().Bugs)

	err = s.Delete(ctx, bug.ID)
	require.ErrorIs(t, err, client.ErrNotFound)
	assert.NotEmpty(t, s.State().Err)
}

func TestGetByIDDoesNotTouchSet(t *testing.T) {
	s, _ := newTestSync(t)
	ctx := context.Background()

	bug, err := s.Create(ctx, client.NewBug{
		Title:       "Search ignores quotes",
		Description: "Quoted phrases are tokenized anyway",
		ReportedBy:  "gina",
	})
	require.NoError(t, err)

	got, err := s.GetByID(ctx, bug.ID)
	require.NoError(t, err)
	assert.Equal(t, bug.ID, got.ID)
	assert.Len(t, s.State().Bugs, 1)

	_, err = s.GetByID(ctx, "missing-id")
	require.ErrorIs(t, err, client.ErrNotFound)
	assert.Len(t, s.State().Bugs, 1, "a failed lookup must not disturb the mirror")
}

func TestFilterAndSortAreLocalOnly(t *testing.T) {
	s, srv := newTestSync(t)
	ctx := context.Background()

	_, err := s.Create(ctx, client.NewBug{
		Title:       "Banner overlaps menu",
		Description: "Promo banner covers the hamburger menu",
		ReportedBy:  "hank",
	})
	require.NoError(t, err)
	bug, err := s.Create(ctx, client.NewBug{
		Title:       "Archive link broken",
		Description: "The 2023 archive link returns 404",
		ReportedBy:  "hank",
	})
	require.NoError(t, err)

	closed := string(models.StatusClosed)
	_, err = s.Update(ctx, bug.ID, models.BugPatch{Status: &closed})
	require.NoError(t, err)

	// From here on every derivation must come from the mirror alone.
	srv.Close()

	s.SetFilter(string(models.StatusClosed))
	visible := s.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, bug.ID, visible[0].ID)

	s.SetFilter(query.FilterAll)
	s.SetSortBy("title")
	s.SetSortOrder(query.Asc)
	visible = s.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "Archive link broken", visible[0].Title)

	assert.Len(t, s.State().Bugs, 2, "the loaded set itself stays in fetch order")
}

func TestAppendTag(t *testing.T) {
	tags, err := AppendTag([]string{"ui"}, "regression")
	require.NoError(t, err)
	assert.Equal(t, []string{"ui", "regression"}, tags)

	_, err = AppendTag(tags, "ui")
	require.ErrorIs(t, err, ErrDuplicateTag)
}
