package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestServer creates a Server backed by a throwaway SQLite store.
func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "bugtrack.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	srv := NewServer(st)
	require.NotNil(t, srv)
	return srv, st
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// seedBug creates a bug directly in the store and returns it.
func seedBug(t *testing.T, st store.Store, title string, severity models.Severity) *models.Bug {
	t.Helper()
	bug := &models.Bug{
		Title:       title,
		Description: "seeded bug report for " + title,
		ReportedBy:  "tester",
		Severity:    severity,
	}
	require.NoError(t, st.CreateBug(context.Background(), bug))
	return bug
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: bug_list
// ---------------------------------------------------------------------------

func TestHandleListBugs_Empty(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleListBugs(ctx, callToolReq("bug_list", nil))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var out []bugOut
	resultJSON(t, result, &out)
	assert.Empty(t, out)
}

func TestHandleListBugs_WithStatusFilter(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	seedBug(t, st, "Login fails on Safari", models.SeverityHigh)
	closed := seedBug(t, st, "Old layout glitch", models.SeverityLow)
	status := "closed"
	_, err := st.UpdateBug(ctx, closed.ID, models.BugPatch{Status: &status})
	require.NoError(t, err)

	result, err := srv.handleListBugs(ctx, callToolReq("bug_list", map[string]any{"status": "closed"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []bugOut
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, closed.ID, out[0].ID)
}

// ---------------------------------------------------------------------------
// Tests: bug_get
// ---------------------------------------------------------------------------

func TestHandleGetBug_ByPrefix(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	bug := seedBug(t, st, "Crash when exporting", models.SeverityCritical)

	result, err := srv.handleGetBug(ctx, callToolReq("bug_get", map[string]any{"bug_id": bug.ID[:8]}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out bugOut
	resultJSON(t, result, &out)
	assert.Equal(t, bug.ID, out.ID)
	assert.Equal(t, "critical", out.Severity)
}

func TestHandleGetBug_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleGetBug(ctx, callToolReq("bug_get", map[string]any{"bug_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

// ---------------------------------------------------------------------------
// Tests: bug_create
// ---------------------------------------------------------------------------

func TestHandleCreateBug(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleCreateBug(ctx, callToolReq("bug_create", map[string]any{
		"title":       "Search returns stale results",
		"description": "The index is not refreshed after edits",
		"reported_by": "alice",
		"tags":        "search, indexing",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out bugOut
	resultJSON(t, result, &out)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "medium", out.Severity)
	assert.Equal(t, "open", out.Status)
	assert.Equal(t, []string{"search", "indexing"}, out.Tags)
}

func TestHandleCreateBug_ValidationError(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleCreateBug(ctx, callToolReq("bug_create", map[string]any{
		"title":       "no",
		"description": "short",
		"reported_by": "a",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "validation failed")
	assert.Contains(t, text, "title")
	assert.Contains(t, text, "description")
}

func TestHandleCreateBug_MissingRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleCreateBug(ctx, callToolReq("bug_create", map[string]any{
		"title": "Missing fields",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "description")
}

// ---------------------------------------------------------------------------
// Tests: bug_update
// ---------------------------------------------------------------------------

func TestHandleUpdateBug(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	bug := seedBug(t, st, "Password reset email missing", models.SeverityHigh)

	result, err := srv.handleUpdateBug(ctx, callToolReq("bug_update", map[string]any{
		"bug_id": bug.ID,
		"status": "resolved",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out bugOut
	resultJSON(t, result, &out)
	assert.Equal(t, "resolved", out.Status)
	assert.Equal(t, "Password reset email missing", out.Title, "unspecified fields are untouched")
}

func TestHandleUpdateBug_NoFields(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	bug := seedBug(t, st, "Spinner never stops", models.SeverityMedium)

	result, err := srv.handleUpdateBug(ctx, callToolReq("bug_update", map[string]any{
		"bug_id": bug.ID,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no fields provided")
}

// ---------------------------------------------------------------------------
// Tests: bug_delete
// ---------------------------------------------------------------------------

func TestHandleDeleteBug(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	bug := seedBug(t, st, "Duplicate rows in report", models.SeverityMedium)

	result, err := srv.handleDeleteBug(ctx, callToolReq("bug_delete", map[string]any{"bug_id": bug.ID}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"deleted":true`)

	_, err = st.GetBug(ctx, bug.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Tests: bug_stats
// ---------------------------------------------------------------------------

func TestHandleStats(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	seedBug(t, st, "First bug report here", models.SeverityHigh)
	seedBug(t, st, "Second bug report here", models.SeverityHigh)

	result, err := srv.handleStats(ctx, callToolReq("bug_stats", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.EqualValues(t, 2, out["total"])
	assert.Contains(t, out, "by_status")
	assert.Contains(t, out, "oldest_open")
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, splitTags(""))
	assert.Equal(t, []string{"ui", "auth"}, splitTags("ui, auth"))
	assert.Equal(t, []string{"ui"}, splitTags(" ui , , "))
}
