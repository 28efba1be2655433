// Package mcp exposes the bug tracker as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/stats"
	"github.com/fieldstone/bugtrack/internal/store"
	"github.com/fieldstone/bugtrack/internal/validate"
)

// Server wraps the bugtrack data layer and exposes it as MCP tools.
type Server struct {
	store store.Store
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store) *Server {
	return &Server{store: s}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("bugtrack", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listBugsTool())
	srv.AddTool(s.getBugTool())
	srv.AddTool(s.createBugTool())
	srv.AddTool(s.updateBugTool())
	srv.AddTool(s.deleteBugTool())
	srv.AddTool(s.statsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type bugOut struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Severity          string   `json:"severity"`
	Status            string   `json:"status"`
	ReportedBy        string   `json:"reported_by"`
	AssignedTo        string   `json:"assigned_to,omitempty"`
	Tags              []string `json:"tags"`
	ReproductionSteps string   `json:"reproduction_steps,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

func toBugOut(b *models.Bug) bugOut {
	return bugOut{
		ID:                b.ID,
		Title:             b.Title,
		Description:       b.Description,
		Severity:          string(b.Severity),
		Status:            string(b.Status),
		ReportedBy:        b.ReportedBy,
		AssignedTo:        b.AssignedTo,
		Tags:              b.Tags,
		ReproductionSteps: b.ReproductionSteps,
		CreatedAt:         b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         b.UpdatedAt.Format(time.RFC3339),
	}
}

// bug_list
func (s *Server) listBugsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_list",
		mcp.WithDescription("List bug reports, optionally filtered by status and/or severity. Returns a JSON array of bugs. Status is one of open/in-progress/resolved/closed; severity is one of low/medium/high/critical."),
		mcp.WithString("status", mcp.Description("Status filter: open, in-progress, resolved, closed")),
		mcp.WithString("severity", mcp.Description("Severity filter: low, medium, high, critical")),
	)
	return tool, s.handleListBugs
}

func (s *Server) handleListBugs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.ListFilter{
		Status:   models.Status(request.GetString("status", "")),
		Severity: models.Severity(request.GetString("severity", "")),
	}

	bugs, err := s.store.ListBugs(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list bugs: %v", err)), nil
	}

	out := make([]bugOut, len(bugs))
	for i, b := range bugs {
		out[i] = toBugOut(b)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal bugs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// bug_get
func (s *Server) getBugTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_get",
		mcp.WithDescription("Get a single bug report by ID (full ULID or unique prefix). Returns the bug as JSON."),
		mcp.WithString("bug_id", mcp.Required(), mcp.Description("Bug ID (full ULID or unique prefix)")),
	)
	return tool, s.handleGetBug
}

func (s *Server) handleGetBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bugID, err := request.RequireString("bug_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: bug_id"), nil
	}

	bug, err := s.findBug(ctx, bugID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(toBugOut(bug))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal bug: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// bug_create
func (s *Server) createBugTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_create",
		mcp.WithDescription("Report a new bug. Title (3-100 chars), description (10-1000 chars), and reported_by are required. Severity defaults to medium; status starts as open. Returns the created bug as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Bug title")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Detailed description of the problem")),
		mcp.WithString("reported_by", mcp.Required(), mcp.Description("Name of the reporter")),
		mcp.WithString("severity", mcp.Description("Severity: low, medium, high, critical (default: medium)")),
		mcp.WithString("assigned_to", mcp.Description("Assignee name")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithString("reproduction_steps", mcp.Description("Steps to reproduce the bug")),
	)
	return tool, s.handleCreateBug
}

func (s *Server) handleCreateBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: description"), nil
	}
	reportedBy, err := request.RequireString("reported_by")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: reported_by"), nil
	}

	bug := &models.Bug{
		Title:             title,
		Description:       description,
		ReportedBy:        reportedBy,
		Severity:          models.Severity(request.GetString("severity", "")),
		AssignedTo:        request.GetString("assigned_to", ""),
		ReproductionSteps: request.GetString("reproduction_steps", ""),
		Tags:              splitTags(request.GetString("tags", "")),
	}

	if err := s.store.CreateBug(ctx, bug); err != nil {
		return mcp.NewToolResultError(validationMessage(err)), nil
	}

	data, err := json.Marshal(toBugOut(bug))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal bug: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// bug_update
func (s *Server) updateBugTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_update",
		mcp.WithDescription("Update an existing bug. Provide the bug ID (full or prefix) and at least one field to change. Omitted fields keep their current values. Returns the updated bug as JSON."),
		mcp.WithString("bug_id", mcp.Required(), mcp.Description("Bug ID (full ULID or unique prefix)")),
		mcp.WithString("status", mcp.Description("New status: open, in-progress, resolved, closed")),
		mcp.WithString("severity", mcp.Description("New severity: low, medium, high, critical")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("assigned_to", mcp.Description("New assignee")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags (replaces the existing set)")),
		mcp.WithString("reproduction_steps", mcp.Description("New reproduction steps")),
	)
	return tool, s.handleUpdateBug
}

func (s *Server) handleUpdateBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bugID, err := request.RequireString("bug_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: bug_id"), nil
	}

	bug, err := s.findBug(ctx, bugID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch models.BugPatch
	updated := false

	if v := request.GetString("status", ""); v != "" {
		patch.Status = &v
		updated = true
	}
	if v := request.GetString("severity", ""); v != "" {
		patch.Severity = &v
		updated = true
	}
	if v := request.GetString("title", ""); v != "" {
		patch.Title = &v
		updated = true
	}
	if v := request.GetString("description", ""); v != "" {
		patch.Description = &v
		updated = true
	}
	if v := request.GetString("assigned_to", ""); v != "" {
		patch.AssignedTo = &v
		updated = true
	}
	if v := request.GetString("tags", ""); v != "" {
		tags := splitTags(v)
		patch.Tags = &tags
		updated = true
	}
	if v := request.GetString("reproduction_steps", ""); v != "" {
		patch.ReproductionSteps = &v
		updated = true
	}

	if !updated {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: status, severity, title, description, assigned_to, tags, reproduction_steps"), nil
	}

	merged, err := s.store.UpdateBug(ctx, bug.ID, patch)
	if err != nil {
		return mcp.NewToolResultError(validationMessage(err)), nil
	}

	data, err := json.Marshal(toBugOut(merged))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal bug: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// bug_delete
func (s *Server) deleteBugTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_delete",
		mcp.WithDescription("Delete a bug report by ID (full ULID or unique prefix). Deletion is permanent."),
		mcp.WithString("bug_id", mcp.Required(), mcp.Description("Bug ID (full ULID or unique prefix)")),
	)
	return tool, s.handleDeleteBug
}

func (s *Server) handleDeleteBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bugID, err := request.RequireString("bug_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: bug_id"), nil
	}

	bug, err := s.findBug(ctx, bugID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.store.DeleteBug(ctx, bug.ID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete bug: %v", err)), nil
	}

	result := map[string]any{
		"id":      bug.ID,
		"deleted": true,
	}
	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// bug_stats
func (s *Server) statsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("bug_stats",
		mcp.WithDescription("Summarize the bug database: totals by status and severity, unassigned count, and the oldest active bug."),
	)
	return tool, s.handleStats
}

func (s *Server) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bugs, err := s.store.ListBugs(ctx, store.ListFilter{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list bugs: %v", err)), nil
	}

	summary := stats.Summarize(bugs)

	byStatus := map[string]int{}
	for k, v := range summary.ByStatus {
		byStatus[string(k)] = v
	}
	bySeverity := map[string]int{}
	for k, v := range summary.BySeverity {
		bySeverity[string(k)] = v
	}

	result := map[string]any{
		"total":       summary.Total,
		"by_status":   byStatus,
		"by_severity": bySeverity,
		"unassigned":  summary.Unassigned,
		"open_ratio":  summary.OpenRatio,
	}
	if summary.OldestOpen != nil {
		result["oldest_open"] = map[string]any{
			"id":         summary.OldestOpen.ID,
			"title":      summary.OldestOpen.Title,
			"created_at": summary.OldestOpen.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// findBug finds a bug by full ID or unique prefix.
func (s *Server) findBug(ctx context.Context, id string) (*models.Bug, error) {
	if bug, err := s.store.GetBug(ctx, id); err == nil {
		return bug, nil
	}

	upper := strings.ToUpper(id)
	bugs, err := s.store.ListBugs(ctx, store.ListFilter{})
	if err != nil {
		return nil, err
	}

	var matches []*models.Bug
	for _, bug := range bugs {
		if strings.HasPrefix(bug.ID, upper) {
			matches = append(matches, bug)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("bug not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous bug ID %s: matches %d bugs", id, len(matches))
	}
}

// validationMessage flattens a Violations error into a readable tool error.
func validationMessage(err error) string {
	var violations validate.Violations
	if errors.As(err, &violations) {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
		}
		return "validation failed: " + strings.Join(msgs, "; ")
	}
	return err.Error()
}

// splitTags parses a comma-separated tag list, dropping blanks.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
