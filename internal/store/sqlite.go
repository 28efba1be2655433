package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/validate"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateBug normalizes and validates the payload, assigns id and
// timestamps, and persists the record.
func (s *SQLiteStore) CreateBug(ctx context.Context, b *models.Bug) error {
	validate.Normalize(b)
	validate.ApplyDefaults(b)
	if err := validate.Record(b); err != nil {
		return err
	}

	b.ID = newULID()
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	tagsJSON, err := json.Marshal(b.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bugs (id, title, description, severity, status, reported_by, assigned_to, tags, reproduction_steps, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.Description, string(b.Severity), string(b.Status),
		b.ReportedBy, b.AssignedTo, string(tagsJSON), b.ReproductionSteps,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create bug: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBug(ctx context.Context, id string) (*models.Bug, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, severity, status, reported_by, assigned_to, tags, reproduction_steps, created_at, updated_at
		FROM bugs WHERE id = ?`, id)

	b, err := scanBug(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bug: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) ListBugs(ctx context.Context, filter ListFilter) ([]*models.Bug, error) {
	query := `SELECT id, title, description, severity, status, reported_by, assigned_to, tags, reproduction_steps, created_at, updated_at FROM bugs`
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, strings.ToLower(string(filter.Status)))
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, strings.ToLower(string(filter.Severity)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bugs []*models.Bug
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bug: %w", err)
		}
		bugs = append(bugs, b)
	}
	return bugs, rows.Err()
}

// UpdateBug merges the patch into the stored record, re-validates the
// merged result, and refreshes updated_at. Last write wins: there is no
// conflict detection between concurrent updates of the same id.
func (s *SQLiteStore) UpdateBug(ctx context.Context, id string, patch models.BugPatch) (*models.Bug, error) {
	b, err := s.GetBug(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(b)
	validate.Normalize(b)
	validate.ApplyDefaults(b)
	if err := validate.Record(b); err != nil {
		return nil, err
	}

	b.UpdatedAt = time.Now().UTC()

	tagsJSON, err := json.Marshal(b.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE bugs SET title=?, description=?, severity=?, status=?, reported_by=?, assigned_to=?, tags=?, reproduction_steps=?, updated_at=?
		WHERE id=?`,
		b.Title, b.Description, string(b.Severity), string(b.Status),
		b.ReportedBy, b.AssignedTo, string(tagsJSON), b.ReproductionSteps,
		b.UpdatedAt, b.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update bug: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

func (s *SQLiteStore) DeleteBug(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM bugs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete bug: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBug(row scanner) (*models.Bug, error) {
	b := &models.Bug{}
	var severity, status, tagsJSON string

	err := row.Scan(&b.ID, &b.Title, &b.Description, &severity, &status,
		&b.ReportedBy, &b.AssignedTo, &tagsJSON, &b.ReproductionSteps,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.Severity = models.Severity(severity)
	b.Status = models.Status(status)
	if err := json.Unmarshal([]byte(tagsJSON), &b.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return b, nil
}
