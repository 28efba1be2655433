package store

import (
	"context"
	"errors"

	"github.com/fieldstone/bugtrack/internal/models"
)

// ErrNotFound is returned when no bug exists for a given id. Delete is
// idempotent in failure: every delete after the first reports this.
var ErrNotFound = errors.New("bug not found")

// ListFilter specifies equality filters for listing bugs. Zero values
// mean "no filter". Ordering is the query package's job, not the store's.
type ListFilter struct {
	Status   models.Status
	Severity models.Severity
}

// Store defines the persistence interface for bug records. The store owns
// the canonical records: it assigns ids and timestamps, and it validates
// every write before persisting.
type Store interface {
	CreateBug(ctx context.Context, b *models.Bug) error
	GetBug(ctx context.Context, id string) (*models.Bug, error)
	ListBugs(ctx context.Context, filter ListFilter) ([]*models.Bug, error)
	UpdateBug(ctx context.Context, id string, patch models.BugPatch) (*models.Bug, error)
	DeleteBug(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
