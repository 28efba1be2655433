// Package sync keeps a client-side mirror of the server's bug records.
// The mirror is never authoritative: every mutation goes to the server
// first and the local copy is reconciled from the response. State changes
// flow through a closed action set so the transition table is exhaustive
// at compile time.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/fieldstone/bugtrack/internal/client"
	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/query"
)

// ErrBackendUnreachable is returned by Fetch when the liveness probe
// fails; the main list call is never attempted in that case.
var ErrBackendUnreachable = errors.New("backend server is not accessible")

// ErrDuplicateTag is returned when a tag is already present on a record.
// The server permits duplicates; rejecting them is a client-side rule.
var ErrDuplicateTag = errors.New("tag already present")

// Service is the slice of the API client the synchronizer needs.
type Service interface {
	Health(ctx context.Context) error
	ListBugs(ctx context.Context, opts client.ListOptions) ([]*models.Bug, error)
	GetBug(ctx context.Context, id string) (*models.Bug, error)
	CreateBug(ctx context.Context, nb client.NewBug) (*models.Bug, error)
	UpdateBug(ctx context.Context, id string, patch models.BugPatch) (*models.Bug, error)
	DeleteBug(ctx context.Context, id string) error
}

// State is a snapshot of the local mirror.
type State struct {
	Bugs      []*models.Bug
	Loading   bool
	Err       string
	Filter    string
	SortBy    string
	SortOrder query.Order
}

// Synchronizer owns the mirror. It is injected where needed; there is no
// package-level instance.
type Synchronizer struct {
	api Service

	mu    gosync.Mutex
	state State
}

// New creates a synchronizer with an empty mirror and default filter/sort.
func New(api Service) *Synchronizer {
	return &Synchronizer{
		api: api,
		state: State{
			Bugs:      []*models.Bug{},
			Filter:    query.FilterAll,
			SortBy:    query.DefaultField,
			SortOrder: query.DefaultOrder,
		},
	}
}

// --- Actions ---

// action is the closed set of state transitions. Adding a variant without
// handling it in apply is a compile-time visible change.
type action interface {
	isAction()
}

type setLoading struct{ loading bool }
type setError struct{ msg string }
type setBugs struct{ bugs []*models.Bug }
type clearBugs struct{}
type addBug struct{ bug *models.Bug }
type updateBug struct{ bug *models.Bug }
type removeBug struct{ id string }
type setFilter struct{ filter string }
type setSortBy struct{ field string }
type setSortOrder struct{ order query.Order }

func (setLoading) isAction()   {}
func (setError) isAction()     {}
func (setBugs) isAction()      {}
func (clearBugs) isAction()    {}
func (addBug) isAction()       {}
func (updateBug) isAction()    {}
func (removeBug) isAction()    {}
func (setFilter) isAction()    {}
func (setSortBy) isAction()    {}
func (setSortOrder) isAction() {}

func (s *Synchronizer) dispatch(a action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch a := a.(type) {
	case setLoading:
		s.state.Loading = a.loading
	case setError:
		s.state.Err = a.msg
		s.state.Loading = false
	case setBugs:
		s.state.Bugs = a.bugs
		s.state.Loading = false
		s.state.Err = ""
	case clearBugs:
		// Empties the mirror without touching Err: the failed-reload path
		// must keep the captured error message.
		s.state.Bugs = []*models.Bug{}
		s.state.Loading = false
	case addBug:
		s.state.Bugs = append([]*models.Bug{a.bug}, s.state.Bugs...)
		s.state.Loading = false
	case updateBug:
		for i, b := range s.state.Bugs {
			if b.ID == a.bug.ID {
				s.state.Bugs[i] = a.bug
			}
		}
		s.state.Loading = false
	case removeBug:
		bugs := s.state.Bugs[:0:0]
		for _, b := range s.state.Bugs {
			if b.ID != a.id {
				bugs = append(bugs, b)
			}
		}
		s.state.Bugs = bugs
		s.state.Loading = false
	case setFilter:
		s.state.Filter = a.filter
	case setSortBy:
		s.state.SortBy = a.field
	case setSortOrder:
		s.state.SortOrder = a.order
	}
}

// --- Reads ---

// State returns a snapshot of the mirror.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Bugs = append([]*models.Bug(nil), s.state.Bugs...)
	return st
}

// Visible re-derives the filtered, sorted view from the loaded set. It
// never refetches: filter and sort intents only change local fields.
func (s *Synchronizer) Visible() []*models.Bug {
	st := s.State()
	return query.Apply(st.Bugs, st.Filter, query.Sort{Field: st.SortBy, Order: st.SortOrder})
}

// --- Intents ---

// Fetch probes the backend, then replaces the mirror with the server's
// record set. If the probe fails, the list call is skipped entirely. On
// any failure the mirror is emptied so stale data is never presented
// after a failed reload.
func (s *Synchronizer) Fetch(ctx context.Context) error {
	s.dispatch(setLoading{true})

	if err := s.api.Health(ctx); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
		s.dispatch(setError{wrapped.Error()})
		s.dispatch(clearBugs{})
		return wrapped
	}

	bugs, err := s.api.ListBugs(ctx, client.ListOptions{})
	if err != nil {
		s.dispatch(setError{err.Error()})
		s.dispatch(clearBugs{})
		return err
	}
	if bugs == nil {
		bugs = []*models.Bug{}
	}
	s.dispatch(setBugs{bugs})
	return nil
}

// GetByID fetches a single record without touching the mirror's set.
func (s *Synchronizer) GetByID(ctx context.Context, id string) (*models.Bug, error) {
	s.dispatch(setLoading{true})

	bug, err := s.api.GetBug(ctx, id)
	if err != nil {
		s.dispatch(setError{err.Error()})
		return nil, err
	}
	s.dispatch(setLoading{false})
	return bug, nil
}

// Create submits a new bug; the stored record (with server-assigned id
// and timestamps) is committed to the front of the mirror.
func (s *Synchronizer) Create(ctx context.Context, nb client.NewBug) (*models.Bug, error) {
	s.dispatch(setLoading{true})

	bug, err := s.api.CreateBug(ctx, nb)
	if err != nil {
		s.dispatch(setError{err.Error()})
		return nil, err
	}
	s.dispatch(addBug{bug})
	return bug, nil
}

// Update applies a partial update; the merged record from the server
// replaces the local copy.
func (s *Synchronizer) Update(ctx context.Context, id string, patch models.BugPatch) (*models.Bug, error) {
	s.dispatch(setLoading{true})

	bug, err := s.api.UpdateBug(ctx, id, patch)
	if err != nil {
		s.dispatch(setError{err.Error()})
		return nil, err
	}
	s.dispatch(updateBug{bug})
	return bug, nil
}

// Delete removes a bug; the local copy goes only after the server
// confirms.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	s.dispatch(setLoading{true})

	if err := s.api.DeleteBug(ctx, id); err != nil {
		s.dispatch(setError{err.Error()})
		return err
	}
	s.dispatch(removeBug{id})
	return nil
}

// SetFilter changes the status filter. No refetch: Visible re-derives.
func (s *Synchronizer) SetFilter(filter string) {
	s.dispatch(setFilter{filter})
}

// SetSortBy changes the sort field.
func (s *Synchronizer) SetSortBy(field string) {
	s.dispatch(setSortBy{field})
}

// SetSortOrder changes the sort direction.
func (s *Synchronizer) SetSortOrder(order query.Order) {
	s.dispatch(setSortOrder{order})
}

// AppendTag returns tags with tag added, or ErrDuplicateTag if it is
// already present.
func AppendTag(tags []string, tag string) ([]string, error) {
	for _, t := range tags {
		if t == tag {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTag, tag)
		}
	}
	return append(append([]string(nil), tags...), tag), nil
}
