// Package rank maintains the manual ordering of projects within the ranked
// lane. Updates are applied to memory immediately and flushed to the
// backing store in batches; a failed flush keeps the store dirty so the
// caller can retry. There is no rollback.
package rank

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"laneboard/internal/domain"
)

// ErrSaveInFlight is returned when a flush is requested while another one
// has not settled yet.
var ErrSaveInFlight = errors.New("ranking save already in flight")

// Persister is the ranking persistence collaborator: a bulk upsert keyed by
// project id.
type Persister interface {
	UpsertRankings(ctx context.Context, rankings []domain.Ranking) error
}

// State is the save state exposed to the UI: unsaved (dirty), in flight
// (saving), or settled (neither).
type State struct {
	Dirty  bool `json:"dirty"`
	Saving bool `json:"saving"`
}

type Store struct {
	persister Persister
	now       func() time.Time
	logf      func(format string, args ...any)

	mu        sync.Mutex
	byProject map[string]domain.Ranking
	dirty     map[string]struct{}
	version   map[string]uint64
	saving    bool
}

func NewStore(p Persister) *Store {
	return &Store{
		persister: p,
		now:       time.Now,
		logf:      log.Printf,
		byProject: map[string]domain.Ranking{},
		dirty:     map[string]struct{}{},
		version:   map[string]uint64{},
	}
}

// Load replaces the in-memory collection with persisted rankings. Pending
// dirty entries survive a reload so an unsaved edit is not silently lost.
func (s *Store) Load(rankings []domain.Ranking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make(map[string]domain.Ranking, len(rankings))
	for _, r := range rankings {
		fresh[r.ProjectID] = r
	}
	for id := range s.dirty {
		if cur, ok := s.byProject[id]; ok {
			fresh[id] = cur
		}
	}
	s.byProject = fresh
}

// Rankings returns a snapshot sorted by rank ascending.
func (s *Store) Rankings() []domain.Ranking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Ranking, 0, len(s.byProject))
	for _, r := range s.byProject {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ProjectID < out[j].ProjectID
	})
	return out
}

// Get returns the ranking for a project, if any.
func (s *Store) Get(projectID string) (domain.Ranking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byProject[projectID]
	return r, ok
}

// NextRank returns max(existing ranks)+1, or 0 when the collection is
// empty.
func (s *Store) NextRank() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := -1
	for _, r := range s.byProject {
		if r.Rank > max {
			max = r.Rank
		}
	}
	return max + 1
}

// Update upserts a ranking and marks it dirty. Two distinct projects ending
// up on the same rank is logged as a warning, never rejected: it signals an
// internal inconsistency, not a user error.
func (s *Store) Update(r domain.Ranking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	for id, other := range s.byProject {
		if id != r.ProjectID && other.Rank == r.Rank {
			s.logf("rank: projects %s and %s share rank %d", r.ProjectID, id, r.Rank)
		}
	}
	s.byProject[r.ProjectID] = r
	s.dirty[r.ProjectID] = struct{}{}
	s.version[r.ProjectID]++
}

// SharedRank returns another project currently holding the same rank, if
// any. Used by the drop no-op check as a consistency signal.
func (s *Store) SharedRank(projectID string, rank int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.byProject {
		if id != projectID && r.Rank == rank {
			return id, true
		}
	}
	return "", false
}

// State reports whether unsaved changes exist and whether a flush is in
// flight.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Dirty: len(s.dirty) > 0, Saving: s.saving}
}

// TriggerSave flushes all dirty rankings in one batch. On failure the
// entries stay dirty so the caller can retry; entries re-dirtied while the
// flush was in flight also stay dirty.
func (s *Store) TriggerSave(ctx context.Context) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInFlight
	}
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := make([]domain.Ranking, 0, len(s.dirty))
	// Per-entry versions catch edits made while the flush is in flight;
	// timestamps cannot, two edits in the same second are indistinguishable.
	flushed := make(map[string]uint64, len(s.dirty))
	for id := range s.dirty {
		batch = append(batch, s.byProject[id])
		flushed[id] = s.version[id]
	}
	s.saving = true
	s.mu.Unlock()

	err := s.persister.UpsertRankings(ctx, batch)

	s.mu.Lock()
	s.saving = false
	if err == nil {
		for id, ver := range flushed {
			if s.version[id] == ver {
				delete(s.dirty, id)
			}
		}
	}
	s.mu.Unlock()
	return err
}
