package rank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laneboard/internal/domain"
)

type fakePersister struct {
	err     error
	batches [][]domain.Ranking
	onSave  func()
}

func (f *fakePersister) UpsertRankings(ctx context.Context, rankings []domain.Ranking) error {
	f.batches = append(f.batches, rankings)
	if f.onSave != nil {
		f.onSave()
	}
	return f.err
}

func quietStore(p Persister) *Store {
	s := NewStore(p)
	s.logf = func(string, ...any) {}
	return s
}

func TestNextRank(t *testing.T) {
	s := quietStore(&fakePersister{})
	assert.Equal(t, 0, s.NextRank())

	s.Load([]domain.Ranking{
		{ProjectID: "a", Rank: 0},
		{ProjectID: "b", Rank: 4},
	})
	assert.Equal(t, 5, s.NextRank())
}

func TestUpdateMarksDirty(t *testing.T) {
	s := quietStore(&fakePersister{})
	assert.False(t, s.State().Dirty)

	s.Update(domain.Ranking{ProjectID: "a", Rank: 1})
	assert.True(t, s.State().Dirty)

	r, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, r.Rank)
	assert.NotEmpty(t, r.UpdatedAt)
}

func TestRankingsSorted(t *testing.T) {
	s := quietStore(&fakePersister{})
	s.Load([]domain.Ranking{
		{ProjectID: "c", Rank: 2},
		{ProjectID: "a", Rank: 0},
		{ProjectID: "b", Rank: 1},
	})
	got := s.Rankings()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ProjectID)
	assert.Equal(t, "b", got[1].ProjectID)
	assert.Equal(t, "c", got[2].ProjectID)
}

func TestTriggerSaveFlushesDirty(t *testing.T) {
	p := &fakePersister{}
	s := quietStore(p)
	s.Update(domain.Ranking{ProjectID: "a", Rank: 0})
	s.Update(domain.Ranking{ProjectID: "b", Rank: 1})

	require.NoError(t, s.TriggerSave(context.Background()))
	assert.False(t, s.State().Dirty)
	require.Len(t, p.batches, 1)
	assert.Len(t, p.batches[0], 2)

	// Nothing dirty: no second batch.
	require.NoError(t, s.TriggerSave(context.Background()))
	assert.Len(t, p.batches, 1)
}

func TestTriggerSaveFailureKeepsDirty(t *testing.T) {
	p := &fakePersister{err: errors.New("disk full")}
	s := quietStore(p)
	s.Update(domain.Ranking{ProjectID: "a", Rank: 0})

	err := s.TriggerSave(context.Background())
	require.Error(t, err)
	assert.True(t, s.State().Dirty)

	// Retry succeeds once the persister recovers.
	p.err = nil
	require.NoError(t, s.TriggerSave(context.Background()))
	assert.False(t, s.State().Dirty)
}

func TestTriggerSaveInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &fakePersister{onSave: func() {
		close(started)
		<-release
	}}
	s := quietStore(p)
	s.Update(domain.Ranking{ProjectID: "a", Rank: 0})

	done := make(chan error, 1)
	go func() { done <- s.TriggerSave(context.Background()) }()
	<-started

	assert.True(t, s.State().Saving)
	assert.ErrorIs(t, s.TriggerSave(context.Background()), ErrSaveInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.State().Saving)
}

func TestReDirtiedDuringFlushStaysDirty(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &fakePersister{onSave: func() {
		close(started)
		<-release
	}}
	s := quietStore(p)
	// Freeze the clock: both edits land in the same second, so only the
	// per-entry version can tell them apart.
	frozen := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }
	s.Update(domain.Ranking{ProjectID: "a", Rank: 0})

	done := make(chan error, 1)
	go func() { done <- s.TriggerSave(context.Background()) }()
	<-started

	// Edit while the flush is in flight; the newer value must stay dirty.
	s.Update(domain.Ranking{ProjectID: "a", Rank: 7})
	close(release)
	require.NoError(t, <-done)

	assert.True(t, s.State().Dirty)
	r, _ := s.Get("a")
	assert.Equal(t, 7, r.Rank)
}

func TestLoadPreservesDirtyEntries(t *testing.T) {
	s := quietStore(&fakePersister{})
	s.Load([]domain.Ranking{{ProjectID: "a", Rank: 0}})
	s.Update(domain.Ranking{ProjectID: "a", Rank: 5})

	// A reload from the store must not clobber the unsaved edit.
	s.Load([]domain.Ranking{{ProjectID: "a", Rank: 0}, {ProjectID: "b", Rank: 1}})
	r, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 5, r.Rank)
	assert.True(t, s.State().Dirty)
}

func TestSharedRank(t *testing.T) {
	s := quietStore(&fakePersister{})
	s.Load([]domain.Ranking{
		{ProjectID: "a", Rank: 0},
		{ProjectID: "b", Rank: 0},
	})
	other, shared := s.SharedRank("a", 0)
	assert.True(t, shared)
	assert.Equal(t, "b", other)

	_, shared = s.SharedRank("a", 3)
	assert.False(t, shared)
}
