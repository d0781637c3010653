package board_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"laneboard/internal/board"
	"laneboard/internal/config"
	"laneboard/internal/db"
	"laneboard/internal/domain"
	"laneboard/internal/migrate"
	"laneboard/internal/rank"
)

func newTestEngine(t *testing.T) board.Engine {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := board.New(conn, config.Default("test-board"))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.Logf = t.Logf
	ctx := context.Background()
	if err := e.EnsureBoard(ctx); err != nil {
		t.Fatalf("ensure board: %v", err)
	}
	if err := e.LoadRankings(ctx); err != nil {
		t.Fatalf("load rankings: %v", err)
	}
	return e
}

func mustCreate(t *testing.T, e board.Engine, title, status string) domain.Project {
	t.Helper()
	p, err := e.CreateProject(context.Background(), board.CreateProjectOptions{
		Title:   title,
		Kind:    "rpa",
		Status:  status,
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project %s: %v", title, err)
	}
	return p
}

func rankOf(t *testing.T, e board.Engine, projectID string) int {
	t.Helper()
	r, ok := e.Ranks.Get(projectID)
	if !ok {
		t.Fatalf("project %s has no ranking", projectID)
	}
	return r.Rank
}

func TestCreateProjectAssignsNextRank(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreate(t, e, "First", "")
	b := mustCreate(t, e, "Second", "")

	if got := rankOf(t, e, a.ID); got != 0 {
		t.Fatalf("first project rank = %d, want 0", got)
	}
	if got := rankOf(t, e, b.ID); got != 1 {
		t.Fatalf("second project rank = %d, want 1", got)
	}
	if state := e.Ranks.State(); state.Dirty {
		t.Fatalf("rank store dirty after create, want flushed")
	}

	// Persisted, not just in memory.
	persisted, err := e.Repo.GetRanking(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get ranking: %v", err)
	}
	if persisted.Rank != 1 {
		t.Fatalf("persisted rank = %d, want 1", persisted.Rank)
	}
}

func TestCreateProjectOutsideRankedLaneHasNoRank(t *testing.T) {
	e := newTestEngine(t)
	p := mustCreate(t, e, "Held", "on_hold")
	if _, ok := e.Ranks.Get(p.ID); ok {
		t.Fatalf("project outside the ranked lane got a rank")
	}
}

func TestDropSwapsRanks(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreate(t, e, "First", "")
	b := mustCreate(t, e, "Second", "")

	res, err := e.Drop(context.Background(), board.DropOptions{
		ProjectID:       a.ID,
		ToStatus:        "under_evaluation",
		TargetProjectID: b.ID,
		ActorID:         "tester",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if res.StatusChanged {
		t.Fatalf("status changed on a rank-only drop")
	}
	if !res.RankChanged {
		t.Fatalf("rank not changed")
	}
	if got := rankOf(t, e, a.ID); got != 1 {
		t.Fatalf("dropped project rank = %d, want 1", got)
	}
	if got := rankOf(t, e, b.ID); got != 0 {
		t.Fatalf("displaced project rank = %d, want 0", got)
	}
	if res.RankState.Dirty {
		t.Fatalf("rank state dirty after successful flush")
	}
}

func TestDropOnSelfIsNoOp(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreate(t, e, "First", "")

	res, err := e.Drop(context.Background(), board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "under_evaluation",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if res.StatusChanged || res.RankChanged {
		t.Fatalf("no-op drop reported changes: %+v", res)
	}
}

func TestDropReasonRequired(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreate(t, e, "First", "")
	ctx := context.Background()

	_, err := e.Drop(ctx, board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "denied",
		ActorID:   "tester",
	})
	var needReason board.ReasonRequiredError
	if !errors.As(err, &needReason) {
		t.Fatalf("drop without reason: got %v, want ReasonRequiredError", err)
	}

	// Nothing written before the reason check.
	p, err := e.Repo.GetProject(ctx, a.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Status != "under_evaluation" {
		t.Fatalf("status changed to %s despite missing reason", p.Status)
	}

	// Retry with the reason: status changes and the reason lands in the
	// comment history, newest first.
	res, err := e.Drop(ctx, board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "denied",
		Reason:    "Out of budget",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("drop with reason: %v", err)
	}
	if res.Project.Status != "denied" {
		t.Fatalf("status = %s, want denied", res.Project.Status)
	}
	comments, err := board.Comments(res.Project)
	if err != nil {
		t.Fatalf("comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Comment != "Out of budget" {
		t.Fatalf("reason comment missing: %+v", comments)
	}
}

type cancelPrompter struct{}

func (cancelPrompter) PromptReason(string) (string, bool) { return "", false }

type answerPrompter struct{ answer string }

func (p answerPrompter) PromptReason(string) (string, bool) { return p.answer, true }

func TestDropPrompterCancelAbandonsMove(t *testing.T) {
	e := newTestEngine(t)
	e.Prompter = cancelPrompter{}
	a := mustCreate(t, e, "First", "")

	_, err := e.Drop(context.Background(), board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "denied",
		ActorID:   "tester",
	})
	if !errors.Is(err, board.ErrReasonCanceled) {
		t.Fatalf("got %v, want ErrReasonCanceled", err)
	}
	p, _ := e.Repo.GetProject(context.Background(), a.ID)
	if p.Status != "under_evaluation" {
		t.Fatalf("status changed after cancel: %s", p.Status)
	}
}

func TestDropPrompterSuppliesReason(t *testing.T) {
	e := newTestEngine(t)
	e.Prompter = answerPrompter{answer: "Vendor delay"}
	a := mustCreate(t, e, "First", "")

	res, err := e.Drop(context.Background(), board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "on_hold",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	comments, _ := board.Comments(res.Project)
	if len(comments) != 1 || comments[0].Comment != "Vendor delay" {
		t.Fatalf("prompted reason not recorded: %+v", comments)
	}
}

func TestDropMilestoneGate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, "First", "in_development")

	_, err := e.Drop(ctx, board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "in_production",
		ActorID:   "tester",
	})
	var incomplete board.MilestonesIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("got %v, want MilestonesIncompleteError", err)
	}

	if _, err := e.AddMilestone(ctx, a.ID, "UAT sign-off", 100, "tester"); err != nil {
		t.Fatalf("add milestone: %v", err)
	}
	if _, err := e.Drop(ctx, board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "in_production",
		ActorID:   "tester",
	}); err != nil {
		t.Fatalf("drop after milestones complete: %v", err)
	}
}

func TestDropAdminOnlyEdge(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, "First", "in_development")

	_, err := e.Drop(ctx, board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "under_evaluation",
		ActorID:   "tester",
	})
	var illegal board.IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("got %v, want IllegalTransitionError", err)
	}

	if _, err := e.Drop(ctx, board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "under_evaluation",
		ActorID:   "boss",
		IsAdmin:   true,
	}); err != nil {
		t.Fatalf("admin drop: %v", err)
	}
}

func TestDropIntoRankedLaneSynthesizesSlot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, "Held", "on_hold")

	idx := 3
	res, err := e.Drop(ctx, board.DropOptions{
		ProjectID:   a.ID,
		ToStatus:    "under_evaluation",
		TargetIndex: &idx,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !res.StatusChanged {
		t.Fatalf("status not changed")
	}
	if got := rankOf(t, e, a.ID); got != 3 {
		t.Fatalf("rank = %d, want the drop slot 3", got)
	}
}

type failingPersister struct{}

func (failingPersister) UpsertRankings(context.Context, []domain.Ranking) error {
	return fmt.Errorf("disk full")
}

func TestDropRankFlushFailureRecordsReconcileMarker(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, "First", "")
	b := mustCreate(t, e, "Second", "")

	// Swap the store for one whose flush always fails, seeded with the
	// current rankings.
	broken := rank.NewStore(failingPersister{})
	broken.Load(e.Ranks.Rankings())
	e.Ranks = broken

	_, err := e.Drop(ctx, board.DropOptions{
		ProjectID:       a.ID,
		ToStatus:        "under_evaluation",
		TargetProjectID: b.ID,
		ActorID:         "tester",
	})
	var persistErr board.PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("got %v, want PersistenceError", err)
	}
	if state := e.Ranks.State(); !state.Dirty {
		t.Fatalf("rank store not dirty after failed flush")
	}

	// The in-memory swap stands so a retry flushes the right values.
	if got := rankOf(t, e, a.ID); got != 1 {
		t.Fatalf("in-memory rank = %d, want 1", got)
	}

	events, err := e.Repo.LatestEvents(ctx, 10, "test-board", "board.reconcile_needed", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("no reconcile marker event recorded")
	}
}

func TestDropStageOnlyChange(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, "First", "in_development")

	res, err := e.Drop(ctx, board.DropOptions{
		ProjectID: a.ID,
		ToStatus:  "in_development",
		ToStage:   "build",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !res.StatusChanged {
		t.Fatalf("stage change not treated as a change")
	}
	if res.Project.DevStage == nil || *res.Project.DevStage != "build" {
		t.Fatalf("stage = %v, want build", res.Project.DevStage)
	}
}

func TestDropRejectsUnknownStatusAndStage(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, "First", "")

	if _, err := e.Drop(ctx, board.DropOptions{ProjectID: a.ID, ToStatus: "ghost", ActorID: "tester"}); err == nil {
		t.Fatalf("unknown status accepted")
	}
	if _, err := e.Drop(ctx, board.DropOptions{ProjectID: a.ID, ToStatus: "under_evaluation", ToStage: "ghost", ActorID: "tester"}); err == nil {
		t.Fatalf("unknown stage accepted")
	}
}

func TestLanesOrdering(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, "First", "")
	b := mustCreate(t, e, "Second", "")

	// Swap so b leads the ranked lane.
	if _, err := e.Drop(ctx, board.DropOptions{
		ProjectID:       a.ID,
		ToStatus:        "under_evaluation",
		TargetProjectID: b.ID,
		ActorID:         "tester",
	}); err != nil {
		t.Fatalf("drop: %v", err)
	}

	lanes, err := e.Lanes(ctx, false)
	if err != nil {
		t.Fatalf("lanes: %v", err)
	}
	var ranked *board.Lane
	for i := range lanes {
		if lanes[i].Status.ID == "under_evaluation" {
			ranked = &lanes[i]
		}
		if lanes[i].Status.ID == "archived" {
			t.Fatalf("hidden lane included by default")
		}
	}
	if ranked == nil {
		t.Fatalf("ranked lane missing")
	}
	if len(ranked.Cards) != 2 || ranked.Cards[0].Project.ID != b.ID {
		t.Fatalf("ranked lane order wrong: %+v", ranked.Cards)
	}
}

func TestGrantRoleMakesAdmin(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	isAdmin, err := e.IsAdmin(ctx, "boss")
	if err != nil {
		t.Fatalf("is admin: %v", err)
	}
	if isAdmin {
		t.Fatalf("actor admin before any grant")
	}

	if err := e.GrantRole(ctx, "boss", "admin", "tester"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	isAdmin, err = e.IsAdmin(ctx, "boss")
	if err != nil {
		t.Fatalf("is admin: %v", err)
	}
	if !isAdmin {
		t.Fatalf("actor not admin after grant")
	}

	if err := e.RevokeRole(ctx, "boss", "admin", "tester"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	isAdmin, _ = e.IsAdmin(ctx, "boss")
	if isAdmin {
		t.Fatalf("actor still admin after revoke")
	}
}

func TestGrantRoleRejectsUnknownRole(t *testing.T) {
	e := newTestEngine(t)
	if err := e.GrantRole(context.Background(), "boss", "emperor", "tester"); err == nil {
		t.Fatalf("unknown role accepted")
	}
}

func TestCheckMoveDoesNotWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	a := mustCreate(t, e, "First", "")

	d, err := e.CheckMove(ctx, a.ID, "on_hold", false)
	if err != nil {
		t.Fatalf("check move: %v", err)
	}
	if !d.NeedsReason || d.ReasonPrompt != "Why is this project on hold?" {
		t.Fatalf("decision = %+v", d)
	}

	p, _ := e.Repo.GetProject(ctx, a.ID)
	if p.Status != "under_evaluation" {
		t.Fatalf("check move wrote a status change")
	}
}
