// Package board implements the project board operations: project lifecycle,
// the drag-and-drop reconciliation protocol, milestones and role grants.
// Status changes commit in their own transaction; rank changes are applied
// to the in-memory store and flushed after, with no rollback of the status
// half when the flush fails.
package board

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"laneboard/internal/config"
	"laneboard/internal/domain"
	"laneboard/internal/events"
	"laneboard/internal/rank"
	"laneboard/internal/repo"
	"laneboard/internal/statusgraph"
)

// ReasonPrompter collects a reason interactively. ok=false means the user
// dismissed the prompt and the move must be abandoned untouched.
type ReasonPrompter interface {
	PromptReason(prompt string) (reason string, ok bool)
}

var projectKinds = map[string]bool{"rpa": true, "script": true, "enhancement": true, "bug": true}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Graph    *statusgraph.Graph
	Ranks    *rank.Store
	Prompter ReasonPrompter
	Now      func() time.Time
	Logf     func(format string, args ...any)
}

// New wires an engine over an open database. Rankings are loaded lazily via
// LoadRankings so callers control when the snapshot is taken.
func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	g, err := statusgraph.New(cfg)
	if err != nil {
		return Engine{}, err
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Graph:  g,
		Ranks:  rank.NewStore(r),
		Now:    time.Now,
		Logf:   log.Printf,
	}, nil
}

func (e Engine) now() string {
	if e.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return e.Now().UTC().Format(time.RFC3339)
}

func (e Engine) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

// LoadRankings replaces the rank store's snapshot with persisted rankings.
func (e Engine) LoadRankings(ctx context.Context) error {
	rankings, err := e.Repo.ListRankings(ctx)
	if err != nil {
		return err
	}
	e.Ranks.Load(rankings)
	return nil
}

// EnsureBoard seeds the board row, its stored config and the configured
// roles. Idempotent.
func (e Engine) EnsureBoard(ctx context.Context) error {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureBoard(ctx, tx, e.Config.Board.ID, e.Config.Board.Title, now); err != nil {
		return err
	}
	if err := e.Repo.UpsertBoardConfigTx(ctx, tx, e.Config.Board.ID, e.Config); err != nil {
		return err
	}
	for id, role := range e.Config.RBAC.Roles {
		if err := e.Repo.InsertRole(ctx, tx, id, role.Description); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type CreateProjectOptions struct {
	ID       string
	Title    string
	Kind     string
	Status   string
	Stage    string
	Priority *int
	ActorID  string
}

// CreateProject inserts a project. An empty status defaults to the ranked
// lane; a project created there gets a ranking at the end of the lane.
func (e Engine) CreateProject(ctx context.Context, opts CreateProjectOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Project{}, fmt.Errorf("title required")
	}
	if !projectKinds[opts.Kind] {
		return domain.Project{}, fmt.Errorf("kind must be one of rpa, script, enhancement, bug")
	}
	status := opts.Status
	if status == "" {
		status = e.Graph.RankedLane()
	}
	if _, ok := e.Graph.Status(status); !ok {
		return domain.Project{}, fmt.Errorf("unknown status %s", status)
	}
	if opts.Stage != "" && !e.Graph.HasStage(status, opts.Stage) {
		return domain.Project{}, fmt.Errorf("status %s has no stage %s", status, opts.Stage)
	}
	now := e.now()
	p := domain.Project{
		ID:        strings.TrimSpace(opts.ID),
		BoardID:   e.Config.Board.ID,
		Title:     strings.TrimSpace(opts.Title),
		Kind:      opts.Kind,
		Status:    status,
		Priority:  opts.Priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.ID == "" {
		p.ID = newProjectID(opts.Kind)
	}
	if opts.Stage != "" {
		stage := opts.Stage
		p.DevStage = &stage
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.BoardID, "project", p.ID, opts.ActorID, events.EventPayload{
		"title": p.Title, "kind": p.Kind, "status": p.Status,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}

	if status == e.Graph.RankedLane() {
		e.Ranks.Update(domain.Ranking{ProjectID: p.ID, Rank: e.Ranks.NextRank()})
		if err := e.Ranks.TriggerSave(ctx); err != nil && !errors.Is(err, rank.ErrSaveInFlight) {
			return p, PersistenceError{Op: "save ranking for " + p.ID, Err: err}
		}
	}
	return p, nil
}

func newProjectID(kind string) string {
	prefix := strings.ToUpper(kind)
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(raw[:8])
}

type UpdateProjectOptions struct {
	ID       string
	Title    *string
	Kind     *string
	Priority *int
	ActorID  string
}

// UpdateProject edits descriptive fields. Status and stage only change
// through Drop.
func (e Engine) UpdateProject(ctx context.Context, opts UpdateProjectOptions) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Project{}, err
	}
	changed := events.EventPayload{}
	if opts.Title != nil && *opts.Title != p.Title {
		if strings.TrimSpace(*opts.Title) == "" {
			return domain.Project{}, fmt.Errorf("title required")
		}
		p.Title = strings.TrimSpace(*opts.Title)
		changed["title"] = p.Title
	}
	if opts.Kind != nil && *opts.Kind != p.Kind {
		if !projectKinds[*opts.Kind] {
			return domain.Project{}, fmt.Errorf("kind must be one of rpa, script, enhancement, bug")
		}
		p.Kind = *opts.Kind
		changed["kind"] = p.Kind
	}
	if opts.Priority != nil {
		p.Priority = opts.Priority
		changed["priority"] = *opts.Priority
	}
	if len(changed) == 0 {
		return p, nil
	}
	p.UpdatedAt = e.now()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", p.BoardID, "project", p.ID, opts.ActorID, changed); err != nil {
		return domain.Project{}, err
	}
	return p, tx.Commit()
}

// DeleteProject removes a project and records the deletion.
func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "project.deleted", p.BoardID, "project", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Comments decodes a project's comment history, newest first.
func Comments(p domain.Project) ([]domain.Comment, error) {
	if p.CommentsJSON == nil || *p.CommentsJSON == "" {
		return nil, nil
	}
	var out []domain.Comment
	if err := json.Unmarshal([]byte(*p.CommentsJSON), &out); err != nil {
		return nil, fmt.Errorf("decode comments for %s: %w", p.ID, err)
	}
	return out, nil
}

func prependComment(p *domain.Project, c domain.Comment) error {
	history, err := Comments(*p)
	if err != nil {
		return err
	}
	history = append([]domain.Comment{c}, history...)
	data, err := json.Marshal(history)
	if err != nil {
		return err
	}
	s := string(data)
	p.CommentsJSON = &s
	return nil
}

// AddComment appends a comment to the project history.
func (e Engine) AddComment(ctx context.Context, projectID, comment, actorID string) (domain.Project, error) {
	if strings.TrimSpace(comment) == "" {
		return domain.Project{}, fmt.Errorf("comment required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	now := e.now()
	if err := prependComment(&p, domain.Comment{Date: now, Comment: strings.TrimSpace(comment), User: actorID}); err != nil {
		return domain.Project{}, err
	}
	p.UpdatedAt = now
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "comment.added", p.BoardID, "project", p.ID, actorID, nil); err != nil {
		return domain.Project{}, err
	}
	return p, tx.Commit()
}

// AddMilestone creates a milestone on a project.
func (e Engine) AddMilestone(ctx context.Context, projectID, title string, progress int, actorID string) (domain.Milestone, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Milestone{}, fmt.Errorf("title required")
	}
	if progress < 0 || progress > 100 {
		return domain.Milestone{}, fmt.Errorf("progress must be 0..100")
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	m := domain.Milestone{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Title:     strings.TrimSpace(title),
		Progress:  progress,
		UpdatedAt: e.now(),
	}
	if err := e.Repo.InsertMilestone(ctx, m); err != nil {
		return domain.Milestone{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "milestone.added", p.BoardID, "milestone", m.ID, actorID, events.EventPayload{
		"project_id": projectID, "title": m.Title,
	}); err != nil {
		return domain.Milestone{}, err
	}
	return m, tx.Commit()
}

// SetMilestoneProgress updates one milestone's progress.
func (e Engine) SetMilestoneProgress(ctx context.Context, milestoneID string, progress int, actorID string) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress must be 0..100")
	}
	if err := e.Repo.UpdateMilestoneProgress(ctx, milestoneID, progress, e.now()); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "milestone.updated", e.Config.Board.ID, "milestone", milestoneID, actorID, events.EventPayload{
		"progress": progress,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CheckMove answers whether a status change would be accepted, without
// touching anything. The decision carries the reason prompt when one would
// be demanded.
func (e Engine) CheckMove(ctx context.Context, projectID, toStatus string, isAdmin bool) (Decision, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return Decision{}, err
	}
	if _, ok := e.Graph.Status(toStatus); !ok {
		return Decision{}, fmt.Errorf("unknown status %s", toStatus)
	}
	progress, err := e.Repo.MilestoneProgress(ctx, projectID)
	if err != nil {
		return Decision{}, err
	}
	return ValidateMove(e.Graph, isAdmin, p.Status, toStatus, progress)
}

// DropOptions describes one drag-and-drop gesture. TargetProjectID names
// the occupant of the slot the card was dropped on, when there is one;
// TargetIndex is the slot position otherwise.
type DropOptions struct {
	ProjectID       string
	ToStatus        string
	ToStage         string
	TargetIndex     *int
	TargetProjectID string
	Reason          string
	ActorID         string
	IsAdmin         bool
}

type DropResult struct {
	Project       domain.Project `json:"project"`
	StatusChanged bool           `json:"status_changed"`
	RankChanged   bool           `json:"rank_changed"`
	RankState     rank.State     `json:"rank_state"`
}

// Drop reconciles a drag-and-drop gesture. It decides independently whether
// the status half and the rank half differ from current state, validates the
// status change before writing anything, commits the status change in its
// own transaction, then swaps ranks in memory and flushes. A failed flush
// leaves the status change committed, records a reconcile marker event and
// surfaces a persistence error; the rank store stays dirty for retry.
func (e Engine) Drop(ctx context.Context, opts DropOptions) (DropResult, error) {
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return DropResult{}, err
	}
	toStatus := opts.ToStatus
	if toStatus == "" {
		toStatus = p.Status
	}
	if _, ok := e.Graph.Status(toStatus); !ok {
		return DropResult{}, fmt.Errorf("unknown status %s", toStatus)
	}
	if opts.ToStage != "" && !e.Graph.HasStage(toStatus, opts.ToStage) {
		return DropResult{}, fmt.Errorf("status %s has no stage %s", toStatus, opts.ToStage)
	}

	fromStage := ""
	if p.DevStage != nil {
		fromStage = *p.DevStage
	}
	statusDiffers := p.Status != toStatus || fromStage != opts.ToStage

	// The rank half only exists inside the ranked lane. A ranking missing on
	// either side of the comparison is synthesized at the drop slot, or at
	// the end of the lane when no slot is known.
	ranked := toStatus == e.Graph.RankedLane()
	var incoming, present domain.Ranking
	rankDiffers := false
	if ranked {
		incoming = e.rankingOrSynth(opts.ProjectID, opts.TargetIndex)
		if opts.TargetProjectID != "" && opts.TargetProjectID != opts.ProjectID {
			present = e.rankingOrSynth(opts.TargetProjectID, opts.TargetIndex)
		} else {
			present = domain.Ranking{ProjectID: opts.ProjectID, Rank: incoming.Rank}
		}
		rankDiffers = incoming.Rank != present.Rank
	}

	if !statusDiffers && !rankDiffers {
		if ranked {
			if other, shared := e.Ranks.SharedRank(opts.ProjectID, incoming.Rank); shared {
				e.logf("board: projects %s and %s share rank %d", opts.ProjectID, other, incoming.Rank)
			}
		}
		return DropResult{Project: p, RankState: e.Ranks.State()}, nil
	}

	reason := strings.TrimSpace(opts.Reason)
	if statusDiffers {
		progress, err := e.Repo.MilestoneProgress(ctx, opts.ProjectID)
		if err != nil {
			return DropResult{}, err
		}
		decision, err := ValidateMove(e.Graph, opts.IsAdmin, p.Status, toStatus, progress)
		if err != nil {
			return DropResult{}, err
		}
		if decision.NeedsReason && reason == "" {
			if e.Prompter != nil {
				got, ok := e.Prompter.PromptReason(decision.ReasonPrompt)
				if !ok {
					return DropResult{}, ErrReasonCanceled
				}
				reason = strings.TrimSpace(got)
			}
			if reason == "" {
				return DropResult{}, ReasonRequiredError{Status: toStatus, Prompt: decision.ReasonPrompt}
			}
		}

		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return DropResult{}, err
		}
		defer tx.Rollback()
		now := e.now()
		fromStatus := p.Status
		p.Status = toStatus
		if opts.ToStage != "" {
			stage := opts.ToStage
			p.DevStage = &stage
		} else {
			p.DevStage = nil
		}
		if reason != "" {
			if err := prependComment(&p, domain.Comment{Date: now, Comment: reason, User: opts.ActorID}); err != nil {
				return DropResult{}, err
			}
		}
		p.UpdatedAt = now
		if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
			return DropResult{}, err
		}
		payload := events.EventPayload{"from": fromStatus, "to": toStatus}
		if opts.ToStage != "" {
			payload["stage"] = opts.ToStage
		}
		if reason != "" {
			payload["reason"] = reason
		}
		if err := e.Events.Append(ctx, tx, "project.moved", p.BoardID, "project", p.ID, opts.ActorID, payload); err != nil {
			return DropResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return DropResult{}, err
		}
	}

	result := DropResult{Project: p, StatusChanged: statusDiffers, RankChanged: rankDiffers}
	if rankDiffers {
		// Swap both sides: the dropped project takes the displaced
		// occupant's rank and the occupant takes the old one, so drops
		// never leave two projects on the same rank.
		e.Ranks.Update(domain.Ranking{ProjectID: opts.ProjectID, Rank: present.Rank})
		if opts.TargetProjectID != "" && opts.TargetProjectID != opts.ProjectID {
			e.Ranks.Update(domain.Ranking{ProjectID: opts.TargetProjectID, Rank: incoming.Rank})
		}
		if err := e.Ranks.TriggerSave(ctx); err != nil && !errors.Is(err, rank.ErrSaveInFlight) {
			e.recordReconcileNeeded(ctx, opts.ActorID, err)
			result.RankState = e.Ranks.State()
			return result, PersistenceError{Op: "save rankings after drop of " + opts.ProjectID, Err: err}
		}
	} else if ranked {
		if _, ok := e.Ranks.Get(opts.ProjectID); !ok {
			// First entry into the ranked lane: persist the synthesized slot.
			e.Ranks.Update(incoming)
			if err := e.Ranks.TriggerSave(ctx); err != nil && !errors.Is(err, rank.ErrSaveInFlight) {
				e.recordReconcileNeeded(ctx, opts.ActorID, err)
				result.RankState = e.Ranks.State()
				return result, PersistenceError{Op: "save ranking for " + opts.ProjectID, Err: err}
			}
		}
	}
	result.RankState = e.Ranks.State()
	return result, nil
}

func (e Engine) rankingOrSynth(projectID string, targetIndex *int) domain.Ranking {
	if r, ok := e.Ranks.Get(projectID); ok {
		return r
	}
	if targetIndex != nil {
		return domain.Ranking{ProjectID: projectID, Rank: *targetIndex}
	}
	return domain.Ranking{ProjectID: projectID, Rank: e.Ranks.NextRank()}
}

// recordReconcileNeeded marks the board as needing a rank flush retry. Best
// effort: the marker must not mask the original failure.
func (e Engine) recordReconcileNeeded(ctx context.Context, actorID string, cause error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.logf("board: record reconcile marker: %v", err)
		return
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "board.reconcile_needed", e.Config.Board.ID, "board", e.Config.Board.ID, actorID, events.EventPayload{
		"error": cause.Error(),
	}); err != nil {
		e.logf("board: record reconcile marker: %v", err)
		return
	}
	if err := tx.Commit(); err != nil {
		e.logf("board: record reconcile marker: %v", err)
	}
}

// SaveRankings retries the flush of unsaved rank changes.
func (e Engine) SaveRankings(ctx context.Context) (rank.State, error) {
	err := e.Ranks.TriggerSave(ctx)
	return e.Ranks.State(), err
}

// LaneCard is a project plus its rank when it sits in the ranked lane.
type LaneCard struct {
	Project domain.Project `json:"project"`
	Rank    *int           `json:"rank,omitempty"`
}

// Lane is one column of the board view.
type Lane struct {
	Status statusgraph.Status `json:"status"`
	Cards  []LaneCard         `json:"cards"`
}

// Lanes assembles the board view: one lane per visible status in config
// order. The ranked lane sorts by rank ascending; other lanes sort by
// priority then creation time.
func (e Engine) Lanes(ctx context.Context, includeHidden bool) ([]Lane, error) {
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{BoardID: e.Config.Board.ID})
	if err != nil {
		return nil, err
	}
	byStatus := map[string][]domain.Project{}
	for _, p := range projects {
		byStatus[p.Status] = append(byStatus[p.Status], p)
	}
	var lanes []Lane
	for _, status := range e.Graph.Statuses(includeHidden) {
		lane := Lane{Status: status, Cards: []LaneCard{}}
		members := byStatus[status.ID]
		if status.ID == e.Graph.RankedLane() {
			sort.SliceStable(members, func(i, j int) bool {
				ri, iok := e.Ranks.Get(members[i].ID)
				rj, jok := e.Ranks.Get(members[j].ID)
				if iok != jok {
					return iok
				}
				if !iok {
					return members[i].CreatedAt < members[j].CreatedAt
				}
				return ri.Rank < rj.Rank
			})
		} else {
			sort.SliceStable(members, func(i, j int) bool {
				pi, pj := members[i].Priority, members[j].Priority
				if (pi != nil) != (pj != nil) {
					return pi != nil
				}
				if pi != nil && *pi != *pj {
					return *pi < *pj
				}
				return members[i].CreatedAt < members[j].CreatedAt
			})
		}
		for _, p := range members {
			card := LaneCard{Project: p}
			if status.ID == e.Graph.RankedLane() {
				if r, ok := e.Ranks.Get(p.ID); ok {
					v := r.Rank
					card.Rank = &v
				}
			}
			lane.Cards = append(lane.Cards, card)
		}
		lanes = append(lanes, lane)
	}
	return lanes, nil
}

// GrantRole assigns a role to an actor on this board, creating the actor
// row when needed.
func (e Engine) GrantRole(ctx context.Context, actorID, roleID, grantedBy string) error {
	if _, ok := e.Config.RBAC.Roles[roleID]; !ok && len(e.Config.RBAC.Roles) > 0 {
		return fmt.Errorf("unknown role %s", roleID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := e.now()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return err
	}
	if err := e.Repo.InsertRole(ctx, tx, roleID, e.Config.RBAC.Roles[roleID].Description); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, e.Config.Board.ID, actorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "role.granted", e.Config.Board.ID, "actor", actorID, grantedBy, events.EventPayload{
		"role": roleID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeRole removes a role from an actor on this board.
func (e Engine) RevokeRole(ctx context.Context, actorID, roleID, revokedBy string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, e.Config.Board.ID, actorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "role.revoked", e.Config.Board.ID, "actor", actorID, revokedBy, events.EventPayload{
		"role": roleID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// IsAdmin reports whether the actor holds any role the config flags admin.
func (e Engine) IsAdmin(ctx context.Context, actorID string) (bool, error) {
	roles, err := e.Repo.ActorRoles(ctx, e.Config.Board.ID, actorID)
	if err != nil {
		return false, err
	}
	admin := map[string]bool{}
	for _, id := range e.Config.AdminRoles() {
		admin[id] = true
	}
	for _, r := range roles {
		if admin[r] {
			return true, nil
		}
	}
	return false, nil
}
