// Package statusgraph holds the frozen catalogue of board statuses, their
// stages and the legal transitions between them. The graph is built once
// from config and never mutated; accessors hand out copies so callers
// cannot reach the internal maps.
package statusgraph

import (
	"fmt"
	"strings"

	"laneboard/internal/config"
)

// Requirements are the preconditions attached to a destination status.
type Requirements struct {
	Reason             bool   `json:"reason"`
	ReasonPrompt       string `json:"reason_prompt,omitempty"`
	Milestones         bool   `json:"milestones"`
	MilestoneThreshold int    `json:"milestone_threshold,omitempty"`
}

// Stage is a sub-division within a status. Title may be empty to suppress
// the header while the stage remains structurally present.
type Stage struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Hidden bool   `json:"hidden,omitempty"`
}

// Status is a read-only snapshot of one workflow state.
type Status struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Hidden       bool         `json:"hidden,omitempty"`
	Stages       []Stage      `json:"stages,omitempty"`
	Moves        []string     `json:"moves"`
	AdminMoves   []string     `json:"admin_moves,omitempty"`
	Requirements Requirements `json:"requirements"`
}

type node struct {
	status     Status
	moves      map[string]struct{}
	adminMoves map[string]struct{}
}

// Graph answers structural transition questions for the board.
type Graph struct {
	nodes  map[string]*node
	order  []string
	ranked string
}

// New builds the graph from config. Every status id must be trimmed,
// non-empty and unique, and every move target must resolve; violations are
// construction errors, never runtime ones.
func New(cfg *config.Config) (*Graph, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config nil")
	}
	g := &Graph{nodes: map[string]*node{}, ranked: cfg.RankedLane()}
	for _, sc := range cfg.Statuses {
		id := sc.ID
		if id == "" || id != strings.TrimSpace(id) {
			return nil, fmt.Errorf("status id %q is empty or untrimmed", sc.ID)
		}
		if _, ok := g.nodes[id]; ok {
			return nil, fmt.Errorf("duplicate status id %s", id)
		}
		title := sc.Title
		if title == "" {
			title = id
		}
		n := &node{
			status: Status{
				ID:     id,
				Title:  title,
				Hidden: sc.Hidden,
				Requirements: Requirements{
					Reason:             sc.Requirements.Reason.Required,
					ReasonPrompt:       sc.Requirements.Reason.Prompt,
					Milestones:         sc.Requirements.Milestones,
					MilestoneThreshold: sc.Requirements.MilestoneThreshold,
				},
			},
			moves:      map[string]struct{}{},
			adminMoves: map[string]struct{}{},
		}
		if n.status.Requirements.Milestones && n.status.Requirements.MilestoneThreshold == 0 {
			n.status.Requirements.MilestoneThreshold = 100
		}
		seen := map[string]bool{}
		for _, st := range sc.Stages {
			if st.ID == "" || seen[st.ID] {
				return nil, fmt.Errorf("status %s has empty or duplicate stage id %q", id, st.ID)
			}
			seen[st.ID] = true
			n.status.Stages = append(n.status.Stages, Stage{ID: st.ID, Title: st.Title, Hidden: st.Hidden})
		}
		g.nodes[id] = n
		g.order = append(g.order, id)
	}
	for _, sc := range cfg.Statuses {
		n := g.nodes[sc.ID]
		for _, to := range sc.Moves {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("status %s move references unknown status %s", sc.ID, to)
			}
			n.moves[to] = struct{}{}
			n.status.Moves = append(n.status.Moves, to)
		}
		for _, to := range sc.AdminMoves {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("status %s admin move references unknown status %s", sc.ID, to)
			}
			n.adminMoves[to] = struct{}{}
			n.status.AdminMoves = append(n.status.AdminMoves, to)
		}
	}
	if _, ok := g.nodes[g.ranked]; !ok {
		return nil, fmt.Errorf("ranked lane %s is not a defined status", g.ranked)
	}
	return g, nil
}

// AllowedDestinations returns the set of status ids reachable from fromID.
// The self-transition is always included (rank-only moves). An unknown
// fromID yields an empty set.
func (g *Graph) AllowedDestinations(fromID string, isAdmin bool) map[string]struct{} {
	n, ok := g.nodes[fromID]
	if !ok {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(n.moves)+len(n.adminMoves)+1)
	out[fromID] = struct{}{}
	for to := range n.moves {
		out[to] = struct{}{}
	}
	if isAdmin {
		for to := range n.adminMoves {
			out[to] = struct{}{}
		}
	}
	return out
}

// CanMove reports whether fromID -> toID is structurally allowed.
func (g *Graph) CanMove(fromID, toID string, isAdmin bool) bool {
	_, ok := g.AllowedDestinations(fromID, isAdmin)[toID]
	return ok
}

// Requirements returns the preconditions attached to the destination
// status. An unknown status yields the zero value: the move is then allowed
// unconditionally (deliberate default-permissive policy).
func (g *Graph) Requirements(toID string) Requirements {
	n, ok := g.nodes[toID]
	if !ok {
		return Requirements{}
	}
	return n.status.Requirements
}

// IsHidden reports whether the status is excluded from default display.
func (g *Graph) IsHidden(id string) bool {
	n, ok := g.nodes[id]
	return ok && n.status.Hidden
}

// Status returns a copy of one status definition.
func (g *Graph) Status(id string) (Status, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Status{}, false
	}
	return copyStatus(n.status), true
}

// Statuses returns the catalogue in config order. Hidden statuses are
// excluded unless includeHidden is set.
func (g *Graph) Statuses(includeHidden bool) []Status {
	var out []Status
	for _, id := range g.order {
		s := g.nodes[id].status
		if s.Hidden && !includeHidden {
			continue
		}
		out = append(out, copyStatus(s))
	}
	return out
}

// Stages returns the stages of a status, or nil. A status with no stages is
// treated by callers as a single implicit drop zone.
func (g *Graph) Stages(statusID string) []Stage {
	n, ok := g.nodes[statusID]
	if !ok || len(n.status.Stages) == 0 {
		return nil
	}
	out := make([]Stage, len(n.status.Stages))
	copy(out, n.status.Stages)
	return out
}

// HasStage reports whether the stage id belongs to the status.
func (g *Graph) HasStage(statusID, stageID string) bool {
	for _, st := range g.Stages(statusID) {
		if st.ID == stageID {
			return true
		}
	}
	return false
}

// RankedLane returns the status id of the manually ranked lane.
func (g *Graph) RankedLane() string { return g.ranked }

func copyStatus(s Status) Status {
	out := s
	out.Stages = append([]Stage(nil), s.Stages...)
	out.Moves = append([]string(nil), s.Moves...)
	out.AdminMoves = append([]string(nil), s.AdminMoves...)
	return out
}
