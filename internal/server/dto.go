package server

import (
	"encoding/json"

	"laneboard/internal/board"
	"laneboard/internal/config"
	"laneboard/internal/domain"
	"laneboard/internal/rank"
	"laneboard/internal/statusgraph"
)

type domainMilestone = domain.Milestone

// Request payloads

type CreateProjectRequest struct {
	ID       *string `json:"id,omitempty"`
	Title    string  `json:"title"`
	Kind     string  `json:"kind" enum:"rpa,script,enhancement,bug"`
	Status   *string `json:"status,omitempty"`
	Stage    *string `json:"stage,omitempty"`
	Priority *int    `json:"priority,omitempty"`
}

type UpdateProjectRequest struct {
	Title    *string `json:"title,omitempty"`
	Kind     *string `json:"kind,omitempty" enum:"rpa,script,enhancement,bug"`
	Priority *int    `json:"priority,omitempty"`
}

type CheckMoveRequest struct {
	ToStatus string `json:"to_status"`
}

type DropRequest struct {
	ToStatus        string  `json:"to_status,omitempty"`
	ToStage         string  `json:"to_stage,omitempty"`
	TargetIndex     *int    `json:"target_index,omitempty"`
	TargetProjectID string  `json:"target_project_id,omitempty"`
	Reason          *string `json:"reason,omitempty"`
}

type AddCommentRequest struct {
	Comment string `json:"comment"`
}

type AddMilestoneRequest struct {
	Title    string `json:"title"`
	Progress int    `json:"progress,omitempty" minimum:"0" maximum:"100"`
}

type SetMilestoneProgressRequest struct {
	Progress int `json:"progress" minimum:"0" maximum:"100"`
}

type SetRankingRequest struct {
	Rank int `json:"rank" minimum:"0"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type ProjectResponse struct {
	ID        string           `json:"id"`
	BoardID   string           `json:"board_id"`
	Title     string           `json:"title"`
	Kind      string           `json:"kind" enum:"rpa,script,enhancement,bug"`
	Status    string           `json:"status"`
	DevStage  *string          `json:"dev_stage,omitempty"`
	Priority  *int             `json:"priority,omitempty"`
	Rank      *int             `json:"rank,omitempty"`
	Comments  []domain.Comment `json:"comments"`
	CreatedAt string           `json:"created_at" format:"date-time"`
	UpdatedAt string           `json:"updated_at" format:"date-time"`
}

type LaneCardResponse struct {
	Project ProjectResponse `json:"project"`
	Rank    *int            `json:"rank,omitempty"`
}

type LaneResponse struct {
	Status statusgraph.Status `json:"status"`
	Cards  []LaneCardResponse `json:"cards"`
}

type BoardResponse struct {
	BoardID    string         `json:"board_id"`
	Title      string         `json:"title,omitempty"`
	RankedLane string         `json:"ranked_lane"`
	Lanes      []LaneResponse `json:"lanes"`
	RankState  rank.State     `json:"rank_state"`
}

type StatusCatalogResponse struct {
	RankedLane string               `json:"ranked_lane"`
	Statuses   []statusgraph.Status `json:"statuses"`
}

type BoardConfigResponse struct {
	Board struct {
		ID    string `json:"id"`
		Title string `json:"title,omitempty"`
	} `json:"board"`
	RankedStatus string               `json:"ranked_status"`
	Statuses     []statusgraph.Status `json:"statuses"`
	Roles        map[string]struct {
		Description string `json:"description,omitempty"`
		Admin       bool   `json:"admin,omitempty"`
	} `json:"roles,omitempty"`
}

type MovesResponse struct {
	From    string   `json:"from"`
	Allowed []string `json:"allowed"`
}

type CheckMoveResponse struct {
	Allowed      bool   `json:"allowed"`
	NeedsReason  bool   `json:"needs_reason"`
	ReasonPrompt string `json:"reason_prompt,omitempty"`
}

type DropResponse struct {
	Project       ProjectResponse `json:"project"`
	StatusChanged bool            `json:"status_changed"`
	RankChanged   bool            `json:"rank_changed"`
	RankState     rank.State      `json:"rank_state"`
}

type RankingsResponse struct {
	Rankings []domain.Ranking `json:"rankings"`
	State    rank.State       `json:"state"`
}

type RankStateResponse struct {
	State rank.State `json:"state"`
}

type CommentsResponse struct {
	Comments []domain.Comment `json:"comments"`
}

type MilestoneResponse struct {
	Milestone domain.Milestone `json:"milestone"`
}

type MilestonesResponse struct {
	Items    []domain.Milestone `json:"items"`
	Progress int                `json:"progress"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	BoardID    string         `json:"board_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type RoleResponse struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Admin       bool   `json:"admin,omitempty"`
}

type RolesResponse struct {
	Roles []RoleResponse `json:"roles"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Admin   bool     `json:"admin"`
}

type paginatedProjects struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(p domain.Project, e board.Engine) ProjectResponse {
	comments, _ := board.Comments(p)
	res := ProjectResponse{
		ID:        p.ID,
		BoardID:   p.BoardID,
		Title:     p.Title,
		Kind:      p.Kind,
		Status:    p.Status,
		DevStage:  p.DevStage,
		Priority:  p.Priority,
		Comments:  nonNilComments(comments),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Status == e.Graph.RankedLane() {
		if r, ok := e.Ranks.Get(p.ID); ok {
			v := r.Rank
			res.Rank = &v
		}
	}
	return res
}

func mapLanes(lanes []board.Lane) []LaneResponse {
	res := make([]LaneResponse, 0, len(lanes))
	for _, lane := range lanes {
		out := LaneResponse{Status: lane.Status, Cards: []LaneCardResponse{}}
		for _, card := range lane.Cards {
			comments, _ := board.Comments(card.Project)
			out.Cards = append(out.Cards, LaneCardResponse{
				Project: ProjectResponse{
					ID:        card.Project.ID,
					BoardID:   card.Project.BoardID,
					Title:     card.Project.Title,
					Kind:      card.Project.Kind,
					Status:    card.Project.Status,
					DevStage:  card.Project.DevStage,
					Priority:  card.Project.Priority,
					Rank:      card.Rank,
					Comments:  nonNilComments(comments),
					CreatedAt: card.Project.CreatedAt,
					UpdatedAt: card.Project.UpdatedAt,
				},
				Rank: card.Rank,
			})
		}
		res = append(res, out)
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		BoardID:    e.BoardID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func configResponse(cfg *config.Config) BoardConfigResponse {
	var res BoardConfigResponse
	res.Board.ID = cfg.Board.ID
	res.Board.Title = cfg.Board.Title
	res.RankedStatus = cfg.RankedLane()
	if g, err := statusgraph.New(cfg); err == nil {
		res.Statuses = g.Statuses(true)
	}
	if len(cfg.RBAC.Roles) > 0 {
		res.Roles = map[string]struct {
			Description string `json:"description,omitempty"`
			Admin       bool   `json:"admin,omitempty"`
		}{}
		for id, role := range cfg.RBAC.Roles {
			res.Roles[id] = struct {
				Description string `json:"description,omitempty"`
				Admin       bool   `json:"admin,omitempty"`
			}{Description: role.Description, Admin: role.Admin}
		}
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func nonNilComments(in []domain.Comment) []domain.Comment {
	return nonNilSlice(in)
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
