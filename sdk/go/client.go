package laneboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Laneboard HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID       string    `json:"id"`
	BoardID  string    `json:"board_id"`
	Title    string    `json:"title"`
	Kind     string    `json:"kind"`
	Status   string    `json:"status"`
	DevStage *string   `json:"dev_stage,omitempty"`
	Priority *int      `json:"priority,omitempty"`
	Rank     *int      `json:"rank,omitempty"`
	Comments []Comment `json:"comments,omitempty"`
}

// Comment is one entry of a project's comment history, newest first.
type Comment struct {
	Date    string `json:"date"`
	Comment string `json:"comment"`
	User    string `json:"user"`
}

// Milestone is a progress gate on a project.
type Milestone struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Progress  int    `json:"progress"`
}

// Ranking is one slot of the ranked lane.
type Ranking struct {
	ProjectID string `json:"project_id"`
	Rank      int    `json:"rank"`
}

// RankState reports unsaved and in-flight rank changes.
type RankState struct {
	Dirty  bool `json:"dirty"`
	Saving bool `json:"saving"`
}

// Lane is one column of the board.
type Lane struct {
	Status struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"status"`
	Cards []struct {
		Project Project `json:"project"`
		Rank    *int    `json:"rank,omitempty"`
	} `json:"cards"`
}

// Board is the full board view.
type Board struct {
	BoardID    string    `json:"board_id"`
	Title      string    `json:"title,omitempty"`
	RankedLane string    `json:"ranked_lane"`
	Lanes      []Lane    `json:"lanes"`
	RankState  RankState `json:"rank_state"`
}

// CheckMove is the dry-run verdict for a status change.
type CheckMove struct {
	Allowed      bool   `json:"allowed"`
	NeedsReason  bool   `json:"needs_reason"`
	ReasonPrompt string `json:"reason_prompt,omitempty"`
}

// DropResult reports what one drop gesture changed.
type DropResult struct {
	Project       Project   `json:"project"`
	StatusChanged bool      `json:"status_changed"`
	RankChanged   bool      `json:"rank_changed"`
	RankState     RankState `json:"rank_state"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	BoardID    string         `json:"board_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code carries the machine-readable error
// code from the response envelope when the body parses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ReasonRequired reports whether err is the server asking for a reason before
// it accepts the move. Retry the drop with the reason filled in.
func ReasonRequired(err error) (prompt string, ok bool) {
	apiErr, isAPI := err.(*APIError)
	if !isAPI || apiErr.Code != "reason_required" {
		return "", false
	}
	if p, has := apiErr.Details["reason_prompt"].(string); has {
		return p, true
	}
	return "", true
}

// PaginatedProjects wraps project listings with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Board fetches the board view.
func (c *Client) Board(ctx context.Context) (Board, error) {
	var resp Board
	err := c.do(ctx, http.MethodGet, "v0/board", nil, &resp)
	return resp, err
}

// CreateProject creates a project. An empty status lands it in the ranked lane.
func (c *Client) CreateProject(ctx context.Context, title, kind, status string) (Project, error) {
	body := map[string]any{"title": title, "kind": kind}
	if status != "" {
		body["status"] = status
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, projectPath(id, ""), nil, &resp)
	return resp, err
}

// Projects returns a paginated project listing, optionally filtered by status.
func (c *Client) Projects(ctx context.Context, status string, limit int, cursor string) (PaginatedProjects, error) {
	endpoint := "v0/projects" + queryString(map[string]string{
		"status": status,
		"limit":  positiveInt(limit),
		"cursor": cursor,
	})
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CheckMove asks whether a status change would be accepted, without applying it.
func (c *Client) CheckMove(ctx context.Context, projectID, toStatus string) (CheckMove, error) {
	var resp CheckMove
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "moves/check"), map[string]any{
		"to_status": toStatus,
	}, &resp)
	return resp, err
}

// DropOptions describes one drag-and-drop gesture.
type DropOptions struct {
	ToStatus        string `json:"to_status,omitempty"`
	ToStage         string `json:"to_stage,omitempty"`
	TargetIndex     *int   `json:"target_index,omitempty"`
	TargetProjectID string `json:"target_project_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Drop applies one drag-and-drop gesture. When the destination demands a
// reason and none is set, the call fails with code reason_required; retry
// with Reason filled in.
func (c *Client) Drop(ctx context.Context, projectID string, opts DropOptions) (DropResult, error) {
	var resp DropResult
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "drop"), opts, &resp)
	return resp, err
}

// SaveRankings retries the flush of unsaved rank changes.
func (c *Client) SaveRankings(ctx context.Context) (RankState, error) {
	var resp struct {
		State RankState `json:"state"`
	}
	err := c.do(ctx, http.MethodPost, "v0/board/rankings/save", nil, &resp)
	return resp.State, err
}

// Rankings lists the ranked lane order.
func (c *Client) Rankings(ctx context.Context) ([]Ranking, RankState, error) {
	var resp struct {
		Rankings []Ranking `json:"rankings"`
		State    RankState `json:"state"`
	}
	err := c.do(ctx, http.MethodGet, "v0/board/rankings", nil, &resp)
	return resp.Rankings, resp.State, err
}

// AddComment appends a comment to a project.
func (c *Client) AddComment(ctx context.Context, projectID, comment string) ([]Comment, error) {
	var resp struct {
		Comments []Comment `json:"comments"`
	}
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "comments"), map[string]any{
		"comment": comment,
	}, &resp)
	return resp.Comments, err
}

// AddMilestone creates a milestone on a project.
func (c *Client) AddMilestone(ctx context.Context, projectID, title string, progress int) (Milestone, error) {
	var resp struct {
		Milestone Milestone `json:"milestone"`
	}
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "milestones"), map[string]any{
		"title":    title,
		"progress": progress,
	}, &resp)
	return resp.Milestone, err
}

// Milestones lists a project's milestones plus the overall progress.
func (c *Client) Milestones(ctx context.Context, projectID string) ([]Milestone, int, error) {
	var resp struct {
		Items    []Milestone `json:"items"`
		Progress int         `json:"progress"`
	}
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "milestones"), nil, &resp)
	return resp.Items, resp.Progress, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events" + queryString(map[string]string{
		"limit":  positiveInt(limit),
		"cursor": cursor,
	})
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DevLogin exchanges an actor id for a short-lived bearer token and stores it
// on the client. Development servers only.
func (c *Client) DevLogin(ctx context.Context, actorID string, roles []string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", map[string]any{
		"actor_id": actorID,
		"roles":    roles,
	}, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return parseAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	return apiErr
}

func projectPath(id, suffix string) string {
	p := "v0/projects/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + strings.TrimLeft(suffix, "/")
	}
	return p
}

func queryString(params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func positiveInt(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
