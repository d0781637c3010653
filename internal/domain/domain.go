package domain

type Project struct {
	ID           string  `json:"id"`
	BoardID      string  `json:"board_id"`
	Title        string  `json:"title"`
	Kind         string  `json:"kind" enum:"rpa,script,enhancement,bug"`
	Status       string  `json:"status"`
	DevStage     *string `json:"dev_stage,omitempty"`
	Priority     *int    `json:"priority,omitempty"`
	CommentsJSON *string `json:"comments_json,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

// Ranking orders a project within the ranked lane. Lower rank sorts first.
// Rankings are never deleted; an entry for a project that left the lane is
// inert until the project returns.
type Ranking struct {
	ProjectID string `json:"project_id"`
	Rank      int    `json:"rank"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Milestone struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Progress  int    `json:"progress" minimum:"0" maximum:"100"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Comment is one entry of a project's comment history. The history is stored
// on the project row as a JSON array, newest first.
type Comment struct {
	Date    string `json:"date" format:"date-time"`
	Comment string `json:"comment"`
	User    string `json:"user"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	BoardID    string `json:"board_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
