package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"laneboard/internal/config"
	"laneboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) EnsureBoard(ctx context.Context, tx *sql.Tx, id, title, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO boards(id, title, created_at) VALUES (?,?,?)`, id, nullable(title), now)
	return err
}

// GetBoard reports whether the board exists, returning its title.
func (r Repo) GetBoard(ctx context.Context, id string) (string, error) {
	var title sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT title FROM boards WHERE id=?`, id).Scan(&title)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return title.String, err
}

// SingleBoard returns the board id when exactly one board exists.
func (r Repo) SingleBoard(ctx context.Context) (string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM boards LIMIT 2`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("expected exactly one board, found %d", len(ids))
	}
	return ids[0], nil
}

func (r Repo) UpsertBoardConfig(ctx context.Context, boardID string, cfg *config.Config) error {
	return upsertBoardConfig(ctx, r.DB, nil, boardID, cfg)
}

func (r Repo) UpsertBoardConfigTx(ctx context.Context, tx *sql.Tx, boardID string, cfg *config.Config) error {
	return upsertBoardConfig(ctx, nil, tx, boardID, cfg)
}

func upsertBoardConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, boardID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Board.ID = boardID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO board_configs(board_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(board_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, boardID, string(payload), now, now)
	return err
}

func (r Repo) GetBoardConfig(ctx context.Context, boardID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM board_configs WHERE board_id=?`, boardID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Board.ID == "" {
		cfg.Board.ID = boardID
	}
	return &cfg, cfg.Validate()
}

const projectColumns = `id,board_id,title,kind,status,dev_stage,priority,comments_json,created_at,updated_at`

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.BoardID, p.Title, p.Kind, p.Status, nullableStringPtr(p.DevStage), nullableIntPtr(p.Priority),
		nullableStringPtr(p.CommentsJSON), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `UPDATE projects SET title=?, kind=?, status=?, dev_stage=?, priority=?, comments_json=?, updated_at=? WHERE id=?`,
		p.Title, p.Kind, p.Status, nullableStringPtr(p.DevStage), nullableIntPtr(p.Priority),
		nullableStringPtr(p.CommentsJSON), p.UpdatedAt, p.ID)
	return err
}

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var devStage, commentsJSON sql.NullString
	var priority sql.NullInt64
	err := scan(&p.ID, &p.BoardID, &p.Title, &p.Kind, &p.Status, &devStage, &priority, &commentsJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if devStage.Valid {
		p.DevStage = &devStage.String
	}
	if priority.Valid {
		v := int(priority.Int64)
		p.Priority = &v
	}
	if commentsJSON.Valid {
		p.CommentsJSON = &commentsJSON.String
	}
	return p, nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	p, err := scanProjectRow(row.Scan)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	p, err := scanProjectRow(row.Scan)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

type ProjectFilters struct {
	BoardID         string
	Status          string
	Kind            string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.BoardID != "" {
		clauses = append(clauses, "board_id=?")
		args = append(args, f.BoardID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountProjectsByStatus(ctx context.Context, boardID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM projects WHERE board_id=? GROUP BY status`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// UpsertRankings bulk-upserts rankings by project id in a single
// transaction. This is the ranking persistence collaborator behind the rank
// store's flush.
func (r Repo) UpsertRankings(ctx context.Context, rankings []domain.Ranking) error {
	if len(rankings) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, rk := range rankings {
		if _, err := tx.ExecContext(ctx, `INSERT INTO rankings(project_id, rank, updated_at) VALUES (?,?,?)
ON CONFLICT(project_id) DO UPDATE SET rank=excluded.rank, updated_at=excluded.updated_at`,
			rk.ProjectID, rk.Rank, rk.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r Repo) ListRankings(ctx context.Context) ([]domain.Ranking, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id, rank, updated_at FROM rankings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ranking
	for rows.Next() {
		var rk domain.Ranking
		if err := rows.Scan(&rk.ProjectID, &rk.Rank, &rk.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, rk)
	}
	return res, rows.Err()
}

func (r Repo) GetRanking(ctx context.Context, projectID string) (domain.Ranking, error) {
	var rk domain.Ranking
	err := r.DB.QueryRowContext(ctx, `SELECT project_id, rank, updated_at FROM rankings WHERE project_id=?`, projectID).
		Scan(&rk.ProjectID, &rk.Rank, &rk.UpdatedAt)
	if err == sql.ErrNoRows {
		return rk, ErrNotFound
	}
	return rk, err
}

func (r Repo) InsertMilestone(ctx context.Context, m domain.Milestone) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO milestones(id, project_id, title, progress, updated_at) VALUES (?,?,?,?,?)`,
		m.ID, m.ProjectID, m.Title, m.Progress, m.UpdatedAt)
	return err
}

func (r Repo) UpdateMilestoneProgress(ctx context.Context, id string, progress int, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE milestones SET progress=?, updated_at=? WHERE id=?`, progress, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, project_id, title, progress, updated_at FROM milestones WHERE project_id=? ORDER BY updated_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Progress, &m.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// MilestoneProgress returns the rounded mean progress across a project's
// milestones. A project with no milestones reports 0: a destination that
// requires milestones stays blocked until some are defined.
func (r Repo) MilestoneProgress(ctx context.Context, projectID string) (int, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(CAST(ROUND(AVG(progress)) AS INTEGER), 0) FROM milestones WHERE project_id=?`, projectID)
	var progress int
	if err := row.Scan(&progress); err != nil {
		return 0, err
	}
	return progress, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, boardID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, boardID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, boardID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if boardID != "" {
		clauses = append(clauses, "board_id=?")
		args = append(args, boardID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,board_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, boardID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if boardID != "" {
		clauses = append(clauses, "board_id=?")
		args = append(args, boardID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,board_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var boardID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &boardID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if boardID.Valid {
			e.BoardID = boardID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a board.
func (r Repo) LatestEventID(ctx context.Context, boardID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE board_id=?`, boardID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
