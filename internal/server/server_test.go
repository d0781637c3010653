package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"laneboard/internal/board"
	"laneboard/internal/config"
	"laneboard/internal/db"
	"laneboard/internal/migrate"
)

type testServer struct {
	URL    string
	Engine board.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("main")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := board.New(conn, cfg)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	if err := e.EnsureBoard(context.Background()); err != nil {
		t.Fatalf("ensure board: %v", err)
	}
	if err := e.LoadRankings(context.Background()); err != nil {
		t.Fatalf("load rankings: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{AllowLegacyActorHeader: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createProject(t *testing.T, srv *testServer, title string) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title": title,
		"kind":  "rpa",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestDropSwapsRanks(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	first := createProject(t, srv, "First")
	second := createProject(t, srv, "Second")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+first.ID+"/drop", map[string]any{
		"to_status":         "under_evaluation",
		"target_project_id": second.ID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("drop status %d: %s", res.StatusCode, string(data))
	}
	var dropped DropResponse
	if err := json.Unmarshal(data, &dropped); err != nil {
		t.Fatalf("unmarshal drop: %v", err)
	}
	if dropped.StatusChanged {
		t.Fatalf("expected rank-only move, got status change")
	}
	if !dropped.RankChanged {
		t.Fatalf("expected rank change")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/board/rankings", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rankings status %d: %s", res.StatusCode, string(data))
	}
	var rankings RankingsResponse
	if err := json.Unmarshal(data, &rankings); err != nil {
		t.Fatalf("unmarshal rankings: %v", err)
	}
	got := map[string]int{}
	for _, r := range rankings.Rankings {
		got[r.ProjectID] = r.Rank
	}
	if got[first.ID] != 1 || got[second.ID] != 0 {
		t.Fatalf("expected swap, got %v", got)
	}
	if rankings.State.Dirty {
		t.Fatalf("expected rankings flushed, still dirty")
	}
}

func TestDropReasonRequiredThenRetry(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv, "Risky")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "denied",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "reason_required" {
		t.Fatalf("expected reason_required, got %s", code)
	}

	// Nothing must have been written by the rejected attempt.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get project: %d %s", res.StatusCode, string(data))
	}
	var fetched ProjectResponse
	_ = json.Unmarshal(data, &fetched)
	if fetched.Status != "under_evaluation" {
		t.Fatalf("expected status untouched, got %s", fetched.Status)
	}
	if len(fetched.Comments) != 0 {
		t.Fatalf("expected no comments, got %d", len(fetched.Comments))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "denied",
		"reason":    "No budget this quarter",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("retry drop: %d %s", res.StatusCode, string(data))
	}
	var dropped DropResponse
	if err := json.Unmarshal(data, &dropped); err != nil {
		t.Fatalf("unmarshal drop: %v", err)
	}
	if dropped.Project.Status != "denied" {
		t.Fatalf("expected denied, got %s", dropped.Project.Status)
	}
	if len(dropped.Project.Comments) != 1 || dropped.Project.Comments[0].Comment != "No budget this quarter" {
		t.Fatalf("expected reason recorded as comment, got %+v", dropped.Project.Comments)
	}
}

func TestDropIllegalTransition(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createProject(t, srv, "Stuck")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "completed",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "illegal_transition" {
		t.Fatalf("expected illegal_transition, got %s", code)
	}
}

func TestDropMilestonesGate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv, "Almost done")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "in_development",
		"to_stage":  "build",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("move to in_development: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "in_production",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "milestones_incomplete" {
		t.Fatalf("expected milestones_incomplete, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/milestones", map[string]any{
		"title":    "UAT signed off",
		"progress": 100,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add milestone: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "in_production",
		"to_stage":  "hypercare",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected move allowed, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAdminOnlyMove(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createProject(t, srv, "Backtrack")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "in_development",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("move to in_development: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "under_evaluation",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for non-admin, got %d: %s", res.StatusCode, string(data))
	}

	if err := srv.Engine.GrantRole(context.Background(), "boss", "admin", "test"); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/drop", map[string]any{
		"to_status": "under_evaluation",
	}, map[string]string{"X-Actor-Id": "boss"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected admin move allowed, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCheckMoveReportsPrompt(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createProject(t, srv, "Pausing")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/moves/check", map[string]any{
		"to_status": "on_hold",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("check move: %d %s", res.StatusCode, string(data))
	}
	var check CheckMoveResponse
	if err := json.Unmarshal(data, &check); err != nil {
		t.Fatalf("unmarshal check: %v", err)
	}
	if !check.NeedsReason {
		t.Fatalf("expected needs_reason")
	}
	if check.ReasonPrompt != "Why is this project on hold?" {
		t.Fatalf("unexpected prompt %q", check.ReasonPrompt)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/board", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}
