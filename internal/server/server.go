package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"laneboard/internal/board"
	"laneboard/internal/domain"
	"laneboard/internal/rank"
	"laneboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   board.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"illegal_transition"`
	Message string         `json:"message" example:"transition completed -> in_development is not allowed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"completed\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Laneboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Laneboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerBoard(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerDrop(group, cfg.Engine)
	registerRankings(group, cfg.Engine)
	registerComments(group, cfg.Engine)
	registerMilestones(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerRBAC(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var it board.IllegalTransitionError
	if errors.As(err, &it) {
		return newAPIError(http.StatusConflict, "illegal_transition", err.Error(), map[string]any{"from": it.From, "to": it.To})
	}
	var mi board.MilestonesIncompleteError
	if errors.As(err, &mi) {
		return newAPIError(http.StatusUnprocessableEntity, "milestones_incomplete", err.Error(), map[string]any{
			"status": mi.Status, "progress": mi.Progress, "threshold": mi.Threshold,
		})
	}
	var rr board.ReasonRequiredError
	if errors.As(err, &rr) {
		return newAPIError(http.StatusUnprocessableEntity, "reason_required", err.Error(), map[string]any{
			"status": rr.Status, "prompt": rr.Prompt,
		})
	}
	var pe board.PersistenceError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusInternalServerError, "internal_error", pe.Error(), map[string]any{"retryable": true})
	}
	if errors.Is(err, rank.ErrSaveInFlight) {
		return newAPIError(http.StatusConflict, "save_in_flight", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// isAdminActor resolves admin standing from the JWT roles first, falling
// back to the board's role assignments.
func isAdminActor(ctx context.Context, e board.Engine) (string, bool, huma.StatusError) {
	principal, authErr := principalFromContextOrError(ctx)
	if authErr != nil {
		return "", false, authErr
	}
	adminRoles := map[string]bool{}
	for _, id := range e.Config.AdminRoles() {
		adminRoles[id] = true
	}
	for _, r := range principal.Roles {
		if adminRoles[r] {
			return principal.ActorID, true, nil
		}
	}
	ok, err := e.IsAdmin(ctx, principal.ActorID)
	if err != nil {
		return "", false, handleError(err)
	}
	return principal.ActorID, ok, nil
}

func requireAdmin(ctx context.Context, e board.Engine) (string, huma.StatusError) {
	actorID, ok, authErr := isAdminActor(ctx, e)
	if authErr != nil {
		return "", authErr
	}
	if !ok {
		return "", newAPIError(http.StatusForbidden, "forbidden", "admin role required", nil)
	}
	return actorID, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Laneboard API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerBoard(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "board-view",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Board view",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		IncludeHidden bool `query:"include_hidden"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		lanes, err := e.Lanes(ctx, input.IncludeHidden)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: BoardResponse{
			BoardID:    e.Config.Board.ID,
			Title:      e.Config.Board.Title,
			RankedLane: e.Graph.RankedLane(),
			Lanes:      mapLanes(lanes),
			RankState:  e.Ranks.State(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "board-statuses",
		Method:      http.MethodGet,
		Path:        "/board/statuses",
		Summary:     "Status catalogue",
	}, func(ctx context.Context, input *struct {
		IncludeHidden bool `query:"include_hidden"`
	}) (*struct {
		Body StatusCatalogResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body StatusCatalogResponse `json:"body"`
		}{Body: StatusCatalogResponse{
			RankedLane: e.Graph.RankedLane(),
			Statuses:   e.Graph.Statuses(input.IncludeHidden),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "board-config",
		Method:      http.MethodGet,
		Path:        "/board/config",
		Summary:     "Board config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BoardConfigResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetBoardConfig(ctx, e.Config.Board.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerProjects(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, board.CreateProjectOptions{
			ID:       strPtrValue(input.Body.ID),
			Title:    input.Body.Title,
			Kind:     input.Body.Kind,
			Status:   strPtrValue(input.Body.Status),
			Stage:    strPtrValue(input.Body.Stage),
			Priority: input.Body.Priority,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p, e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Kind   string `query:"kind"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedProjects `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
			BoardID:         e.Config.Board.ID,
			Status:          input.Status,
			Kind:            input.Kind,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedProjects{Items: []ProjectResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, p := range items {
			resp.Items = append(resp.Items, projectResponse(p, e))
		}
		return &struct {
			Body paginatedProjects `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p, e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, board.UpdateProjectOptions{
			ID:       input.ID,
			Title:    input.Body.Title,
			Kind:     input.Body.Kind,
			Priority: input.Body.Priority,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p, e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}",
		Summary:     "Delete project",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := requireAdmin(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-moves",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/moves",
		Summary:     "Allowed destinations",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MovesResponse `json:"body"`
	}, error) {
		_, isAdmin, authErr := isAdminActor(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		allowed := e.Graph.AllowedDestinations(p.Status, isAdmin)
		ids := make([]string, 0, len(allowed))
		for _, s := range e.Graph.Statuses(true) {
			if _, ok := allowed[s.ID]; ok {
				ids = append(ids, s.ID)
			}
		}
		return &struct {
			Body MovesResponse `json:"body"`
		}{Body: MovesResponse{From: p.Status, Allowed: ids}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-move",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/moves/check",
		Summary:     "Dry-run a status change",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body CheckMoveRequest `json:"body"`
	}) (*struct {
		Body CheckMoveResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		_, isAdmin, authErr := isAdminActor(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.ToStatus == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "to_status is required", nil)
		}
		decision, err := e.CheckMove(ctx, input.ID, input.Body.ToStatus, isAdmin)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CheckMoveResponse `json:"body"`
		}{Body: CheckMoveResponse{
			Allowed:      true,
			NeedsReason:  decision.NeedsReason,
			ReasonPrompt: decision.ReasonPrompt,
		}}, nil
	})
}

func registerDrop(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "drop-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/drop",
		Summary:     "Apply a drag-and-drop gesture",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body DropRequest `json:"body"`
	}) (*struct {
		Body DropResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, isAdmin, authErr := isAdminActor(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Drop(ctx, board.DropOptions{
			ProjectID:       input.ID,
			ToStatus:        input.Body.ToStatus,
			ToStage:         input.Body.ToStage,
			TargetIndex:     input.Body.TargetIndex,
			TargetProjectID: input.Body.TargetProjectID,
			Reason:          strPtrValue(input.Body.Reason),
			ActorID:         actorID,
			IsAdmin:         isAdmin,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DropResponse `json:"body"`
		}{Body: DropResponse{
			Project:       projectResponse(res.Project, e),
			StatusChanged: res.StatusChanged,
			RankChanged:   res.RankChanged,
			RankState:     res.RankState,
		}}, nil
	})
}

func registerRankings(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-rankings",
		Method:      http.MethodGet,
		Path:        "/board/rankings",
		Summary:     "Rankings snapshot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RankingsResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body RankingsResponse `json:"body"`
		}{Body: RankingsResponse{
			Rankings: e.Ranks.Rankings(),
			State:    e.Ranks.State(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-ranking",
		Method:      http.MethodPut,
		Path:        "/board/rankings/{project_id}",
		Summary:     "Set a project's rank directly",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      SetRankingRequest `json:"body"`
	}) (*struct {
		Body RankStateResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.Status != e.Graph.RankedLane() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project is not in the ranked lane", map[string]any{"status": p.Status})
		}
		e.Ranks.Update(domain.Ranking{ProjectID: input.ProjectID, Rank: input.Body.Rank})
		if err := e.Ranks.TriggerSave(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RankStateResponse `json:"body"`
		}{Body: RankStateResponse{State: e.Ranks.State()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-rankings",
		Method:      http.MethodPost,
		Path:        "/board/rankings/save",
		Summary:     "Flush unsaved rankings",
		Errors: []int{
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RankStateResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		state, err := e.SaveRankings(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RankStateResponse `json:"body"`
		}{Body: RankStateResponse{State: state}}, nil
	})
}

func registerComments(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/comments",
		Summary:     "Comment history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body CommentsResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		comments, err := board.Comments(p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentsResponse `json:"body"`
		}{Body: CommentsResponse{Comments: nonNilComments(comments)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/comments",
		Summary:       "Add comment",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body AddCommentRequest `json:"body"`
	}) (*struct {
		Body CommentsResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddComment(ctx, input.ID, input.Body.Comment, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		comments, err := board.Comments(p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentsResponse `json:"body"`
		}{Body: CommentsResponse{Comments: nonNilComments(comments)}}, nil
	})
}

func registerMilestones(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-milestone",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/milestones",
		Summary:       "Add milestone",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body AddMilestoneRequest `json:"body"`
	}) (*struct {
		Body MilestoneResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMilestone(ctx, input.ID, input.Body.Title, input.Body.Progress, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MilestoneResponse `json:"body"`
		}{Body: MilestoneResponse{Milestone: m}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-milestones",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/milestones",
		Summary:     "List milestones",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MilestonesResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMilestones(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		progress, err := e.Repo.MilestoneProgress(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := MilestonesResponse{Items: items, Progress: progress}
		if resp.Items == nil {
			resp.Items = []domainMilestone{}
		}
		return &struct {
			Body MilestonesResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-milestone-progress",
		Method:      http.MethodPatch,
		Path:        "/milestones/{milestone_id}",
		Summary:     "Set milestone progress",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		MilestoneID string                      `path:"milestone_id"`
		Body        SetMilestoneProgressRequest `json:"body"`
	}) (*struct{}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetMilestoneProgress(ctx, input.MilestoneID, input.Body.Progress, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"board,project,milestone,actor"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, e.Config.Board.ID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/rbac/roles",
		Summary:     "Role catalogue",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RolesResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		resp := RolesResponse{Roles: []RoleResponse{}}
		ids := make([]string, 0, len(e.Config.RBAC.Roles))
		for id := range e.Config.RBAC.Roles {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			role := e.Config.RBAC.Roles[id]
			resp.Roles = append(resp.Roles, RoleResponse{
				ID:          id,
				Description: role.Description,
				Admin:       role.Admin,
			})
		}
		return &struct {
			Body RolesResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/rbac/roles/grant",
		Summary:     "Grant role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := requireAdmin(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" || input.Body.RoleID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and role_id are required", nil)
		}
		if err := e.GrantRole(ctx, input.Body.ActorID, input.Body.RoleID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/rbac/roles/revoke",
		Summary:     "Revoke role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := requireAdmin(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" || input.Body.RoleID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id and role_id are required", nil)
		}
		if err := e.RevokeRole(ctx, input.Body.ActorID, input.Body.RoleID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e board.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromContextOrError(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles := principal.Roles
		if len(roles) == 0 {
			if dbRoles, err := e.Repo.ActorRoles(ctx, e.Config.Board.ID, principal.ActorID); err == nil {
				roles = dbRoles
			}
		}
		_, isAdmin, _ := isAdminActor(ctx, e)
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Roles:   nonNilSlice(roles),
			Admin:   isAdmin,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
