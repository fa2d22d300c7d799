package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/form"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/presentation/controllers/dtos"
	"github.com/iota-uz/workflow-console/modules/workflow/presentation/mappers"
	"github.com/iota-uz/workflow-console/modules/workflow/services"
	"github.com/iota-uz/workflow-console/pkg/application"
	"github.com/iota-uz/workflow-console/pkg/composables"
	"github.com/iota-uz/workflow-console/pkg/httpapi"
)

const defaultScopeLimit = 20

var queryDecoder = form.NewDecoder()

type AssignmentAPIControllerConfig struct {
	BasePath string
	App      application.Application
	// SessionHeader, when set, echoes the session id of a freshly opened
	// session in a response header.
	SessionHeader string
	Middlewares   []mux.MiddlewareFunc
}

type AssignmentAPIController struct {
	basePath      string
	sessionHeader string
	middlewares   []mux.MiddlewareFunc
	sessions      *services.SessionRegistry
	scopes        *services.ScopeLookupService
}

func NewAssignmentAPIController(cfg AssignmentAPIControllerConfig) application.Controller {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/workflows/api"
	}
	return &AssignmentAPIController{
		basePath:      basePath,
		sessionHeader: cfg.SessionHeader,
		middlewares:   cfg.Middlewares,
		sessions:      cfg.App.Service(services.SessionRegistry{}).(*services.SessionRegistry),
		scopes:        cfg.App.Service(services.ScopeLookupService{}).(*services.ScopeLookupService),
	}
}

func (c *AssignmentAPIController) Key() string {
	return c.basePath
}

func (c *AssignmentAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.Use(c.middlewares...)

	router.HandleFunc("/scopes", c.ListScopes).Methods(http.MethodGet)
	router.HandleFunc("/sessions", c.OpenSession).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{sid}", c.CloseSession).Methods(http.MethodDelete)

	session := router.PathPrefix("/sessions/{sid}").Subrouter()
	session.HandleFunc("/search", c.SearchInput).Methods(http.MethodPost)
	session.HandleFunc("/search", c.SearchResults).Methods(http.MethodGet)
	session.HandleFunc("/scope", c.SelectScope).Methods(http.MethodPost)
	session.HandleFunc("/snapshot", c.Snapshot).Methods(http.MethodGet)
	session.HandleFunc("/moves", c.Move).Methods(http.MethodPost)
	session.HandleFunc("/save", c.Save).Methods(http.MethodPost)
}

func (c *AssignmentAPIController) ListScopes(w http.ResponseWriter, r *http.Request) {
	var q dtos.ScopesQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_QUERY", "invalid query string", nil)
		return
	}
	if errs, ok := q.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, errs)
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultScopeLimit
	}
	scopes, err := c.scopes.Lookup(r.Context(), q.Q, limit)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"items": mappers.ScopesToViewModels(scopes),
	})
}

func (c *AssignmentAPIController) OpenSession(w http.ResponseWriter, r *http.Request) {
	s, err := c.sessions.Open()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if c.sessionHeader != "" {
		w.Header().Set(c.sessionHeader, s.ID.String())
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, mappers.ViewToEditor(s.ID, s.Controller.View()))
}

func (c *AssignmentAPIController) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, ok := c.sessionID(w, r)
	if !ok {
		return
	}
	if err := c.sessions.Close(id); err != nil {
		c.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *AssignmentAPIController) SearchInput(w http.ResponseWriter, r *http.Request) {
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	var dto dtos.SearchInputDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, errs)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusAccepted, mappers.SearchToViewModel(s.Search.Input(dto.Term)))
}

func (c *AssignmentAPIController) SearchResults(w http.ResponseWriter, r *http.Request) {
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.SearchToViewModel(s.Search.Results()))
}

func (c *AssignmentAPIController) SelectScope(w http.ResponseWriter, r *http.Request) {
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	var dto dtos.SelectScopeDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, errs)
		return
	}
	if _, err := s.Controller.SelectScope(r.Context(), dto.ScopeID); err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeEditor(w, s)
}

func (c *AssignmentAPIController) Snapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	c.writeEditor(w, s)
}

func (c *AssignmentAPIController) Move(w http.ResponseWriter, r *http.Request) {
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	var dto dtos.MoveDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if errs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, errs)
		return
	}

	ctx := r.Context()
	var err error
	switch dto.Op {
	case dtos.OpToSequence:
		_, err = s.Controller.MoveToSequence(ctx, dto.ItemID, dto.Index())
	case dtos.OpToPool:
		_, err = s.Controller.MoveToPool(ctx, dto.ItemID)
	case dtos.OpReorder:
		_, err = s.Controller.Reorder(ctx, dto.ItemID, dto.Index())
	case dtos.OpToggle:
		_, err = s.Controller.ToggleActive(ctx, dto.ItemID)
	}
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeEditor(w, s)
}

func (c *AssignmentAPIController) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := c.session(w, r)
	if !ok {
		return
	}
	if _, err := s.Controller.Save(r.Context()); err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeEditor(w, s)
}

func (c *AssignmentAPIController) writeEditor(w http.ResponseWriter, s *services.Session) {
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.ViewToEditor(s.ID, s.Controller.View()))
}

func (c *AssignmentAPIController) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(mux.Vars(r)["sid"]))
	if err != nil {
		_ = httpapi.WriteServiceError(w, http.StatusNotFound, services.ErrSessionNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (c *AssignmentAPIController) session(w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	id, ok := c.sessionID(w, r)
	if !ok {
		return nil, false
	}
	s, err := c.sessions.Get(id)
	if err != nil {
		c.writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func (c *AssignmentAPIController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		composables.UseLogger(r.Context()).WithError(err).Error("workflow api request failed")
	}
	_ = httpapi.WriteServiceError(w, status, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json", nil)
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP statuses. Superseded work is
// checked first since a superseded failed save also wraps the I/O error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrLoadSuperseded),
		errors.Is(err, services.ErrSaveSuperseded):
		return http.StatusConflict
	case errors.Is(err, assignment.ErrScopeNotFound),
		errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, assignment.ErrCatalogUnavailable),
		errors.Is(err, assignment.ErrReadUnavailable),
		errors.Is(err, assignment.ErrPersistenceFailure),
		errors.Is(err, assignment.ErrSearchUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, assignment.ErrItemNotInPool),
		errors.Is(err, assignment.ErrItemNotInSequence),
		errors.Is(err, assignment.ErrDuplicateItem),
		errors.Is(err, assignment.ErrNoActiveScope):
		return http.StatusConflict
	case errors.Is(err, services.ErrTooManySessions):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
