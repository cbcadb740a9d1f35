// Package api serves the board, account and recovery flows over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/board"
	"github.com/stackhead/task-management-app/domain"
	"github.com/stackhead/task-management-app/profile"
	"github.com/stackhead/task-management-app/recovery"
)

// Deps are the collaborators of the HTTP surface. Deduper and Revoker may be
// nil.
type Deps struct {
	Client       *baas.Client
	Auth         Authenticator
	Sessions     *Registry
	Recovery     *recovery.Service
	Profiles     *profile.Service
	Deduper      Deduper
	Revoker      Revoker
	PublicOrigin string
	SessionTTL   time.Duration
	EnablePprof  bool
	Logger       *log.Logger
}

// Server holds the handlers.
type Server struct {
	client     *baas.Client
	auth       Authenticator
	sessions   *Registry
	recovery   *recovery.Service
	profiles   *profile.Service
	deduper    Deduper
	revoker    Revoker
	origin     string
	secure     bool
	sessionTTL time.Duration
	logger     *log.Logger
	now        func() time.Time
}

// NewServer builds a Server from deps.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	origin := strings.TrimRight(deps.PublicOrigin, "/")
	return &Server{
		client:     deps.Client,
		auth:       deps.Auth,
		sessions:   deps.Sessions,
		recovery:   deps.Recovery,
		profiles:   deps.Profiles,
		deduper:    deps.Deduper,
		revoker:    deps.Revoker,
		origin:     origin,
		secure:     strings.HasPrefix(origin, "https://"),
		sessionTTL: deps.SessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) *Server {
	s := NewServer(deps)
	e.JSONSerializer = sonicSerializer{}
	e.Use(RequestMetrics(s.logger))
	e.Use(GzipRequestMiddleware())

	e.GET("/healthz", s.healthz)

	e.POST("/api/account", s.signup)
	e.DELETE("/api/account", s.deleteAccount, s.withBoard)

	e.POST("/api/session", s.login)
	e.DELETE("/api/session", s.logout, s.withPrincipal)
	e.GET("/api/session/oauth/:provider", s.oauth)

	e.POST("/api/recovery", s.requestRecovery)
	e.GET("/api/recovery/verify", s.verifyRecovery)
	e.PUT("/api/recovery", s.confirmRecovery)
	e.POST("/api/recovery/strength", s.passwordStrength)

	e.GET("/api/board", s.getBoard, s.withBoard)

	e.POST("/api/columns", s.createColumn, s.withBoard, s.idempotent)
	e.PATCH("/api/columns/:id", s.updateColumn, s.withBoard, s.idempotent)
	e.DELETE("/api/columns/:id", s.deleteColumn, s.withBoard, s.idempotent)

	e.POST("/api/tasks", s.createTask, s.withBoard, s.idempotent)
	e.PATCH("/api/tasks/:id", s.updateTask, s.withBoard, s.idempotent)
	e.DELETE("/api/tasks/:id", s.deleteTask, s.withBoard, s.idempotent)
	e.POST("/api/tasks/:id/move", s.moveTask, s.withBoard, s.idempotent)

	e.GET("/api/drag", s.dragState, s.withBoard)
	e.POST("/api/drag/begin", s.dragBegin, s.withBoard)
	e.POST("/api/drag/over", s.dragOver, s.withBoard)
	e.POST("/api/drag/leave", s.dragLeave, s.withBoard)
	e.POST("/api/drag/drop", s.dragDrop, s.withBoard, s.idempotent)
	e.POST("/api/drag/release", s.dragRelease, s.withBoard)

	e.GET("/api/profile", s.getProfile, s.withBoard)
	e.PUT("/api/profile", s.putProfile, s.withBoard, s.idempotent)
	e.GET("/api/preferences", s.getPreferences, s.withBoard)
	e.PUT("/api/preferences", s.putPreferences, s.withBoard, s.idempotent)

	if deps.EnablePprof {
		pprof.Register(e)
	}
	return s
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"sessions": s.sessions.Len()})
}

// confirmerFor approves when the request carries confirm=true and otherwise
// captures the prompt so it can be returned to the client.
func confirmerFor(c echo.Context, prompt *board.Prompt) board.Confirmer {
	if ok, _ := strconv.ParseBool(c.QueryParam("confirm")); ok {
		return board.Confirmed
	}
	return board.ConfirmFunc(func(_ context.Context, p board.Prompt) (bool, error) {
		*prompt = p
		return false, nil
	})
}

func (s *Server) getBoard(c echo.Context) error {
	sess := boardFrom(c)
	if !freshBoard(c) {
		if err := sess.store.Load(c.Request().Context()); err != nil {
			return writeError(c, err)
		}
	}
	user, _ := sess.store.Identity()
	resp := boardResponse{User: user, Columns: sess.store.Columns(), Tasks: sess.store.Tasks()}
	if m := metricsFrom(c); m != nil {
		m.SetItems(len(resp.Columns) + len(resp.Tasks))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) createColumn(c echo.Context) error {
	var req columnRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	col, err := boardFrom(c).store.CreateColumn(c.Request().Context(), req.Name, req.Color)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, col)
}

func (s *Server) updateColumn(c echo.Context) error {
	var req columnRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	col, err := boardFrom(c).store.UpdateColumn(c.Request().Context(), c.Param("id"), req.Name, req.Color)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, col)
}

func (s *Server) deleteColumn(c echo.Context) error {
	var prompt board.Prompt
	err := boardFrom(c).store.DeleteColumn(c.Request().Context(), c.Param("id"), confirmerFor(c, &prompt))
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case prompt.Title != "":
		return writePrompt(c, prompt)
	default:
		return writeError(c, err)
	}
}

func (s *Server) createTask(c echo.Context) error {
	var in domain.TaskInput
	if err := decodeBody(c, &in); err != nil {
		return writeError(c, err)
	}
	t, err := boardFrom(c).store.CreateTask(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTask(c echo.Context) error {
	var patch domain.TaskPatch
	if err := decodeBody(c, &patch); err != nil {
		return writeError(c, err)
	}
	t, err := boardFrom(c).store.UpdateTask(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c echo.Context) error {
	var prompt board.Prompt
	err := boardFrom(c).store.DeleteTask(c.Request().Context(), c.Param("id"), confirmerFor(c, &prompt))
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case prompt.Title != "":
		return writePrompt(c, prompt)
	default:
		return writeError(c, err)
	}
}

func (s *Server) moveTask(c echo.Context) error {
	var req moveRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	if strings.TrimSpace(req.TargetColumnID) == "" {
		return writeError(c, domain.Invalid("targetColumnId", "target column is required"))
	}
	store := boardFrom(c).store
	id := c.Param("id")
	if req.SourceColumnID == "" {
		t, ok := store.Task(id)
		if !ok {
			return writeError(c, domain.ErrNotFound)
		}
		req.SourceColumnID = t.Status
	}
	if err := store.MoveTask(c.Request().Context(), id, req.SourceColumnID, req.TargetColumnID); err != nil {
		return writeError(c, err)
	}
	t, _ := store.Task(id)
	return c.JSON(http.StatusOK, t)
}

func (s *Server) dragState(c echo.Context) error {
	state, payload, over := boardFrom(c).drag.State()
	return c.JSON(http.StatusOK, dragStateResponse{State: state.String(), Payload: payload, ColumnID: over})
}

func (s *Server) dragBegin(c echo.Context) error {
	var req dragBeginRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	payload, err := boardFrom(c).drag.Begin(req.TaskID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dragStateResponse{State: board.DragDragging.String(), Payload: payload})
}

func (s *Server) dragOver(c echo.Context) error {
	var req dragOverRequest
	if err := decodeBody(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := boardFrom(c).drag.Over(req.ColumnID); err != nil {
		return writeError(c, err)
	}
	return s.dragState(c)
}

func (s *Server) dragLeave(c echo.Context) error {
	boardFrom(c).drag.Leave()
	return s.dragState(c)
}

func (s *Server) dragRelease(c echo.Context) error {
	boardFrom(c).drag.Release()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) dragDrop(c echo.Context) error {
	sess := boardFrom(c)
	_, payload, _ := sess.drag.State()
	moved, err := sess.drag.Drop(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	resp := dropResponse{Moved: moved}
	if moved {
		if t, ok := sess.store.Task(payload.TaskID); ok {
			resp.Task = &t
		}
	}
	return c.JSON(http.StatusOK, resp)
}
