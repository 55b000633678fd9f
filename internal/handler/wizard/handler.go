package wizard

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/roshita-planner/internal/handler"
	"github.com/jwalitptl/roshita-planner/internal/i18n"
	"github.com/jwalitptl/roshita-planner/internal/service/planner"
	"github.com/jwalitptl/roshita-planner/internal/session"
	"github.com/jwalitptl/roshita-planner/internal/workflow"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

type Handler struct {
	runner          *planner.Runner
	defaultLanguage string
}

func NewHandler(runner *planner.Runner, defaultLanguage string) *Handler {
	return &Handler{runner: runner, defaultLanguage: defaultLanguage}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	wizards := r.Group("/wizards")
	{
		wizards.POST("", h.Open)
		wizards.GET("/:id", h.Get)
		wizards.POST("/:id/events", h.Dispatch)
		wizards.DELETE("/:id", h.Close)
	}
}

type OpenRequest struct {
	ReservationID int `json:"reservation_id" binding:"required,gt=0"`
}

// Response is a wizard plus the texts its current phase shows.
type Response struct {
	*planner.Wizard
	Actions []workflow.Operation `json:"actions"`
	Alert   string               `json:"alert_text,omitempty"`
	Failure string               `json:"error_text,omitempty"`
	Success string               `json:"success_text,omitempty"`
}

func (h *Handler) respond(c *gin.Context, status int, s *session.Session, w *planner.Wizard) {
	labels := i18n.For(s.Language(), h.defaultLanguage)
	resp := Response{Wizard: w, Actions: []workflow.Operation{}}
	if w.State.Phase == workflow.PhaseActionMenu && w.State.Reservation != nil {
		resp.Actions = workflow.Actions(*w.State.Reservation)
	}
	if w.State.Alert != "" {
		resp.Alert = labels.T(w.State.Alert)
	}
	if w.State.Error != nil {
		resp.Failure = labels.T(i18n.WizardFailed)
	}
	if w.State.Phase == workflow.PhaseSuccess {
		resp.Success = labels.T(i18n.WizardSuccess)
	}
	c.JSON(status, httputil.Response{Success: true, Data: resp})
}

func caller(s *session.Session) planner.Caller {
	return planner.Caller{
		SessionID: s.ID,
		Language:  s.Language(),
		Actor:     handler.Actor(s),
	}
}

func (h *Handler) Open(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	w, err := h.runner.Open(c.Request.Context(), caller(s), req.ReservationID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.respond(c, http.StatusCreated, s, w)
}

func (h *Handler) Get(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	w, err := h.runner.Get(s.ID, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.respond(c, http.StatusOK, s, w)
}

// Dispatch applies one user event and answers with the settled wizard. A
// submit answers once the backend call has finished.
func (h *Handler) Dispatch(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(errors.BadRequest("unreadable body", err))
		return
	}
	ev, err := workflow.ParseUserEvent(raw)
	if err != nil {
		_ = c.Error(err)
		return
	}

	w, err := h.runner.Dispatch(c.Request.Context(), caller(s), c.Param("id"), ev)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.respond(c, http.StatusOK, s, w)
}

func (h *Handler) Close(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.runner.Close(s.ID, c.Param("id"))
	c.Status(http.StatusNoContent)
}
