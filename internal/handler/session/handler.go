package session

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/roshita-planner/internal/handler"
	"github.com/jwalitptl/roshita-planner/internal/middleware"
	"github.com/jwalitptl/roshita-planner/internal/session"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

type Handler struct {
	manager *session.Manager
}

func NewHandler(manager *session.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterPublicRoutes mounts the login route, which needs no session.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.Create)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	current := r.Group("/sessions/current")
	{
		current.GET("", h.Get)
		current.PUT("/language", h.SetLanguage)
		current.DELETE("", h.Delete)
	}
}

type CreateRequest struct {
	Access    string `json:"access" binding:"required"`
	Refresh   string `json:"refresh"`
	Language  string `json:"language" binding:"omitempty,language"`
	PatientID string `json:"patient_id"`
}

type LanguageRequest struct {
	Language string `json:"language" binding:"required,language"`
}

// View is the session as the UI sees it. Tokens are never echoed.
type View struct {
	ID        string `json:"session_id"`
	UserID    string `json:"user_id"`
	UserType  string `json:"type"`
	PatientID string `json:"patient_id,omitempty"`
	Language  string `json:"language"`
	LoggedIn  bool   `json:"logged_in"`
}

func viewOf(s *session.Session) View {
	return View{
		ID:        s.ID,
		UserID:    s.UserID(),
		UserType:  s.UserType(),
		PatientID: s.PatientID(),
		Language:  s.Language(),
		LoggedIn:  s.LoggedIn(),
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	s, err := h.manager.Start(c.Request.Context(), session.Login{
		Access:    req.Access,
		Refresh:   req.Refresh,
		Language:  req.Language,
		PatientID: req.PatientID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header(middleware.HeaderSessionID, s.ID)
	httputil.RespondWithCreated(c, viewOf(s))
}

func (h *Handler) Get(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, viewOf(s))
}

// SetLanguage switches the UI language. Open board streams re-render on
// the change.
func (h *Handler) SetLanguage(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req LanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	if err := h.manager.SetLanguage(ctx, s.ID, req.Language); err != nil {
		_ = c.Error(err)
		return
	}
	updated, err := h.manager.Store().Get(ctx, s.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, viewOf(updated))
}

func (h *Handler) Delete(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.manager.End(c.Request.Context(), s.ID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
