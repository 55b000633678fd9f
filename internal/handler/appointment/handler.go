package appointment

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/roshita-planner/internal/handler"
	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/service/appointment"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("", h.ListAppointments)
		appointments.GET("/stats", h.GetStats)
		appointments.POST("/:id/no-show", h.MarkNoShow)
		appointments.POST("/:id/complete", h.CompleteAppointment)
		appointments.DELETE("/:id", h.CancelAppointment)
	}
}

// ActionResult answers a lifecycle mutation.
type ActionResult struct {
	ID     int    `json:"id"`
	Action string `json:"action"`
}

func scopeFrom(c *gin.Context) (appointment.Scope, error) {
	doctorID, err := handler.IntQuery(c, "doctor_id", 0)
	if err != nil {
		return appointment.Scope{}, err
	}
	return appointment.ParseScope(c.Query("scope"), doctorID)
}

// ListAppointments returns one page of the actionable reservations, soonest
// first.
func (h *Handler) ListAppointments(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	scope, err := scopeFrom(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	page, pageSize, err := handler.PageQuery(c, h.service.Lister().PageSize())
	if err != nil {
		_ = c.Error(err)
		return
	}

	list, err := h.service.Lister().List(c.Request.Context(), handler.Actor(s), scope)
	if err != nil {
		_ = c.Error(err)
		return
	}

	p := appointment.Paginate(appointment.SortByDate(appointment.Actionable(list)), page, pageSize)
	httputil.RespondWithPagination(c, p.Items, p.Page, p.PageSize, p.Total)
}

// GetStats counts every reservation of the scope by status, for the charts.
func (h *Handler) GetStats(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	scope, err := scopeFrom(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	list, err := h.service.Lister().List(c.Request.Context(), handler.Actor(s), scope)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"total":  len(list),
		"counts": appointment.Summarize(list),
	})
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	h.mutate(c, model.AuditActionNoShow, h.service.NoShow)
}

func (h *Handler) CompleteAppointment(c *gin.Context) {
	h.mutate(c, model.AuditActionComplete, h.service.Complete)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	h.mutate(c, model.AuditActionCancel, h.service.Cancel)
}

func (h *Handler) mutate(c *gin.Context, action string, fn func(ctx context.Context, actor appointment.Actor, id int) error) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	id, err := handler.IntParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := fn(c.Request.Context(), handler.Actor(s), id); err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, ActionResult{ID: id, Action: action})
}
