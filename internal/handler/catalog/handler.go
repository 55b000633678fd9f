package catalog

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/roshita-planner/internal/handler"
	"github.com/jwalitptl/roshita-planner/internal/service/planner"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

// Handler serves the lookups the follow-up forms are built from.
type Handler struct {
	runner *planner.Runner
}

func NewHandler(runner *planner.Runner) *Handler {
	return &Handler{runner: runner}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/doctors/:id/slots", h.ListSlots)
	r.GET("/hospitals", h.ListHospitals)
}

func (h *Handler) ListSlots(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	doctorID, err := handler.IntParam(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	slots, err := h.runner.Slots(c.Request.Context(), s.Token(), doctorID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) ListHospitals(c *gin.Context) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	hospitals, err := h.runner.Hospitals(c.Request.Context(), s.Token())
	if err != nil {
		_ = c.Error(err)
		return
	}
	httputil.RespondWithSuccess(c, hospitals)
}
