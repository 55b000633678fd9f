package planner

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/roshita-planner/internal/handler"
	"github.com/jwalitptl/roshita-planner/internal/service/appointment"
	"github.com/jwalitptl/roshita-planner/internal/service/planner"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

const StreamPath = "/planner/stream"

type Handler struct {
	board *planner.Board
}

func NewHandler(board *planner.Board) *Handler {
	return &Handler{board: board}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/planner/board", h.GetBoard)
	r.GET(StreamPath, h.Stream)
}

func (h *Handler) load(c *gin.Context) (planner.Snapshot, string, string, bool) {
	s, err := handler.Session(c)
	if err != nil {
		_ = c.Error(err)
		return planner.Snapshot{}, "", "", false
	}
	doctorID, err := handler.IntQuery(c, "doctor_id", 0)
	if err != nil {
		_ = c.Error(err)
		return planner.Snapshot{}, "", "", false
	}
	scope, err := appointment.ParseScope(c.Query("scope"), doctorID)
	if err != nil {
		_ = c.Error(err)
		return planner.Snapshot{}, "", "", false
	}
	page, pageSize, err := handler.PageQuery(c, h.board.PageSize())
	if err != nil {
		_ = c.Error(err)
		return planner.Snapshot{}, "", "", false
	}

	snap := h.board.Load(c.Request.Context(), handler.Actor(s), scope, page, pageSize)
	return snap, s.ID, s.Language(), true
}

// GetBoard renders one page of the board. A failed fetch still answers 200
// with an empty page and a banner.
func (h *Handler) GetBoard(c *gin.Context) {
	snap, _, lang, ok := h.load(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.board.Render(snap, lang))
}

// Stream sends the rendered board as a "board" event, then again whenever
// the session's language changes, until the client disconnects.
func (h *Handler) Stream(c *gin.Context) {
	snap, sessionID, _, ok := h.load(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	err := h.board.Watch(ctx, sessionID, snap, func(v planner.View) error {
		c.SSEvent("board", v)
		c.Writer.Flush()
		return ctx.Err()
	})
	if err != nil && ctx.Err() == nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("Board stream ended")
		if !c.Writer.Written() {
			_ = c.Error(err)
		}
	}
}
