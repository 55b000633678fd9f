package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/roshita-planner/internal/handler"
	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/repository"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Querier answers questions about the local audit mirror.
type Querier interface {
	Mirrored() bool
	ListWithPagination(ctx context.Context, filter repository.AuditFilter) ([]*model.AuditEntry, int64, error)
	GetAggregateStats(ctx context.Context, filter repository.AuditFilter) (*model.AuditStats, error)
}

var errMirrorDisabled = &errors.AppError{
	Code:    errors.ErrUnavailable,
	Kind:    errors.KindUnavailable,
	Message: "audit mirror is not configured",
}

type Handler struct {
	service Querier
}

func NewHandler(service Querier) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/entries", h.ListEntries)
		audit.GET("/export", h.ExportEntries)
		audit.GET("/stats", h.GetAggregateStats)
	}
}

// filterFrom reads the query filters. Entries are always scoped to the
// caller's own user.
func (h *Handler) filterFrom(c *gin.Context) (repository.AuditFilter, error) {
	s, err := handler.Session(c)
	if err != nil {
		return repository.AuditFilter{}, err
	}
	if !h.service.Mirrored() {
		return repository.AuditFilter{}, errMirrorDisabled
	}

	filter := repository.AuditFilter{
		UserID: s.UserID(),
		Action: c.Query("action"),
	}
	switch outcome := model.AuditOutcome(c.Query("outcome")); outcome {
	case "", model.AuditOutcomeSuccess, model.AuditOutcomeError:
		filter.Outcome = outcome
	default:
		return filter, errors.BadRequest("invalid outcome", nil)
	}
	if filter.From, err = timeQuery(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = timeQuery(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func timeQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.BadRequest("invalid "+name+" format", err)
	}
	return t, nil
}

func (h *Handler) ListEntries(c *gin.Context) {
	filter, err := h.filterFrom(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	page, err := handler.IntQuery(c, "page", 1)
	if err != nil {
		_ = c.Error(err)
		return
	}
	pageSize, err := handler.IntQuery(c, "page_size", defaultPageSize)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	entries, total, err := h.service.ListWithPagination(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(errors.Internal(err))
		return
	}
	if entries == nil {
		entries = []*model.AuditEntry{}
	}
	httputil.RespondWithPagination(c, entries, page, pageSize, int(total))
}

// ExportEntries writes the filtered entries as CSV, newest first.
func (h *Handler) ExportEntries(c *gin.Context) {
	filter, err := h.filterFrom(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	filter.Limit = maxPageSize

	entries, _, err := h.service.ListWithPagination(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(errors.Internal(err))
		return
	}

	filename := fmt.Sprintf("audit_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"ID", "User ID", "Action", "Method", "URL", "Outcome", "HTTP Status", "Message", "Created At"})
	for _, e := range entries {
		_ = w.Write([]string{
			e.ID.String(),
			e.UserID,
			e.Action,
			e.Method,
			e.URL,
			string(e.Outcome),
			strconv.Itoa(e.HTTPStatus),
			e.Message,
			e.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
}

func (h *Handler) GetAggregateStats(c *gin.Context) {
	filter, err := h.filterFrom(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if filter.From.IsZero() {
		filter.From = time.Now().UTC().AddDate(0, 0, -7)
	}

	stats, err := h.service.GetAggregateStats(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(errors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, stats)
}
