package repository

import (
	"context"
	"time"

	"github.com/jwalitptl/roshita-planner/internal/model"
)

// All repository interfaces in one file
type (
	// AuditRepository mirrors audit entries locally for reporting and retention.
	AuditRepository interface {
		Create(ctx context.Context, entry *model.AuditEntry) error
		ListWithPagination(ctx context.Context, filter AuditFilter) ([]*model.AuditEntry, int64, error)
		GetAggregateStats(ctx context.Context, filter AuditFilter) (*model.AuditStats, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)

// AuditFilter narrows audit queries. Zero fields do not filter.
type AuditFilter struct {
	UserID  string
	Action  string
	Outcome model.AuditOutcome
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}
