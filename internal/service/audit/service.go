package audit

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/repository"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
)

// Sink receives finished audit entries.
type Sink interface {
	Name() string
	Write(ctx context.Context, entry *model.AuditEntry) error
}

// Service fans an entry out to every configured sink and answers queries
// against the local mirror when one is configured.
type Service struct {
	sinks   []Sink
	repo    repository.AuditRepository
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

// NewService builds the service. repo may be nil when no local mirror is kept.
func NewService(repo repository.AuditRepository, m *metrics.Metrics, log *logger.Logger, sinks ...Sink) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		sinks:   sinks,
		repo:    repo,
		metrics: m,
		logger:  log.With("component", "audit"),
		now:     time.Now,
	}
}

// Record writes entry to every sink. A failing sink does not stop the others;
// the joined error is returned.
func (s *Service) Record(ctx context.Context, entry *model.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	var errs []error
	for _, sink := range s.sinks {
		err := sink.Write(ctx, entry)
		s.metrics.AuditEntries.WithLabelValues(sink.Name(), metrics.Status(err)).Inc()
		if err != nil {
			s.logger.Error(err, "audit sink failed",
				"sink", sink.Name(),
				"action", entry.Action,
				"entry_id", entry.ID.String())
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}

// Mirrored reports whether list and stats queries are available.
func (s *Service) Mirrored() bool {
	return s.repo != nil
}

func (s *Service) ListWithPagination(ctx context.Context, filter repository.AuditFilter) ([]*model.AuditEntry, int64, error) {
	if s.repo == nil {
		return nil, 0, nil
	}
	return s.repo.ListWithPagination(ctx, filter)
}

func (s *Service) GetAggregateStats(ctx context.Context, filter repository.AuditFilter) (*model.AuditStats, error) {
	if s.repo == nil {
		return &model.AuditStats{ActionCounts: map[string]int64{}, OutcomeCounts: map[string]int64{}}, nil
	}
	return s.repo.GetAggregateStats(ctx, filter)
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	return s.repo.Cleanup(ctx, before)
}
