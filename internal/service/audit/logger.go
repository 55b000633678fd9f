package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/roshita-planner/internal/model"
)

const defaultWriteTimeout = 10 * time.Second

// AuditLogger records entries in the background so callers never wait on
// the audit sinks.
type AuditLogger struct {
	service *Service
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAuditLogger(service *Service) *AuditLogger {
	return &AuditLogger{
		service: service,
		timeout: defaultWriteTimeout,
	}
}

// Log returns immediately. The write outlives ctx's cancellation but keeps
// its values.
func (l *AuditLogger) Log(ctx context.Context, entry *model.AuditEntry) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		// failures are logged and counted by the service
		_ = l.service.Record(writeCtx, entry)
	}()
}

func (l *AuditLogger) LogSync(ctx context.Context, entry *model.AuditEntry) error {
	return l.service.Record(ctx, entry)
}

// Wait blocks until every pending write has finished.
func (l *AuditLogger) Wait() {
	l.wg.Wait()
}
