package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/service/audit"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/messaging"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
	"github.com/jwalitptl/roshita-planner/pkg/security"
)

// Recorder persists one relayed entry.
type Recorder interface {
	Record(ctx context.Context, entry *model.AuditEntry) error
}

type AuditRelayConfig struct {
	Channel       string
	RetryAttempts int
	RetryDelay    time.Duration
}

// AuditRelay drains the audit channel into the database mirror and the
// backend's action log. Entries carry their id, so a retried write does not
// duplicate rows.
type AuditRelay struct {
	broker   messaging.Broker
	recorder Recorder
	config   AuditRelayConfig
	sealer   security.Sealer
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewAuditRelay(
	broker messaging.Broker,
	recorder Recorder,
	config AuditRelayConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *AuditRelay {
	if config.Channel == "" {
		panic("Channel must be set")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &AuditRelay{
		broker:   broker,
		recorder: recorder,
		config:   config,
		sealer:   security.Nop(),
		logger:   logger.With("component", "audit_relay"),
		metrics:  metrics,
	}
}

// WithSealer opens tokens sealed by the publishing BrokerSink.
func (r *AuditRelay) WithSealer(sealer security.Sealer) *AuditRelay {
	if sealer != nil {
		r.sealer = sealer
	}
	return r
}

// Start blocks until ctx is done.
func (r *AuditRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting audit relay", "channel", r.config.Channel)

	err := messaging.Consume(ctx, r.broker, r.config.Channel, r.handle, func(err error) {
		r.logger.Error(err, "Failed to relay audit entry")
	})

	r.logger.Info("Shutting down audit relay")
	if err == context.Canceled {
		return nil
	}
	return err
}

func (r *AuditRelay) handle(ctx context.Context, payload []byte) error {
	var env audit.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.metrics.AuditFailed.Inc()
		return fmt.Errorf("failed to decode audit envelope: %w", err)
	}
	entry, err := env.Open(r.sealer)
	if err != nil {
		r.metrics.AuditFailed.Inc()
		return err
	}

	attempt := 0
	err = retry(ctx, r.config.RetryAttempts, r.config.RetryDelay, func() error {
		if attempt > 0 {
			r.metrics.AuditRetries.Inc()
		}
		attempt++
		return r.recorder.Record(ctx, entry)
	})
	if err != nil {
		r.metrics.AuditFailed.Inc()
		return fmt.Errorf("audit entry %s: %w", entry.ID, err)
	}

	r.metrics.AuditRelayed.Inc()
	r.logger.Debug("Audit entry relayed", "entry_id", entry.ID.String(), "action", entry.Action)
	return nil
}

// retry runs fn up to attempts times, sleeping delay between tries.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(delay):
			}
		}
	}
	return err
}
