package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/service/audit"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
	"github.com/jwalitptl/roshita-planner/pkg/security"
)

// chanBroker delivers whatever is pushed onto msgs.
type chanBroker struct {
	msgs chan []byte
}

func (b *chanBroker) Publish(_ context.Context, _ string, message interface{}) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.msgs <- raw
	return nil
}

func (b *chanBroker) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-b.msgs:
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *chanBroker) Close() error { return nil }

type flakyRecorder struct {
	mu       sync.Mutex
	failures int
	calls    int
	recorded []*model.AuditEntry
}

func (r *flakyRecorder) Record(_ context.Context, entry *model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return fmt.Errorf("database unavailable")
	}
	r.recorded = append(r.recorded, entry)
	return nil
}

func (r *flakyRecorder) snapshot() (int, []*model.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([]*model.AuditEntry(nil), r.recorded...)
}

func startRelay(t *testing.T, recorder Recorder, attempts int, sealer security.Sealer) (*chanBroker, *metrics.Metrics) {
	t.Helper()
	broker := &chanBroker{msgs: make(chan []byte, 4)}
	m := metrics.NewNop()
	relay := NewAuditRelay(broker, recorder, AuditRelayConfig{
		Channel:       "planner.audit",
		RetryAttempts: attempts,
		RetryDelay:    time.Millisecond,
	}, logger.Nop(), m).WithSealer(sealer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return broker, m
}

func TestAuditRelayRetriesUntilRecorded(t *testing.T) {
	recorder := &flakyRecorder{failures: 2}
	broker, m := startRelay(t, recorder, 3, nil)

	id := uuid.New()
	require.NoError(t, broker.Publish(context.Background(), "planner.audit", audit.Envelope{
		Entry: model.AuditEntry{ID: id, Action: model.AuditActionCancel, Outcome: model.AuditOutcomeSuccess},
		Token: "tok",
	}))

	require.Eventually(t, func() bool {
		_, recorded := recorder.snapshot()
		return len(recorded) == 1
	}, 2*time.Second, 5*time.Millisecond)

	calls, recorded := recorder.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, id, recorded[0].ID)
	assert.Equal(t, "tok", recorded[0].Token)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AuditRetries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditRelayed))
}

func TestAuditRelayGivesUp(t *testing.T) {
	recorder := &flakyRecorder{failures: 100}
	broker, m := startRelay(t, recorder, 2, nil)

	require.NoError(t, broker.Publish(context.Background(), "planner.audit", audit.Envelope{
		Entry: model.AuditEntry{ID: uuid.New(), Action: model.AuditActionNoShow},
	}))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.AuditFailed) == 1
	}, 2*time.Second, 5*time.Millisecond)
	calls, recorded := recorder.snapshot()
	assert.Equal(t, 2, calls)
	assert.Empty(t, recorded)
}

func TestAuditRelaySkipsMalformedPayload(t *testing.T) {
	recorder := &flakyRecorder{}
	broker, m := startRelay(t, recorder, 1, nil)

	broker.msgs <- []byte("{not json")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.AuditFailed) == 1
	}, 2*time.Second, 5*time.Millisecond)
	calls, _ := recorder.snapshot()
	assert.Zero(t, calls)
}

func TestRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, 5, time.Hour, func() error {
		calls++
		return fmt.Errorf("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAuditRelayOpensSealedToken(t *testing.T) {
	sealer, err := security.FromKey("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	recorder := &flakyRecorder{}
	broker, m := startRelay(t, recorder, 1, sealer)

	sink := audit.NewBrokerSink(broker, "planner.audit").WithSealer(sealer)
	require.NoError(t, sink.Write(context.Background(), &model.AuditEntry{
		ID: uuid.New(), Action: model.AuditActionComplete, Token: "bearer-1",
	}))

	require.Eventually(t, func() bool {
		_, recorded := recorder.snapshot()
		return len(recorded) == 1
	}, 2*time.Second, 5*time.Millisecond)
	_, recorded := recorder.snapshot()
	assert.Equal(t, "bearer-1", recorded[0].Token)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.AuditFailed))
}

func TestAuditRelayRejectsForeignSeal(t *testing.T) {
	ours, err := security.FromKey("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)
	theirs, err := security.FromKey("0f0e0d0c0b0a09080706050403020100")
	require.NoError(t, err)
	recorder := &flakyRecorder{}
	broker, m := startRelay(t, recorder, 1, ours)

	sink := audit.NewBrokerSink(broker, "planner.audit").WithSealer(theirs)
	require.NoError(t, sink.Write(context.Background(), &model.AuditEntry{ID: uuid.New(), Token: "bearer-1"}))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.AuditFailed) == 1
	}, 2*time.Second, 5*time.Millisecond)
	calls, _ := recorder.snapshot()
	assert.Equal(t, 0, calls)
}
