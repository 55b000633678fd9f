package audit

import (
	"context"
	"fmt"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/repository"
	"github.com/jwalitptl/roshita-planner/pkg/messaging"
	"github.com/jwalitptl/roshita-planner/pkg/security"
)

// ActionLogger is the backend's logging endpoint.
type ActionLogger interface {
	LogAction(ctx context.Context, token string, entry *model.AuditEntry) error
}

// RemoteSink posts entries to the Roshita logging endpoint with the caller's token.
type RemoteSink struct {
	client ActionLogger
}

func NewRemoteSink(client ActionLogger) *RemoteSink {
	return &RemoteSink{client: client}
}

func (s *RemoteSink) Name() string { return "remote" }

func (s *RemoteSink) Write(ctx context.Context, entry *model.AuditEntry) error {
	return s.client.LogAction(ctx, entry.Token, entry)
}

// RepositorySink keeps a local copy for reporting and retention.
type RepositorySink struct {
	repo repository.AuditRepository
}

func NewRepositorySink(repo repository.AuditRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Name() string { return "database" }

func (s *RepositorySink) Write(ctx context.Context, entry *model.AuditEntry) error {
	return s.repo.Create(ctx, entry)
}

// Envelope is the broker message. The token travels sealed with the entry so
// the relay can forward it to the backend on the user's behalf.
type Envelope struct {
	Entry model.AuditEntry `json:"entry"`
	Token string           `json:"token,omitempty"`
}

// SealEnvelope wraps entry for the broker, sealing its token. A nil sealer
// leaves the token in clear.
func SealEnvelope(entry *model.AuditEntry, sealer security.Sealer) (Envelope, error) {
	if sealer == nil {
		sealer = security.Nop()
	}
	token, err := sealer.Seal(entry.Token)
	if err != nil {
		return Envelope{}, fmt.Errorf("seal audit token: %w", err)
	}
	return Envelope{Entry: *entry, Token: token}, nil
}

// Open restores the token dropped by the entry's JSON form.
func (e Envelope) Open(sealer security.Sealer) (*model.AuditEntry, error) {
	if sealer == nil {
		sealer = security.Nop()
	}
	token, err := sealer.Open(e.Token)
	if err != nil {
		return nil, fmt.Errorf("open audit token: %w", err)
	}
	entry := e.Entry
	entry.Token = token
	return &entry, nil
}

// BrokerSink hands entries to the relay worker.
type BrokerSink struct {
	broker  messaging.Broker
	channel string
	sealer  security.Sealer
}

func NewBrokerSink(broker messaging.Broker, channel string) *BrokerSink {
	return &BrokerSink{broker: broker, channel: channel, sealer: security.Nop()}
}

// WithSealer seals tokens before they reach the broker. The relay must open
// them with the same key.
func (s *BrokerSink) WithSealer(sealer security.Sealer) *BrokerSink {
	if sealer != nil {
		s.sealer = sealer
	}
	return s
}

func (s *BrokerSink) Name() string { return "broker" }

func (s *BrokerSink) Write(ctx context.Context, entry *model.AuditEntry) error {
	env, err := SealEnvelope(entry, s.sealer)
	if err != nil {
		return err
	}
	return s.broker.Publish(ctx, s.channel, env)
}
