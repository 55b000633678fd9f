package appointment

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/roshita"
)

// Auditor records an entry without blocking the caller.
type Auditor interface {
	Log(ctx context.Context, entry *model.AuditEntry)
}

// Service performs the lifecycle mutations on a reservation. Every call that
// reaches the backend is audited once, and a success drops the caller's
// cached lists.
type Service struct {
	backend Backend
	lister  *Lister
	auditor Auditor
	logger  *logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewService(backend Backend, lister *Lister, auditor Auditor, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		backend:  backend,
		lister:   lister,
		auditor:  auditor,
		logger:   log.With("component", "appointment_actions"),
		inflight: make(map[string]struct{}),
	}
}

// Lister exposes the list side for handlers.
func (s *Service) Lister() *Lister {
	return s.lister
}

func (s *Service) NoShow(ctx context.Context, actor Actor, id int) error {
	return s.mutate(ctx, actor, id, model.AuditActionNoShow, true, func() (*roshita.Call, error) {
		return s.backend.MarkNotAttend(ctx, actor.Token, id)
	})
}

func (s *Service) Cancel(ctx context.Context, actor Actor, id int) error {
	return s.mutate(ctx, actor, id, model.AuditActionCancel, true, func() (*roshita.Call, error) {
		return s.backend.CancelReservation(ctx, actor.Token, id)
	})
}

func (s *Service) Complete(ctx context.Context, actor Actor, id int) error {
	return s.mutate(ctx, actor, id, model.AuditActionComplete, true, func() (*roshita.Call, error) {
		return s.backend.CompleteReservation(ctx, actor.Token, id)
	})
}

// FollowUp books a new slot with the same doctor for reservation id.
func (s *Service) FollowUp(ctx context.Context, actor Actor, id int, req model.FollowUpRequest) error {
	return s.mutate(ctx, actor, id, model.AuditActionFollowUp, false, func() (*roshita.Call, error) {
		return s.backend.FollowUpSameDoctor(ctx, actor.Token, req)
	})
}

// Suggest refers the reservation's patient to another hospital.
func (s *Service) Suggest(ctx context.Context, actor Actor, suggestion model.DoctorSuggestion) error {
	return s.mutate(ctx, actor, suggestion.AppointmentReservation, model.AuditActionSuggestion, false, func() (*roshita.Call, error) {
		return s.backend.CreateDoctorSuggestion(ctx, actor.Token, suggestion)
	})
}

// guarded actions are refused for reservations known to be terminal.
func (s *Service) mutate(ctx context.Context, actor Actor, id int, action string, guarded bool, call func() (*roshita.Call, error)) error {
	if guarded {
		if r, ok := s.lister.Lookup(actor, id); ok && !r.Actionable() {
			return errors.Conflict(fmt.Sprintf("reservation %d is already %s", id, r.Status))
		}
	}

	key := actor.UserID + "|" + strconv.Itoa(id) + "|" + action
	if !s.begin(key) {
		return errors.Conflict("request already in progress")
	}
	defer s.end(key)

	c, err := call()
	if err != nil && !reachedBackend(err) {
		return err
	}

	s.audit(ctx, actor, action, c, err)
	if err != nil {
		s.logger.Error(err, "reservation action failed", "action", action, "reservation_id", id)
		return err
	}

	s.lister.Invalidate(actor.UserID)
	s.logger.Info("reservation action done", "action", action, "reservation_id", id, "user_id", actor.UserID)
	return nil
}

func (s *Service) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) end(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

func (s *Service) audit(ctx context.Context, actor Actor, action string, c *roshita.Call, err error) {
	if s.auditor == nil || c == nil {
		return
	}
	entry := &model.AuditEntry{
		UserID:     actor.UserID,
		Action:     action,
		Method:     c.Method,
		URL:        c.URL,
		Payload:    c.Payload,
		Outcome:    model.AuditOutcomeSuccess,
		HTTPStatus: c.Status,
		Message:    http.StatusText(c.Status),
		Token:      actor.Token,
	}
	if err != nil {
		entry.Outcome = model.AuditOutcomeError
		entry.Message = err.Error()
		if appErr, ok := errors.As(err); ok {
			entry.Message = appErr.Message
		}
	}
	s.auditor.Log(ctx, entry)
}

// Calls refused locally (no token, open breaker) never reached the backend
// and are not audited.
func reachedBackend(err error) bool {
	switch errors.KindOf(err) {
	case errors.KindAuthMissing, errors.KindUnavailable:
		return false
	}
	return true
}
