package planner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/roshita-planner/internal/email"
	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/service/appointment"
	"github.com/jwalitptl/roshita-planner/internal/workflow"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
)

const (
	hospitalsKey    = "hospitals"
	mutationTimeout = 30 * time.Second
)

// Catalog serves the read-only data the wizard offers for selection.
type Catalog interface {
	DoctorSlots(ctx context.Context, token string, doctorID int) ([]model.Slot, error)
	Hospitals(ctx context.Context, token string, maxPages int) ([]model.Hospital, error)
}

// Actions performs the audited reservation mutations.
type Actions interface {
	NoShow(ctx context.Context, actor appointment.Actor, id int) error
	Cancel(ctx context.Context, actor appointment.Actor, id int) error
	Complete(ctx context.Context, actor appointment.Actor, id int) error
	FollowUp(ctx context.Context, actor appointment.Actor, id int, req model.FollowUpRequest) error
	Suggest(ctx context.Context, actor appointment.Actor, s model.DoctorSuggestion) error
}

// Wizard is one open action menu and its follow-up flow.
type Wizard struct {
	ID        string         `json:"id"`
	SessionID string         `json:"-"`
	State     workflow.State `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Caller identifies the session driving a wizard.
type Caller struct {
	SessionID string
	Language  string
	Actor     appointment.Actor
}

type RunnerConfig struct {
	WizardTTL        time.Duration
	HospitalCacheTTL time.Duration
	MaxPages         int
}

// Runner executes the reducer's effects and stores wizard state between
// requests. State is saved before any effect runs, so a concurrent reader
// sees Submitting while the backend call is in flight.
type Runner struct {
	lister   *appointment.Lister
	actions  Actions
	catalog  Catalog
	notifier email.Service
	wizards  *cache.Cache
	shared   *cache.Cache
	maxPages int
	metrics  *metrics.Metrics
	logger   *logger.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewRunner(cfg RunnerConfig, lister *appointment.Lister, actions Actions, catalog Catalog, notifier email.Service, m *metrics.Metrics, log *logger.Logger) *Runner {
	if cfg.WizardTTL <= 0 {
		cfg.WizardTTL = 30 * time.Minute
	}
	if notifier == nil {
		notifier = email.NewNoopService()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{
		lister:   lister,
		actions:  actions,
		catalog:  catalog,
		notifier: notifier,
		wizards:  cache.New(cfg.WizardTTL, cfg.WizardTTL),
		shared:   cache.New(cfg.HospitalCacheTTL, 2*cfg.HospitalCacheTTL),
		maxPages: cfg.MaxPages,
		metrics:  m,
		logger:   log.With("component", "planner"),
		locks:    make(map[string]*sync.Mutex),
	}
	// expiry and Close both end here
	r.wizards.OnEvicted(func(key string, _ interface{}) { r.unlock(key) })
	return r
}

// Open starts a wizard for one reservation of the caller's list.
func (r *Runner) Open(ctx context.Context, caller Caller, reservationID int) (*Wizard, error) {
	res, err := r.findReservation(ctx, caller.Actor, reservationID)
	if err != nil {
		return nil, err
	}

	w := &Wizard{ID: uuid.New().String(), SessionID: caller.SessionID}
	r.save(w)
	return r.Dispatch(ctx, caller, w.ID, workflow.Open{Reservation: res})
}

func (r *Runner) findReservation(ctx context.Context, actor appointment.Actor, id int) (model.Reservation, error) {
	if res, ok := r.lister.Lookup(actor, id); ok {
		return res, nil
	}
	list, err := r.lister.List(ctx, actor, appointment.Scope{})
	if err != nil {
		return model.Reservation{}, err
	}
	for _, res := range list {
		if res.ID == id {
			return res, nil
		}
	}
	return model.Reservation{}, errors.NotFound("reservation", nil)
}

// Get returns the current wizard without waiting for in-flight effects.
func (r *Runner) Get(sessionID, wizardID string) (*Wizard, error) {
	w, ok := r.load(sessionID, wizardID)
	if !ok {
		return nil, errors.NotFound("wizard", nil)
	}
	return w, nil
}

// Close discards the wizard.
func (r *Runner) Close(sessionID, wizardID string) {
	r.wizards.Delete(wizardKey(sessionID, wizardID))
}

// Dispatch applies ev and then runs every resulting effect, feeding each
// result back into the reducer, until the wizard settles.
func (r *Runner) Dispatch(ctx context.Context, caller Caller, wizardID string, ev workflow.Event) (*Wizard, error) {
	w, effects, err := r.apply(caller.SessionID, wizardID, ev)
	if err != nil {
		return nil, err
	}

	queue := effects
	for len(queue) > 0 {
		effect := queue[0]
		queue = queue[1:]

		result := r.perform(ctx, caller, w.State, effect)
		w, effects, err = r.apply(caller.SessionID, wizardID, result)
		if err != nil {
			// closed while the effect ran
			return nil, err
		}
		queue = append(queue, effects...)
	}
	return w, nil
}

// apply runs one reducer step under the wizard's lock and saves the result.
func (r *Runner) apply(sessionID, wizardID string, ev workflow.Event) (*Wizard, []workflow.Effect, error) {
	mu := r.lock(sessionID, wizardID)
	mu.Lock()
	defer mu.Unlock()

	w, ok := r.load(sessionID, wizardID)
	if !ok {
		r.unlock(wizardKey(sessionID, wizardID))
		return nil, nil, errors.NotFound("wizard", nil)
	}

	from := w.State.Phase
	next, effects := workflow.Reduce(w.State, ev)
	if from != next.Phase {
		r.metrics.WizardTransitions.WithLabelValues(phaseLabel(from), phaseLabel(next.Phase)).Inc()
		r.logger.Debug("wizard transition", "wizard_id", wizardID, "event", ev.Name(), "from", from, "to", next.Phase)
	}

	w.State = next
	w.UpdatedAt = time.Now().UTC()
	r.save(w)
	return w, effects, nil
}

func (r *Runner) perform(ctx context.Context, caller Caller, s workflow.State, effect workflow.Effect) workflow.Event {
	if workflow.Mutates(effect) {
		// a mutation must finish even if the client goes away
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), mutationTimeout)
		defer cancel()
	}

	actor := caller.Actor
	var err error
	switch e := effect.(type) {
	case workflow.LoadSlots:
		slots, err := r.Slots(ctx, actor.Token, e.DoctorID)
		if err != nil {
			return workflow.FailedFrom(err)
		}
		return workflow.SlotsLoaded{Slots: slots}
	case workflow.LoadHospitals:
		hospitals, err := r.Hospitals(ctx, actor.Token)
		if err != nil {
			return workflow.FailedFrom(err)
		}
		return workflow.HospitalsLoaded{Hospitals: hospitals}
	case workflow.MarkNoShow:
		err = r.actions.NoShow(ctx, actor, e.ReservationID)
	case workflow.CancelReservation:
		err = r.actions.Cancel(ctx, actor, e.ReservationID)
	case workflow.CompleteReservation:
		err = r.actions.Complete(ctx, actor, e.ReservationID)
	case workflow.SubmitFollowUp:
		err = r.actions.FollowUp(ctx, actor, s.Reservation.ID, e.Request)
		if err == nil {
			r.confirm(ctx, caller.Language, s.Reservation.Patient, e.Request)
		}
	case workflow.SubmitSuggestion:
		err = r.actions.Suggest(ctx, actor, e.Suggestion)
	default:
		err = errors.Internal(nil)
	}

	if err != nil {
		return workflow.FailedFrom(err)
	}
	return workflow.Succeeded{}
}

// Slots lists a doctor's open slots. They change with every booking and are
// never cached.
func (r *Runner) Slots(ctx context.Context, token string, doctorID int) ([]model.Slot, error) {
	if token == "" {
		return nil, errors.AuthMissing()
	}
	return r.catalog.DoctorSlots(ctx, token, doctorID)
}

// Hospitals are the same for every user; they are cached once.
func (r *Runner) Hospitals(ctx context.Context, token string) ([]model.Hospital, error) {
	if token == "" {
		return nil, errors.AuthMissing()
	}
	if v, ok := r.shared.Get(hospitalsKey); ok {
		return v.([]model.Hospital), nil
	}
	list, err := r.catalog.Hospitals(ctx, token, r.maxPages)
	if err != nil {
		return nil, err
	}
	r.shared.Set(hospitalsKey, list, cache.DefaultExpiration)
	return list, nil
}

func (r *Runner) confirm(ctx context.Context, lang string, patient model.Patient, req model.FollowUpRequest) {
	if err := r.notifier.SendFollowUpConfirmation(ctx, lang, patient, req); err != nil && err != email.ErrNoRecipient {
		r.logger.Error(err, "follow-up confirmation email failed", "patient_id", patient.ID)
	}
}

func (r *Runner) lock(sessionID, wizardID string) *sync.Mutex {
	key := wizardKey(sessionID, wizardID)
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	return mu
}

// unlock forgets a wizard's mutex once the wizard is gone.
func (r *Runner) unlock(key string) {
	r.locksMu.Lock()
	delete(r.locks, key)
	r.locksMu.Unlock()
}

func (r *Runner) load(sessionID, wizardID string) (*Wizard, bool) {
	v, ok := r.wizards.Get(wizardKey(sessionID, wizardID))
	if !ok {
		return nil, false
	}
	w := v.(Wizard)
	return &w, true
}

func (r *Runner) save(w *Wizard) {
	r.wizards.Set(wizardKey(w.SessionID, w.ID), *w, cache.DefaultExpiration)
}

func wizardKey(sessionID, wizardID string) string {
	return sessionID + "|" + wizardID
}

func phaseLabel(p workflow.Phase) string {
	if p == "" {
		return string(workflow.PhaseIdle)
	}
	return string(p)
}
