package workflow

import "github.com/jwalitptl/roshita-planner/internal/model"

// Effect is I/O the runner performs on behalf of the reducer. Each effect
// answers with exactly one result event.
type Effect interface {
	Kind() string
}

// LoadSlots answers with SlotsLoaded or Failed.
type LoadSlots struct {
	DoctorID int
}

// LoadHospitals answers with HospitalsLoaded or Failed.
type LoadHospitals struct{}

// The mutations answer with Succeeded or Failed.
type (
	MarkNoShow struct {
		ReservationID int
	}
	CancelReservation struct {
		ReservationID int
	}
	CompleteReservation struct {
		ReservationID int
	}
	SubmitFollowUp struct {
		Request model.FollowUpRequest
	}
	SubmitSuggestion struct {
		Suggestion model.DoctorSuggestion
	}
)

func (LoadSlots) Kind() string           { return "load_slots" }
func (LoadHospitals) Kind() string       { return "load_hospitals" }
func (MarkNoShow) Kind() string          { return string(OpNoShow) }
func (CancelReservation) Kind() string   { return string(OpCancel) }
func (CompleteReservation) Kind() string { return string(OpComplete) }
func (SubmitFollowUp) Kind() string      { return string(OpFollowUp) }
func (SubmitSuggestion) Kind() string    { return string(OpSuggestion) }

// Mutates reports whether e changes backend state.
func Mutates(e Effect) bool {
	switch e.(type) {
	case LoadSlots, LoadHospitals:
		return false
	}
	return true
}
