// Package workflow is the appointment lifecycle state machine. Reduce is pure:
// it never performs I/O, it only returns the effects a runner must perform.
package workflow

import (
	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseActionMenu        Phase = "action_menu"
	PhaseConfirmCompletion Phase = "confirm_completion"
	PhaseFollowUpKind      Phase = "follow_up_kind"
	PhaseSlotPicker        Phase = "slot_picker"
	PhaseSuggestionForm    Phase = "suggestion_form"
	PhaseSubmitting        Phase = "submitting"
	PhaseSuccess           Phase = "success"
	PhaseError             Phase = "error"
)

// Terminal reports phases that only Close can leave.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// Operation names the backend mutation a wizard submitted.
type Operation string

const (
	OpNoShow     Operation = "no_show"
	OpCancel     Operation = "cancel"
	OpComplete   Operation = "complete"
	OpFollowUp   Operation = "follow_up"
	OpSuggestion Operation = "suggestion"
)

// Failure is what the UI banner shows.
type Failure struct {
	Kind    errors.Kind `json:"kind"`
	Message string      `json:"message"`
}

// State is the whole wizard. The zero value is Idle.
type State struct {
	Phase       Phase              `json:"phase"`
	Reservation *model.Reservation `json:"reservation,omitempty"`

	Slots        []model.Slot `json:"slots,omitempty"`
	SlotsLoaded  bool         `json:"slots_loaded"`
	SelectedSlot int          `json:"selected_slot,omitempty"`

	Hospitals        []model.Hospital       `json:"hospitals,omitempty"`
	HospitalsLoaded  bool                   `json:"hospitals_loaded"`
	Doctors          []model.HospitalDoctor `json:"doctors,omitempty"`
	SelectedHospital int                    `json:"selected_hospital,omitempty"`
	SelectedDoctor   int                    `json:"selected_doctor,omitempty"`
	ServiceType      model.ServiceType      `json:"service_type,omitempty"`
	Note             string                 `json:"note,omitempty"`

	// Pending is the mutation in flight while Submitting, and the one that
	// finished in Success or Error.
	Pending Operation `json:"pending,omitempty"`
	// Alert is a validation message key; it never leaves the current phase.
	Alert string   `json:"alert,omitempty"`
	Error *Failure `json:"error,omitempty"`
}

// Slot returns the selected slot, if any.
func (s State) Slot() (model.Slot, bool) {
	if s.SelectedSlot == 0 {
		return model.Slot{}, false
	}
	for _, slot := range s.Slots {
		if slot.ID == s.SelectedSlot {
			return slot, true
		}
	}
	return model.Slot{}, false
}

func (s State) hospital(id int) (model.Hospital, bool) {
	for _, h := range s.Hospitals {
		if h.ID == id {
			return h, true
		}
	}
	return model.Hospital{}, false
}

// Actions lists what the action menu may offer. Terminal reservations get none.
func Actions(r model.Reservation) []Operation {
	if !r.Actionable() {
		return nil
	}
	return []Operation{OpNoShow, OpComplete, OpCancel}
}
