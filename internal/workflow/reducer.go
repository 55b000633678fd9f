package workflow

import (
	"github.com/jwalitptl/roshita-planner/internal/i18n"
	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
)

// Reduce applies ev to s. Events that do not apply to the current phase
// leave the state untouched and produce no effects. The only way back is
// Close.
func Reduce(s State, ev Event) (State, []Effect) {
	if _, ok := ev.(Close); ok {
		return State{Phase: PhaseIdle}, nil
	}

	switch s.Phase {
	case PhaseIdle, "":
		return idle(s, ev)
	case PhaseActionMenu:
		return actionMenu(s, ev)
	case PhaseConfirmCompletion:
		return confirmCompletion(s, ev)
	case PhaseFollowUpKind:
		return followUpKind(s, ev)
	case PhaseSlotPicker:
		return slotPicker(s, ev)
	case PhaseSuggestionForm:
		return suggestionForm(s, ev)
	case PhaseSubmitting:
		return submitting(s, ev)
	}
	// Success and Error wait for Close.
	return s, nil
}

func idle(s State, ev Event) (State, []Effect) {
	open, ok := ev.(Open)
	if !ok {
		return s, nil
	}
	if !open.Reservation.Actionable() {
		return State{
			Phase: PhaseIdle,
			Alert: i18n.AlertTerminal,
			Error: &Failure{Kind: errors.KindConflict, Message: "reservation is already " + string(open.Reservation.Status)},
		}, nil
	}
	r := open.Reservation
	return State{Phase: PhaseActionMenu, Reservation: &r}, nil
}

func actionMenu(s State, ev Event) (State, []Effect) {
	id := s.Reservation.ID
	switch ev.(type) {
	case ChooseNoShow:
		return submit(s, OpNoShow, MarkNoShow{ReservationID: id})
	case ChooseCancel:
		return submit(s, OpCancel, CancelReservation{ReservationID: id})
	case ChooseDone:
		s.Phase = PhaseConfirmCompletion
		return s, nil
	}
	return s, nil
}

func confirmCompletion(s State, ev Event) (State, []Effect) {
	switch ev.(type) {
	case EndAppointment:
		return submit(s, OpComplete, CompleteReservation{ReservationID: s.Reservation.ID})
	case ChooseFollowUp:
		s.Phase = PhaseFollowUpKind
		return s, nil
	}
	return s, nil
}

func followUpKind(s State, ev Event) (State, []Effect) {
	switch ev.(type) {
	case ChooseSameDoctor:
		s.Phase = PhaseSlotPicker
		return s, []Effect{LoadSlots{DoctorID: s.Reservation.Doctor.ID}}
	case ChooseAnotherDoctor:
		s.Phase = PhaseSuggestionForm
		return s, []Effect{LoadHospitals{}}
	}
	return s, nil
}

func slotPicker(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case SlotsLoaded:
		s.Slots = e.Slots
		s.SlotsLoaded = true
		s.SelectedSlot = 0
		return s, nil
	case SelectSlot:
		s.SelectedSlot = 0
		for _, slot := range s.Slots {
			if slot.ID == e.SlotID {
				s.SelectedSlot = e.SlotID
				s.Alert = ""
				break
			}
		}
		return s, nil
	case Submit:
		slot, ok := s.Slot()
		if !ok {
			s.Alert = i18n.AlertSelectSlot
			return s, nil
		}
		return submit(s, OpFollowUp, SubmitFollowUp{Request: model.FollowUpRequest{
			ConfirmationCode: s.Reservation.ConfirmationCode,
			ReservationDate:  slot.ScheduledDate,
			StartTime:        slot.StartTime,
			EndTime:          slot.EndTime,
		}})
	case Failed:
		return fail(s, e), nil
	}
	return s, nil
}

func suggestionForm(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case HospitalsLoaded:
		s.Hospitals = e.Hospitals
		s.HospitalsLoaded = true
		return s, nil
	case SelectHospital:
		h, ok := s.hospital(e.HospitalID)
		if !ok {
			return s, nil
		}
		s.SelectedHospital = h.ID
		s.Doctors = h.Doctors
		s.SelectedDoctor = 0
		s.Alert = ""
		return s, nil
	case SelectDoctor:
		for _, d := range s.Doctors {
			if d.ID == e.DoctorID {
				s.SelectedDoctor = d.ID
				break
			}
		}
		return s, nil
	case SetServiceType:
		st, ok := model.ParseServiceType(e.Value)
		if !ok {
			s.Alert = i18n.AlertServiceType
			return s, nil
		}
		s.ServiceType = st
		s.Alert = ""
		return s, nil
	case SetNote:
		s.Note = e.Note
		return s, nil
	case Submit:
		if s.SelectedHospital == 0 {
			s.Alert = i18n.AlertHospital
			return s, nil
		}
		if s.ServiceType == "" {
			s.Alert = i18n.AlertServiceType
			return s, nil
		}
		return submit(s, OpSuggestion, SubmitSuggestion{Suggestion: model.DoctorSuggestion{
			Patient:                s.Reservation.Patient.ID,
			AppointmentReservation: s.Reservation.ID,
			MedicalOrganizationIDs: []int{s.SelectedHospital},
			ServiceType:            s.ServiceType,
			Note:                   s.Note,
		}})
	case Failed:
		return fail(s, e), nil
	}
	return s, nil
}

// Submitting ignores every user event; only the in-flight result moves it.
func submitting(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case Succeeded:
		s.Phase = PhaseSuccess
		s.Alert = ""
		return s, nil
	case Failed:
		return fail(s, e), nil
	}
	return s, nil
}

func submit(s State, op Operation, effect Effect) (State, []Effect) {
	s.Phase = PhaseSubmitting
	s.Pending = op
	s.Alert = ""
	s.Error = nil
	return s, []Effect{effect}
}

// Errors stay visible until the user closes the wizard; nothing retries.
func fail(s State, f Failed) State {
	s.Phase = PhaseError
	s.Error = &Failure{Kind: f.Kind, Message: f.Message}
	return s
}
