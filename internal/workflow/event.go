package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
)

// Event is anything the user or an effect result feeds into Reduce.
type Event interface {
	Name() string
}

type (
	Open                struct{ Reservation model.Reservation }
	ChooseNoShow        struct{}
	ChooseCancel        struct{}
	ChooseDone          struct{}
	EndAppointment      struct{}
	ChooseFollowUp      struct{}
	ChooseSameDoctor    struct{}
	ChooseAnotherDoctor struct{}
	SlotsLoaded         struct{ Slots []model.Slot }
	HospitalsLoaded     struct{ Hospitals []model.Hospital }
	SelectSlot          struct{ SlotID int }
	SelectHospital      struct{ HospitalID int }
	SelectDoctor        struct{ DoctorID int }
	SetServiceType      struct{ Value string }
	SetNote             struct{ Note string }
	Submit              struct{}
	Succeeded           struct{}
	Failed              struct {
		Kind    errors.Kind
		Message string
	}
	Close struct{}
)

func (Open) Name() string                { return "open" }
func (ChooseNoShow) Name() string        { return "no_show" }
func (ChooseCancel) Name() string        { return "cancel" }
func (ChooseDone) Name() string          { return "done" }
func (EndAppointment) Name() string      { return "end_appointment" }
func (ChooseFollowUp) Name() string      { return "follow_up" }
func (ChooseSameDoctor) Name() string    { return "same_doctor" }
func (ChooseAnotherDoctor) Name() string { return "another_doctor" }
func (SlotsLoaded) Name() string         { return "slots_loaded" }
func (HospitalsLoaded) Name() string     { return "hospitals_loaded" }
func (SelectSlot) Name() string          { return "select_slot" }
func (SelectHospital) Name() string      { return "select_hospital" }
func (SelectDoctor) Name() string        { return "select_doctor" }
func (SetServiceType) Name() string      { return "set_service_type" }
func (SetNote) Name() string             { return "set_note" }
func (Submit) Name() string              { return "submit" }
func (Succeeded) Name() string           { return "succeeded" }
func (Failed) Name() string              { return "failed" }
func (Close) Name() string               { return "close" }

// FailedFrom turns an effect error into a Failed event.
func FailedFrom(err error) Failed {
	if appErr, ok := errors.As(err); ok {
		return Failed{Kind: appErr.Kind, Message: appErr.Message}
	}
	return Failed{Kind: errors.KindInternal, Message: err.Error()}
}

// UserEvent is the wire form of an event posted by the UI. Result events
// (loaded, succeeded, failed) come from the runner only and are rejected.
type UserEvent struct {
	Type        string `json:"type" binding:"required"`
	SlotID      int    `json:"slot_id,omitempty"`
	HospitalID  int    `json:"hospital_id,omitempty"`
	DoctorID    int    `json:"doctor_id,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Decode maps a UserEvent onto its Event.
func (u UserEvent) Decode() (Event, error) {
	switch u.Type {
	case ChooseNoShow{}.Name():
		return ChooseNoShow{}, nil
	case ChooseCancel{}.Name():
		return ChooseCancel{}, nil
	case ChooseDone{}.Name():
		return ChooseDone{}, nil
	case EndAppointment{}.Name():
		return EndAppointment{}, nil
	case ChooseFollowUp{}.Name():
		return ChooseFollowUp{}, nil
	case ChooseSameDoctor{}.Name():
		return ChooseSameDoctor{}, nil
	case ChooseAnotherDoctor{}.Name():
		return ChooseAnotherDoctor{}, nil
	case SelectSlot{}.Name():
		return SelectSlot{SlotID: u.SlotID}, nil
	case SelectHospital{}.Name():
		return SelectHospital{HospitalID: u.HospitalID}, nil
	case SelectDoctor{}.Name():
		return SelectDoctor{DoctorID: u.DoctorID}, nil
	case SetServiceType{}.Name():
		return SetServiceType{Value: u.ServiceType}, nil
	case SetNote{}.Name():
		return SetNote{Note: u.Note}, nil
	case Submit{}.Name():
		return Submit{}, nil
	case Close{}.Name():
		return Close{}, nil
	}
	return nil, errors.BadRequest(fmt.Sprintf("unknown event type %q", u.Type), nil)
}

// ParseUserEvent decodes a JSON event body.
func ParseUserEvent(raw []byte) (Event, error) {
	var u UserEvent
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, errors.BadRequest("malformed event", err)
	}
	return u.Decode()
}
