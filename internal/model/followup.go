package model

import "strings"

type ServiceType string

const (
	ServiceShelter          ServiceType = "Shelter"
	ServiceShelterOperation ServiceType = "Shelter_Operation"
	ServiceOperation        ServiceType = "Operation"
)

var ServiceTypes = []ServiceType{ServiceShelter, ServiceShelterOperation, ServiceOperation}

// ParseServiceType accepts wire values and the "Shelter Operation" display form.
func ParseServiceType(s string) (ServiceType, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " "))
	switch key {
	case "shelter":
		return ServiceShelter, true
	case "shelter operation":
		return ServiceShelterOperation, true
	case "operation":
		return ServiceOperation, true
	}
	return "", false
}

// FollowUpRequest books a new slot with the same doctor. The field set is
// exactly what the backend expects; do not add fields.
type FollowUpRequest struct {
	ConfirmationCode string `json:"confirmation_code"`
	ReservationDate  string `json:"reservation_date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
}

// DoctorSuggestion refers a patient to another hospital or doctor.
type DoctorSuggestion struct {
	Patient                int         `json:"patient"`
	AppointmentReservation int         `json:"appointment_reservation"`
	MedicalOrganizationIDs []int       `json:"medical_organization_ids"`
	ServiceType            ServiceType `json:"service_type"`
	Note                   string      `json:"note"`
}
