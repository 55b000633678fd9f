package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalStatuses(t *testing.T) {
	for _, s := range TerminalStatuses {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.True(t, ReservationStatus("cancelled  by   doctor").IsTerminal())
	assert.True(t, ReservationStatus(" Not Attend ").IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.False(t, ReservationStatus("").IsTerminal())
}

func TestReservationDecodesBackendShape(t *testing.T) {
	raw := `{
		"id": 42,
		"patient": {"id": 7, "first_name": "Sara", "last_name": "Ali", "phone": "0911", "email": "s@example.com"},
		"doctor": {"id": 3, "name": "Omar", "last_name": "Salem"},
		"date": "2026-03-01", "start_time": "09:30:00", "end_time": "10:00:00",
		"status": "pending", "confirmation_code": "RX-1", "price": 150
	}`

	var r Reservation
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	assert.Equal(t, 42, r.ID)
	assert.Equal(t, "Sara Ali", r.Patient.FullName())
	assert.Equal(t, Price("150"), r.Price)
	assert.True(t, r.Actionable())

	at, ok := r.ScheduledAt()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), at)
}

func TestPriceAcceptsStringAndNull(t *testing.T) {
	var s struct {
		A Price `json:"a"`
		B Price `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"99.50","b":null}`), &s))
	assert.Equal(t, 99.5, s.A.Float())
	assert.Equal(t, Price(""), s.B)
}

func TestParseServiceType(t *testing.T) {
	tests := map[string]ServiceType{
		"Shelter":           ServiceShelter,
		"Shelter Operation": ServiceShelterOperation,
		"Shelter_Operation": ServiceShelterOperation,
		"operation":         ServiceOperation,
	}
	for in, want := range tests {
		got, ok := ParseServiceType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseServiceType("Surgery")
	assert.False(t, ok)
}

func TestHospitalDoctorLookup(t *testing.T) {
	h := Hospital{ID: 1, Doctors: []HospitalDoctor{{ID: 5, Name: "Huda"}}}
	d, ok := h.Doctor(5)
	assert.True(t, ok)
	assert.Equal(t, "Huda", d.Name)
	_, ok = h.Doctor(6)
	assert.False(t, ok)
}
