package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type ReservationStatus string

const (
	StatusPending            ReservationStatus = "pending"
	StatusConfirmed          ReservationStatus = "Confirmed"
	StatusCompleted          ReservationStatus = "Completed"
	StatusCancelled          ReservationStatus = "Cancelled"
	StatusCancelledByPatient ReservationStatus = "Cancelled By Patient"
	StatusCancelledByDoctor  ReservationStatus = "Cancelled By Doctor"
	StatusRejected           ReservationStatus = "Rejected"
	StatusNotAttend          ReservationStatus = "Not Attend"
)

// TerminalStatuses is the one place that decides which reservations are closed.
var TerminalStatuses = []ReservationStatus{
	StatusCompleted,
	StatusCancelled,
	StatusCancelledByPatient,
	StatusCancelledByDoctor,
	StatusRejected,
	StatusNotAttend,
}

var terminalIndex = func() map[string]struct{} {
	idx := make(map[string]struct{}, len(TerminalStatuses))
	for _, s := range TerminalStatuses {
		idx[normalizeStatus(string(s))] = struct{}{}
	}
	return idx
}()

func normalizeStatus(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// IsTerminal reports whether no lifecycle action is allowed any more.
func (s ReservationStatus) IsTerminal() bool {
	_, ok := terminalIndex[normalizeStatus(string(s))]
	return ok
}

type Patient struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type DoctorRef struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"last_name"`
}

// Reservation is one booked slot as returned by the reservation search.
type Reservation struct {
	ID               int               `json:"id"`
	Patient          Patient           `json:"patient"`
	Doctor           DoctorRef         `json:"doctor"`
	Date             string            `json:"date"`
	StartTime        string            `json:"start_time"`
	EndTime          string            `json:"end_time"`
	Status           ReservationStatus `json:"status"`
	ConfirmationCode string            `json:"confirmation_code"`
	Price            Price             `json:"price"`
}

// Actionable reports whether the no-show, done and cancel actions may be offered.
func (r Reservation) Actionable() bool {
	return !r.Status.IsTerminal()
}

// ScheduledAt parses date and start time. ok is false when the backend sent
// something we cannot read.
func (r Reservation) ScheduledAt() (time.Time, bool) {
	return parseDateTime(r.Date, r.StartTime)
}

var timeLayouts = []string{"15:04:05", "15:04"}

func parseDateTime(date, clock string) (time.Time, bool) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, false
	}
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return day, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return day.Add(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), true
		}
	}
	return day, true
}

// Price accepts both `"150.00"` and `150` from the backend.
type Price string

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Price(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Price(n.String())
	return nil
}

func (p Price) Float() float64 {
	f, _ := strconv.ParseFloat(string(p), 64)
	return f
}
