package model

import "time"

// Slot is an unbooked availability window published by a doctor.
type Slot struct {
	ID            int    `json:"id"`
	ScheduledDate string `json:"scheduled_date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Price         Price  `json:"price"`
}

func (s Slot) StartsAt() (time.Time, bool) {
	return parseDateTime(s.ScheduledDate, s.StartTime)
}

type HospitalDoctor struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Appointments []Slot `json:"appointments"`
}

// Hospital carries its doctors inline; the suggestion form cascades from it.
type Hospital struct {
	ID      int              `json:"id"`
	Name    string           `json:"name"`
	Doctors []HospitalDoctor `json:"doctors"`
}

func (h Hospital) Doctor(id int) (HospitalDoctor, bool) {
	for _, d := range h.Doctors {
		if d.ID == id {
			return d, true
		}
	}
	return HospitalDoctor{}, false
}
