package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeError   AuditOutcome = "error"
)

// AuditEntry records one mutating call made against the backend.
type AuditEntry struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	Method     string          `json:"method" db:"method"`
	URL        string          `json:"url" db:"url"`
	Payload    json.RawMessage `json:"payload,omitempty" db:"payload"`
	Outcome    AuditOutcome    `json:"outcome" db:"outcome"`
	HTTPStatus int             `json:"http_status" db:"http_status"`
	Message    string          `json:"message,omitempty" db:"message"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	// Token is used by the remote sink only and never persisted.
	Token string `json:"-" db:"-"`
}

const (
	AuditActionCancel     = "cancel_reservation"
	AuditActionComplete   = "complete_reservation"
	AuditActionNoShow     = "mark_not_attend"
	AuditActionFollowUp   = "followup_same_doctor"
	AuditActionSuggestion = "doctor_suggestion"
)

// AuditStats summarizes the local audit mirror.
type AuditStats struct {
	Total         int64            `json:"total"`
	ActionCounts  map[string]int64 `json:"action_counts"`
	OutcomeCounts map[string]int64 `json:"outcome_counts"`
}
