package roshita

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
)

// Page is the backend's paginated envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func (p Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

// SearchReservations fetches one backend page. doctorID 0 means every doctor
// of the caller's organization.
func (c *Client) SearchReservations(ctx context.Context, token string, page, doctorID int) (*Page[model.Reservation], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if doctorID > 0 {
		q.Set("doctor_id", strconv.Itoa(doctorID))
	}

	var out Page[model.Reservation]
	if _, err := c.do(ctx, request{
		op:     "search_reservations",
		method: http.MethodGet,
		path:   "/appointment-reservations/search/",
		query:  q,
		token:  token,
		out:    &out,
	}); err != nil {
		return nil, fmt.Errorf("search reservations: %w", err)
	}
	return &out, nil
}

func (c *Client) CancelReservation(ctx context.Context, token string, id int) (*Call, error) {
	call, err := c.do(ctx, request{
		op:     "cancel_reservation",
		method: http.MethodDelete,
		path:   fmt.Sprintf("/appointment-reservations/%d/", id),
		token:  token,
	})
	if err != nil {
		return call, fmt.Errorf("cancel reservation %d: %w", id, err)
	}
	return call, nil
}

func (c *Client) CompleteReservation(ctx context.Context, token string, id int) (*Call, error) {
	call, err := c.do(ctx, request{
		op:     "complete_reservation",
		method: http.MethodPost,
		path:   "/complete-appointment-reservations/",
		token:  token,
		body:   map[string]int{"appointment_reservation_id": id},
	})
	if err != nil {
		return call, fmt.Errorf("complete reservation %d: %w", id, err)
	}
	return call, nil
}

func (c *Client) MarkNotAttend(ctx context.Context, token string, id int) (*Call, error) {
	call, err := c.do(ctx, request{
		op:     "mark_not_attend",
		method: http.MethodPost,
		path:   fmt.Sprintf("/mark-not-attend/%d/", id),
		token:  token,
		body:   map[string]int{"appointmentId": id},
	})
	if err != nil {
		return call, fmt.Errorf("mark not attend %d: %w", id, err)
	}
	return call, nil
}

func (c *Client) FollowUpSameDoctor(ctx context.Context, token string, req model.FollowUpRequest) (*Call, error) {
	call, err := c.do(ctx, request{
		op:     "followup_same_doctor",
		method: http.MethodPost,
		path:   "/appointment-reservations/followup-appointment/",
		token:  token,
		body:   req,
	})
	if err != nil {
		return call, fmt.Errorf("follow-up appointment: %w", err)
	}
	return call, nil
}

func (c *Client) CreateDoctorSuggestion(ctx context.Context, token string, s model.DoctorSuggestion) (*Call, error) {
	call, err := c.do(ctx, request{
		op:     "create_doctor_suggestion",
		method: http.MethodPost,
		path:   "/doctor-suggestions/",
		token:  token,
		body:   s,
	})
	if err != nil {
		return call, fmt.Errorf("create doctor suggestion: %w", err)
	}
	return call, nil
}

func (c *Client) DoctorSlots(ctx context.Context, token string, doctorID int) ([]model.Slot, error) {
	var raw json.RawMessage
	if _, err := c.do(ctx, request{
		op:     "doctor_slots",
		method: http.MethodGet,
		path:   fmt.Sprintf("/doctors/%d/slots/", doctorID),
		token:  token,
		out:    &raw,
	}); err != nil {
		return nil, fmt.Errorf("doctor %d slots: %w", doctorID, err)
	}

	var slots []model.Slot
	if _, err := decodeList(raw, &slots, "results", "appointments", "slots"); err != nil {
		return nil, fmt.Errorf("doctor %d slots: %w", doctorID, err)
	}
	return slots, nil
}

// Hospitals walks every page of the hospital listing. A bare JSON array is
// accepted as a single page.
func (c *Client) Hospitals(ctx context.Context, token string, maxPages int) ([]model.Hospital, error) {
	if maxPages <= 0 {
		maxPages = 50
	}
	var all []model.Hospital
	for page := 1; page <= maxPages; page++ {
		var raw json.RawMessage
		if _, err := c.do(ctx, request{
			op:     "hospitals",
			method: http.MethodGet,
			path:   "/hospitals/",
			query:  url.Values{"page": {strconv.Itoa(page)}},
			token:  token,
			out:    &raw,
		}); err != nil {
			return nil, fmt.Errorf("list hospitals: %w", err)
		}

		var batch []model.Hospital
		hasNext, err := decodeList(raw, &batch, "results")
		if err != nil {
			return nil, fmt.Errorf("list hospitals: %w", err)
		}
		all = append(all, batch...)
		if !hasNext {
			break
		}
	}
	return all, nil
}

type actionLog struct {
	Action     string          `json:"action"`
	Method     string          `json:"method"`
	URL        string          `json:"url"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Outcome    string          `json:"outcome"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message,omitempty"`
}

// LogAction posts one audit record to the backend's logging endpoint.
func (c *Client) LogAction(ctx context.Context, token string, entry *model.AuditEntry) error {
	_, err := c.do(ctx, request{
		op:     "log_action",
		method: http.MethodPost,
		path:   c.logActionPath,
		token:  token,
		body: actionLog{
			Action:     entry.Action,
			Method:     entry.Method,
			URL:        entry.URL,
			Payload:    entry.Payload,
			Outcome:    string(entry.Outcome),
			StatusCode: entry.HTTPStatus,
			Message:    entry.Message,
		},
	})
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (string, error) {
	if refresh == "" {
		return "", errors.AuthMissing()
	}
	var out struct {
		Access string `json:"access"`
	}
	if _, err := c.do(ctx, request{
		op:     "refresh_token",
		method: http.MethodPost,
		path:   "/token/refresh/",
		noAuth: true,
		body:   map[string]string{"refresh": refresh},
		out:    &out,
	}); err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if out.Access == "" {
		return "", errors.Decode(fmt.Errorf("refresh response without access token"))
	}
	return out.Access, nil
}

// decodeList accepts a bare array or an object holding the array under one
// of keys. hasNext reports a paginated envelope with a next page.
func decodeList(raw json.RawMessage, dst interface{}, keys ...string) (bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, dst); err != nil {
			return false, errors.Decode(err)
		}
		return false, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return false, errors.Decode(err)
	}
	for _, key := range keys {
		if list, ok := envelope[key]; ok {
			if err := json.Unmarshal(list, dst); err != nil {
				return false, errors.Decode(err)
			}
			var next *string
			if n, ok := envelope["next"]; ok {
				_ = json.Unmarshal(n, &next)
			}
			return next != nil && *next != "", nil
		}
	}
	return false, errors.Decode(fmt.Errorf("no list under %v", keys))
}
