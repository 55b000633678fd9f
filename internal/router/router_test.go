package router_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appointmentHandler "github.com/jwalitptl/roshita-planner/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/roshita-planner/internal/handler/audit"
	catalogHandler "github.com/jwalitptl/roshita-planner/internal/handler/catalog"
	"github.com/jwalitptl/roshita-planner/internal/handler/health"
	plannerHandler "github.com/jwalitptl/roshita-planner/internal/handler/planner"
	promHandler "github.com/jwalitptl/roshita-planner/internal/handler/prometheus"
	sessionHandler "github.com/jwalitptl/roshita-planner/internal/handler/session"
	wizardHandler "github.com/jwalitptl/roshita-planner/internal/handler/wizard"
	"github.com/jwalitptl/roshita-planner/internal/middleware"
	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/internal/router"
	"github.com/jwalitptl/roshita-planner/internal/service/appointment"
	"github.com/jwalitptl/roshita-planner/internal/service/audit"
	"github.com/jwalitptl/roshita-planner/internal/service/planner"
	"github.com/jwalitptl/roshita-planner/internal/session"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
	"github.com/jwalitptl/roshita-planner/pkg/roshita"
)

// backend fakes the Roshita REST API.
type backend struct {
	mu           sync.Mutex
	reservations []model.Reservation
	followUps    []json.RawMessage
	suggestions  []json.RawMessage
	actionLogs   []map[string]interface{}
	searches     int
	failSearch   bool
}

func newBackend() *backend {
	return &backend{reservations: []model.Reservation{
		{
			ID:               101,
			Patient:          model.Patient{ID: 7, FirstName: "Salem", LastName: "Ali"},
			Doctor:           model.DoctorRef{ID: 12, Name: "Huda"},
			Date:             "2026-11-02",
			StartTime:        "10:00:00",
			EndTime:          "10:30:00",
			Status:           model.StatusConfirmed,
			ConfirmationCode: "RX-101",
			Price:            "150.00",
		},
		{
			ID:               102,
			Patient:          model.Patient{ID: 8, FirstName: "Mona", LastName: "Saad"},
			Doctor:           model.DoctorRef{ID: 12, Name: "Huda"},
			Date:             "2026-11-01",
			StartTime:        "09:00:00",
			Status:           model.StatusPending,
			ConfirmationCode: "RX-102",
			Price:            "90",
		},
		{
			ID:      103,
			Patient: model.Patient{ID: 9, FirstName: "Ali", LastName: "Omar"},
			Doctor:  model.DoctorRef{ID: 14, Name: "Khaled"},
			Date:    "2026-10-01",
			Status:  model.StatusCompleted,
		},
	}}
}

func (b *backend) setStatus(id int, status model.ReservationStatus) {
	for i := range b.reservations {
		if b.reservations[i].ID == id {
			b.reservations[i].Status = status
		}
	}
}

func (b *backend) searchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.searches
}

func (b *backend) engine() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.FullPath() != "/token/refresh/" && !strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "not authenticated"})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		c.Next()
	})

	r.GET("/appointment-reservations/search/", func(c *gin.Context) {
		b.searches++
		if b.failSearch {
			c.JSON(http.StatusBadGateway, gin.H{"detail": "upstream down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(b.reservations), "next": nil, "previous": nil, "results": b.reservations})
	})
	r.DELETE("/appointment-reservations/:id/", func(c *gin.Context) {
		if c.Param("id") == "101" {
			b.setStatus(101, model.StatusCancelledByDoctor)
		}
		c.Status(http.StatusNoContent)
	})
	r.POST("/complete-appointment-reservations/", func(c *gin.Context) {
		var body struct {
			ID int `json:"appointment_reservation_id"`
		}
		_ = c.ShouldBindJSON(&body)
		b.setStatus(body.ID, model.StatusCompleted)
		c.JSON(http.StatusOK, gin.H{"detail": "ok"})
	})
	r.POST("/mark-not-attend/:id/", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "appointment has not started"})
	})
	r.POST("/appointment-reservations/followup-appointment/", func(c *gin.Context) {
		raw, _ := c.GetRawData()
		b.followUps = append(b.followUps, raw)
		c.JSON(http.StatusCreated, gin.H{"id": 900})
	})
	r.POST("/doctor-suggestions/", func(c *gin.Context) {
		raw, _ := c.GetRawData()
		b.suggestions = append(b.suggestions, raw)
		c.JSON(http.StatusCreated, gin.H{"id": 901})
	})
	r.GET("/doctors/:id/slots/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"results": []gin.H{
			{"id": 55, "scheduled_date": "2026-11-10", "start_time": "09:00:00", "end_time": "09:30:00", "price": "150.00"},
		}})
	})
	r.GET("/hospitals/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": 1, "next": nil, "results": []gin.H{
			{"id": 3, "name": "Tripoli Medical", "doctors": []gin.H{{"id": 21, "name": "Omar", "appointments": []gin.H{}}}},
		}})
	})
	r.POST("/user-action-logs/", func(c *gin.Context) {
		var entry map[string]interface{}
		_ = c.ShouldBindJSON(&entry)
		b.actionLogs = append(b.actionLogs, entry)
		c.JSON(http.StatusCreated, gin.H{"id": 1})
	})
	return r
}

type stack struct {
	backend *backend
	engine  *gin.Engine
	audit   *audit.AuditLogger
}

func newStack(t *testing.T) *stack {
	t.Helper()
	return newStackWithPageSize(t, 0)
}

func newStackWithPageSize(t *testing.T, pageSize int) *stack {
	t.Helper()
	be := newBackend()
	upstream := httptest.NewServer(be.engine())
	t.Cleanup(upstream.Close)

	m := metrics.NewNop()
	store := session.NewMemoryStore(time.Hour, time.Minute, model.LanguageArabic)
	client := roshita.NewClient(roshita.Config{BaseURL: upstream.URL, Timeout: 5 * time.Second}, m, nil)
	manager := session.NewManager(store, client, 30*time.Second, nil)

	auditSvc := audit.NewService(nil, m, nil, audit.NewRemoteSink(client))
	auditLogger := audit.NewAuditLogger(auditSvc)
	lister := appointment.NewLister(client, time.Minute, 10, m, nil).WithPageSize(pageSize)
	manager.OnUserSwitch(lister.Invalidate)
	service := appointment.NewService(client, lister, auditLogger, nil)
	runner := planner.NewRunner(planner.RunnerConfig{}, lister, service, client, nil, m, nil)
	board := planner.NewBoard(lister, store, model.LanguageArabic, nil)

	r := router.NewRouter(middleware.NewSessionMiddleware(manager), router.Handlers{
		Health:      health.NewHandler(),
		Session:     sessionHandler.NewHandler(manager),
		Appointment: appointmentHandler.NewHandler(service),
		Wizard:      wizardHandler.NewHandler(runner, model.LanguageArabic),
		Catalog:     catalogHandler.NewHandler(runner),
		Planner:     plannerHandler.NewHandler(board),
		Audit:       auditHandler.NewHandler(auditSvc),
		Metrics:     promHandler.New(prom.NewRegistry()),
	}, router.RouterConfig{
		Mode:           gin.TestMode,
		RequestTimeout: 5 * time.Second,
		CORSConfig:     middleware.DefaultCORSConfig(),
		MetricsPath:    "/metrics",
	})
	r.Setup()

	return &stack{backend: be, engine: r.Engine(), audit: auditLogger}
}

func accessToken(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"type":    "doctor",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("unknown"))
	require.NoError(t, err)
	return s
}

// apiResponse mirrors the envelope with the data left raw.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *stack) makeRequest(t *testing.T, method, path string, body interface{}, sessionID string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(middleware.HeaderSessionID, sessionID)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func (s *stack) login(t *testing.T, language string) string {
	t.Helper()
	w, resp := s.makeRequest(t, http.MethodPost, "/sessions", map[string]string{
		"access":   accessToken(t, "42"),
		"refresh":  "refresh-token",
		"language": language,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, resp.Success)

	var view struct {
		ID       string `json:"session_id"`
		UserID   string `json:"user_id"`
		Language string `json:"language"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, "42", view.UserID)
	assert.Equal(t, view.ID, w.Header().Get(middleware.HeaderSessionID))
	return view.ID
}

type wizardView struct {
	ID    string `json:"id"`
	State struct {
		Phase       string       `json:"phase"`
		Slots       []model.Slot `json:"slots"`
		SlotsLoaded bool         `json:"slots_loaded"`
		Pending     string       `json:"pending"`
		Error       *struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"state"`
	Actions []string `json:"actions"`
	Alert   string   `json:"alert_text"`
	Failure string   `json:"error_text"`
	Success string   `json:"success_text"`
}

func (s *stack) event(t *testing.T, sessionID, wizardID string, ev map[string]interface{}) wizardView {
	t.Helper()
	w, resp := s.makeRequest(t, http.MethodPost, "/wizards/"+wizardID+"/events", ev, sessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view wizardView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	return view
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	s := newStack(t)

	w, _ := s.makeRequest(t, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))

	w, _ = s.makeRequest(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	s := newStack(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"access":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"validation"`)
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	s := newStack(t)

	w, resp := s.makeRequest(t, http.MethodGet, "/appointments", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "auth_missing", resp.Error.Kind)
	assert.Zero(t, s.backend.searchCount())
}

func TestSessionLifecycle(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "")

	w, resp := s.makeRequest(t, http.MethodGet, "/sessions/current", nil, id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(resp.Data), `"language":"ar"`)
	assert.NotContains(t, string(resp.Data), "refresh-token")

	w, resp = s.makeRequest(t, http.MethodPut, "/sessions/current/language", map[string]string{"language": "en"}, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(resp.Data), `"language":"en"`)

	w, _ = s.makeRequest(t, http.MethodPut, "/sessions/current/language", map[string]string{"language": "fr"}, id)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.makeRequest(t, http.MethodDelete, "/sessions/current", nil, id)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.makeRequest(t, http.MethodGet, "/sessions/current", nil, id)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListAppointmentsActionableSoonestFirst(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")

	w, resp := s.makeRequest(t, http.MethodGet, "/appointments?page=1&page_size=5", nil, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page struct {
		Data       []model.Reservation `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Data, 2)
	assert.Equal(t, 102, page.Data[0].ID)
	assert.Equal(t, 101, page.Data[1].ID)
	assert.Equal(t, 2, page.Pagination.Total)

	w, _ = s.makeRequest(t, http.MethodGet, "/appointments?scope=doctor", nil, id)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAppointmentsUsesConfiguredPageSize(t *testing.T) {
	s := newStackWithPageSize(t, 1)
	id := s.login(t, "en")

	type listPage struct {
		Data       []model.Reservation `json:"data"`
		Pagination httputil.Pagination `json:"pagination"`
	}

	w, resp := s.makeRequest(t, http.MethodGet, "/appointments", nil, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page listPage
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.Pagination.PageSize)
	assert.Equal(t, 2, page.Pagination.TotalPage)

	w, resp = s.makeRequest(t, http.MethodGet, "/appointments?page_size=100000", nil, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page = listPage{}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Len(t, page.Data, 2)
	assert.Equal(t, appointment.MaxPageSize, page.Pagination.PageSize)

	w, _ = s.makeRequest(t, http.MethodGet, "/appointments?page=4611686018427387904&page_size=4", nil, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUserSwitchDropsPreviousUsersList(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")
	first := accessToken(t, "42")
	second := accessToken(t, "43")

	list := func(bearer string) {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
		req.Header.Set(middleware.HeaderSessionID, id)
		req.Header.Set("Authorization", "Bearer "+bearer)
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	list(first)
	list(first)
	assert.Equal(t, 1, s.backend.searchCount())

	list(second)
	assert.Equal(t, 2, s.backend.searchCount())

	// back to user 42: the list cached before the switch is gone
	list(first)
	assert.Equal(t, 3, s.backend.searchCount())
}

func TestCancelAppointmentIsAudited(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")

	w, resp := s.makeRequest(t, http.MethodDelete, "/appointments/101", nil, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(resp.Data), model.AuditActionCancel)

	s.audit.Wait()
	s.backend.mu.Lock()
	require.Len(t, s.backend.actionLogs, 1)
	assert.Equal(t, model.AuditActionCancel, s.backend.actionLogs[0]["action"])
	assert.Equal(t, "success", s.backend.actionLogs[0]["outcome"])
	s.backend.mu.Unlock()

	// the cached list was dropped, so the cancelled row is gone
	_, resp = s.makeRequest(t, http.MethodGet, "/appointments", nil, id)
	assert.NotContains(t, string(resp.Data), `"id":101`)
}

func TestBackendRejectionKeepsMessage(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")

	w, resp := s.makeRequest(t, http.MethodPost, "/appointments/101/no-show", nil, id)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "http", resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "appointment has not started")

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `http_errors_total{kind="http",route="/api/v1/appointments/:id/no-show"} 1`)

	s.audit.Wait()
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	require.Len(t, s.backend.actionLogs, 1)
	assert.Equal(t, "error", s.backend.actionLogs[0]["outcome"])
}

func TestFollowUpSameDoctorWizard(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")

	w, resp := s.makeRequest(t, http.MethodPost, "/wizards", map[string]int{"reservation_id": 101}, id)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view wizardView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, "action_menu", view.State.Phase)
	assert.Equal(t, []string{"no_show", "complete", "cancel"}, view.Actions)

	view = s.event(t, id, view.ID, map[string]interface{}{"type": "done"})
	assert.Equal(t, "confirm_completion", view.State.Phase)
	view = s.event(t, id, view.ID, map[string]interface{}{"type": "follow_up"})
	assert.Equal(t, "follow_up_kind", view.State.Phase)
	view = s.event(t, id, view.ID, map[string]interface{}{"type": "same_doctor"})
	assert.Equal(t, "slot_picker", view.State.Phase)
	require.True(t, view.State.SlotsLoaded)
	require.Len(t, view.State.Slots, 1)

	view = s.event(t, id, view.ID, map[string]interface{}{"type": "submit"})
	assert.Equal(t, "slot_picker", view.State.Phase)
	assert.NotEmpty(t, view.Alert)

	s.event(t, id, view.ID, map[string]interface{}{"type": "select_slot", "slot_id": 55})
	view = s.event(t, id, view.ID, map[string]interface{}{"type": "submit"})
	assert.Equal(t, "success", view.State.Phase)
	assert.Equal(t, "follow_up", view.State.Pending)
	assert.NotEmpty(t, view.Success)

	s.backend.mu.Lock()
	require.Len(t, s.backend.followUps, 1)
	assert.JSONEq(t, `{
		"confirmation_code": "RX-101",
		"reservation_date": "2026-11-10",
		"start_time": "09:00:00",
		"end_time": "09:30:00"
	}`, string(s.backend.followUps[0]))
	s.backend.mu.Unlock()

	w, _ = s.makeRequest(t, http.MethodDelete, "/wizards/"+view.ID, nil, id)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.makeRequest(t, http.MethodGet, "/wizards/"+view.ID, nil, id)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSuggestionWizard(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "ar")

	_, resp := s.makeRequest(t, http.MethodPost, "/wizards", map[string]int{"reservation_id": 101}, id)
	var view wizardView
	require.NoError(t, json.Unmarshal(resp.Data, &view))

	for _, ev := range []map[string]interface{}{
		{"type": "done"},
		{"type": "follow_up"},
		{"type": "another_doctor"},
		{"type": "select_hospital", "hospital_id": 3},
		{"type": "select_doctor", "doctor_id": 21},
		{"type": "set_service_type", "service_type": "Shelter Operation"},
		{"type": "set_note", "note": "needs a scan"},
	} {
		view = s.event(t, id, view.ID, ev)
	}
	assert.Equal(t, "suggestion_form", view.State.Phase)

	view = s.event(t, id, view.ID, map[string]interface{}{"type": "submit"})
	assert.Equal(t, "success", view.State.Phase)

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	require.Len(t, s.backend.suggestions, 1)
	assert.JSONEq(t, `{
		"patient": 7,
		"appointment_reservation": 101,
		"medical_organization_ids": [3],
		"service_type": "Shelter_Operation",
		"note": "needs a scan"
	}`, string(s.backend.suggestions[0]))
}

func TestWizardFailureStaysVisible(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")

	_, resp := s.makeRequest(t, http.MethodPost, "/wizards", map[string]int{"reservation_id": 101}, id)
	var view wizardView
	require.NoError(t, json.Unmarshal(resp.Data, &view))

	view = s.event(t, id, view.ID, map[string]interface{}{"type": "no_show"})
	assert.Equal(t, "error", view.State.Phase)
	require.NotNil(t, view.State.Error)
	assert.Contains(t, view.State.Error.Message, "appointment has not started")
	assert.NotEmpty(t, view.Failure)

	// user events do not leave the error phase
	view = s.event(t, id, view.ID, map[string]interface{}{"type": "cancel"})
	assert.Equal(t, "error", view.State.Phase)

	view = s.event(t, id, view.ID, map[string]interface{}{"type": "close"})
	assert.Equal(t, "idle", view.State.Phase)
}

func TestWizardRejectsTerminalAndUnknown(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")

	w, resp := s.makeRequest(t, http.MethodPost, "/wizards", map[string]int{"reservation_id": 103}, id)
	require.Equal(t, http.StatusCreated, w.Code)
	var view wizardView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, "idle", view.State.Phase)
	assert.Empty(t, view.Actions)
	assert.NotEmpty(t, view.Alert)

	w, _ = s.makeRequest(t, http.MethodPost, "/wizards", map[string]int{"reservation_id": 999}, id)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.makeRequest(t, http.MethodPost, "/wizards/"+view.ID+"/events", map[string]string{"type": "succeeded"}, id)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	other := s.login(t, "en")
	w, _ = s.makeRequest(t, http.MethodGet, "/wizards/"+view.ID, nil, other)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")

	w, resp := s.makeRequest(t, http.MethodGet, "/doctors/12/slots", nil, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(resp.Data), `"scheduled_date":"2026-11-10"`)

	w, resp = s.makeRequest(t, http.MethodGet, "/hospitals", nil, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(resp.Data), "Tripoli Medical")
}

func TestBoardFallsBackToBanner(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")
	s.backend.mu.Lock()
	s.backend.failSearch = true
	s.backend.mu.Unlock()

	w, resp := s.makeRequest(t, http.MethodGet, "/planner/board", nil, id)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view planner.View
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Empty(t, view.Rows)
	assert.NotEmpty(t, view.Banner)
	assert.Equal(t, "en", view.Language)
}

func TestAuditQueriesNeedMirror(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "en")

	w, resp := s.makeRequest(t, http.MethodGet, "/audit/entries", nil, id)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NotNil(t, resp.Error)
}

func TestBoardStreamRerendersOnLanguageChange(t *testing.T) {
	s := newStack(t)
	id := s.login(t, "ar")

	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/planner/stream?session_id="+id, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	events := make(chan planner.View, 4)
	go func() {
		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 64<<10), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var v planner.View
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &v) == nil {
				events <- v
			}
		}
		close(events)
	}()

	next := func() planner.View {
		select {
		case v, ok := <-events:
			require.True(t, ok, "stream closed")
			return v
		case <-time.After(5 * time.Second):
			t.Fatal("no board event")
		}
		return planner.View{}
	}

	first := next()
	assert.Equal(t, "ar", first.Language)
	assert.True(t, first.RTL)
	require.Len(t, first.Rows, 2)
	searches := s.backend.searchCount()

	w, _ := s.makeRequest(t, http.MethodPut, "/sessions/current/language", map[string]string{"language": "en"}, id)
	require.Equal(t, http.StatusOK, w.Code)

	second := next()
	assert.Equal(t, "en", second.Language)
	assert.False(t, second.RTL)
	assert.Equal(t, first.Rows[0].ID, second.Rows[0].ID)
	assert.Equal(t, searches, s.backend.searchCount())
}
