package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/auth"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
)

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refresh string) (string, error)
}

// bearerSessionTTL bounds how long a bare bearer token keeps pointing at the
// session opened for it.
const bearerSessionTTL = 30 * time.Minute

// Manager builds sessions from bearer tokens and keeps their access token fresh.
type Manager struct {
	store        Store
	refresher    TokenRefresher
	leeway       time.Duration
	userSwitched []func(oldUserID string)
	bearers      *cache.Cache
	logger       *logger.Logger
	now          func() time.Time
}

func NewManager(store Store, refresher TokenRefresher, leeway time.Duration, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		leeway:    leeway,
		bearers:   cache.New(bearerSessionTTL, 2*bearerSessionTTL),
		logger:    log.With("component", "session_manager"),
		now:       time.Now,
	}
}

// OnUserSwitch registers fn to run when a session is re-used by another
// user, with the id of the user who left.
func (m *Manager) OnUserSwitch(fn func(oldUserID string)) {
	m.userSwitched = append(m.userSwitched, fn)
}

func (m *Manager) Store() Store {
	return m.store
}

// Login holds what the web client stores after signing in.
type Login struct {
	Access    string
	Refresh   string
	Language  string
	PatientID string
}

// Start opens a session for a freshly signed-in user. User id and type are
// read from the access token claims.
func (m *Manager) Start(ctx context.Context, login Login) (*Session, error) {
	if login.Access == "" {
		return nil, errors.AuthMissing()
	}
	claims, err := auth.ParseClaims(login.Access)
	if err != nil {
		return nil, errors.Unauthorized(err)
	}

	values := map[string]string{
		model.SessionKeyAccess:     login.Access,
		model.SessionKeyIsLoggedIn: "true",
		model.SessionKeyUserID:     claims.UserID,
		model.SessionKeyType:       claims.UserType,
	}
	if login.Refresh != "" {
		values[model.SessionKeyRefresh] = login.Refresh
	}
	if login.Language != "" {
		values[model.SessionKeyLanguage] = login.Language
	}
	patientID := login.PatientID
	if patientID == "" {
		patientID = claims.PatientID
	}
	if patientID != "" {
		values[model.SessionKeyPatientID] = patientID
	}

	s, err := m.store.Create(ctx, values)
	if err != nil {
		return nil, err
	}
	m.logger.Info("session started", "session_id", s.ID, "user_id", claims.UserID, "type", claims.UserType)
	return s, nil
}

// StartForBearer returns the session opened for a bearer token sent without
// a session id, opening one on first use. Later requests with the same token
// land on the same session until it ends or adopts another token.
func (m *Manager) StartForBearer(ctx context.Context, bearer string) (*Session, error) {
	if bearer == "" {
		return nil, errors.AuthMissing()
	}
	key := bearerKey(bearer)
	if v, ok := m.bearers.Get(key); ok {
		s, err := m.Resolve(ctx, v.(string))
		switch {
		case err == nil && s.Token() == bearer:
			return s, nil
		case err != nil && !errors.IsKind(err, errors.KindNotFound):
			return nil, err
		}
		m.bearers.Delete(key)
	}

	s, err := m.Start(ctx, Login{Access: bearer})
	if err != nil {
		return nil, err
	}
	m.bearers.Set(key, s.ID, cache.DefaultExpiration)
	return s, nil
}

func bearerKey(bearer string) string {
	sum := sha256.Sum256([]byte(bearer))
	return hex.EncodeToString(sum[:])
}

// Adopt replaces the access token of an existing session, e.g. when the web
// client sends a newer bearer token than the one stored. The identity keys
// follow the new token's claims. When the user changes, the old refresh
// token is dropped since it belongs to the previous user.
func (m *Manager) Adopt(ctx context.Context, id, access string) (*Session, error) {
	claims, err := auth.ParseClaims(access)
	if err != nil {
		return nil, errors.Unauthorized(err)
	}
	prev, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	type update struct{ key, value string }
	updates := []update{
		{model.SessionKeyAccess, access},
		{model.SessionKeyIsLoggedIn, "true"},
		{model.SessionKeyUserID, claims.UserID},
		{model.SessionKeyType, claims.UserType},
	}
	switched := prev.UserID() != claims.UserID
	if switched {
		updates = append(updates,
			update{model.SessionKeyPatientID, claims.PatientID},
			update{model.SessionKeyRefresh, ""},
		)
	} else if claims.PatientID != "" {
		updates = append(updates, update{model.SessionKeyPatientID, claims.PatientID})
	}
	for _, u := range updates {
		if err := m.store.Set(ctx, id, u.key, u.value); err != nil {
			return nil, err
		}
	}

	if switched {
		m.logger.Info("session switched user", "session_id", id, "from", prev.UserID(), "to", claims.UserID)
		for _, fn := range m.userSwitched {
			fn(prev.UserID())
		}
	}
	return m.store.Get(ctx, id)
}

// Resolve loads a session, refreshing its access token first when it has
// expired and a refresh token is available.
func (m *Manager) Resolve(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Token() == "" || s.RefreshToken() == "" || m.refresher == nil {
		return s, nil
	}

	claims, err := auth.ParseClaims(s.Token())
	if err == nil && !claims.Expired(m.now(), m.leeway) {
		return s, nil
	}

	access, err := m.refresher.RefreshToken(ctx, s.RefreshToken())
	if err != nil {
		m.logger.Error(err, "token refresh failed", "session_id", id)
		// keep serving the stale token; the backend answers 401 and the UI asks for login
		return s, nil
	}
	if err := m.store.Set(ctx, id, model.SessionKeyAccess, access); err != nil {
		return nil, fmt.Errorf("store refreshed token: %w", err)
	}
	m.logger.Debug("access token refreshed", "session_id", id)
	return m.store.Get(ctx, id)
}

// SetLanguage switches the UI language; subscribers re-render on the change.
func (m *Manager) SetLanguage(ctx context.Context, id, lang string) error {
	if lang != model.LanguageArabic && lang != model.LanguageEnglish {
		return errors.BadRequest("unsupported language "+lang, nil)
	}
	return m.store.Set(ctx, id, model.SessionKeyLanguage, lang)
}

// End logs the user out.
func (m *Manager) End(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
