package session

import (
	"context"
	"strings"

	"github.com/jwalitptl/roshita-planner/internal/model"
)

// Session is a read-only snapshot of one user's session values. Every key is
// optional; accessors return zero values for missing keys.
type Session struct {
	ID              string
	values          map[string]string
	defaultLanguage string
}

func newSession(id string, values map[string]string, defaultLanguage string) *Session {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Session{ID: id, values: copied, defaultLanguage: defaultLanguage}
}

func (s *Session) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.values[key]
}

// Values returns a copy of the stored values.
func (s *Session) Values() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Session) Token() string        { return strings.TrimSpace(s.Get(model.SessionKeyAccess)) }
func (s *Session) RefreshToken() string { return s.Get(model.SessionKeyRefresh) }
func (s *Session) UserID() string       { return s.Get(model.SessionKeyUserID) }
func (s *Session) PatientID() string    { return s.Get(model.SessionKeyPatientID) }
func (s *Session) UserType() string     { return s.Get(model.SessionKeyType) }

func (s *Session) LoggedIn() bool {
	return s.Get(model.SessionKeyIsLoggedIn) == "true" && s.Token() != ""
}

// Language falls back to the configured default when unset.
func (s *Session) Language() string {
	if lang := s.Get(model.SessionKeyLanguage); lang != "" {
		return lang
	}
	if s == nil {
		return model.LanguageArabic
	}
	return s.defaultLanguage
}

// Change is published whenever a session key is written.
type Change struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Old       string `json:"old"`
	New       string `json:"new"`
}

// Store persists sessions and notifies subscribers of changes. Writes are
// last-write-wins.
type Store interface {
	Create(ctx context.Context, values map[string]string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, id, key, value string) error
	Delete(ctx context.Context, id string) error
	// Subscribe streams changes for id until ctx is done; the channel is then closed.
	Subscribe(ctx context.Context, id string) (<-chan Change, error)
}

type contextKey struct{}

// WithSession stores s on ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached by the middleware, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

func filterKeys(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if model.IsSessionKey(k) {
			out[k] = v
		}
	}
	return out
}
