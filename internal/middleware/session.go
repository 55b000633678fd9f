package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/roshita-planner/internal/session"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

const (
	HeaderSessionID  = "X-Session-ID"
	QuerySessionID   = "session_id"
	ContextSessionID = "session_id"
)

type SessionMiddleware struct {
	manager *session.Manager
}

func NewSessionMiddleware(manager *session.Manager) *SessionMiddleware {
	return &SessionMiddleware{manager: manager}
}

// Authenticate resolves the caller's session from X-Session-ID (or the
// session_id query parameter, for EventSource clients). A Bearer token
// replaces the stored access token; a Bearer token without a session id
// gets the session opened for that token, returned in X-Session-ID.
func (m *SessionMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.GetHeader(HeaderSessionID)
		if id == "" {
			id = c.Query(QuerySessionID)
		}
		bearer := bearerToken(c.GetHeader("Authorization"))

		var (
			s   *session.Session
			err error
		)
		switch {
		case id == "" && bearer == "":
			err = errors.AuthMissing()
		case id == "":
			s, err = m.manager.StartForBearer(ctx, bearer)
		default:
			s, err = m.manager.Resolve(ctx, id)
			if err == nil && bearer != "" && bearer != s.Token() {
				s, err = m.manager.Adopt(ctx, id, bearer)
			}
		}
		if err != nil {
			if errors.IsKind(err, errors.KindNotFound) {
				err = errors.Unauthorized(err)
			}
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextSessionID, s.ID)
		c.Header(HeaderSessionID, s.ID)
		c.Request = c.Request.WithContext(session.WithSession(ctx, s))
		c.Next()
	}
}

// CurrentSession returns the session attached by Authenticate.
func CurrentSession(c *gin.Context) (*session.Session, bool) {
	return session.FromContext(c.Request.Context())
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
