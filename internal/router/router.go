package router

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	plannerhandler "github.com/jwalitptl/roshita-planner/internal/handler/planner"
	"github.com/jwalitptl/roshita-planner/internal/handler/prometheus"
	"github.com/jwalitptl/roshita-planner/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// PublicHandler also mounts routes that need no session.
type PublicHandler interface {
	Handler
	RegisterPublicRoutes(*gin.RouterGroup)
}

// Handlers are the route groups of the API. Nil handlers are not mounted.
type Handlers struct {
	Health      Handler
	Session     PublicHandler
	Appointment Handler
	Wizard      Handler
	Catalog     Handler
	Planner     Handler
	Audit       Handler
	Metrics     *prometheus.Handler
}

type RouterConfig struct {
	Mode           string
	RequestTimeout time.Duration
	RateLimit      rate.Limit
	RateBurst      int
	CORSConfig     middleware.CORSConfig
	MetricsPath    string
}

type Router struct {
	engine   *gin.Engine
	sessions *middleware.SessionMiddleware
	handlers Handlers
	config   RouterConfig
}

func NewRouter(sessions *middleware.SessionMiddleware, handlers Handlers, config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		sessions: sessions,
		handlers: handlers,
		config:   config,
	}

	// Add core middlewares. Metrics sit outside the error handler so they
	// see the rendered error kind.
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
	)
	if handlers.Metrics != nil {
		engine.Use(handlers.Metrics.Middleware(plannerhandler.StreamPath))
	}
	engine.Use(
		middleware.ErrorHandler(),
		middleware.Validation(middleware.DefaultValidationConfig()),
	)
	engine.Use(middleware.Timeout(middleware.TimeoutConfig{
		Duration: config.RequestTimeout,
		Skip:     isStream,
	}))

	engine.Use(
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.Cache(middleware.DefaultCacheConfig()),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func isStream(c *gin.Context) bool {
	return strings.HasSuffix(c.FullPath(), plannerhandler.StreamPath)
}

func (r *Router) Setup() {
	if r.handlers.Metrics != nil {
		path := r.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, r.handlers.Metrics.Handler())
	}

	api := r.engine.Group("/api/v1")

	// Add version header
	api.Use(func(c *gin.Context) {
		c.Header(middleware.HeaderAPIVersion, "1.0")
		c.Next()
	})

	// Public routes
	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}
	if r.handlers.Session != nil {
		r.handlers.Session.RegisterPublicRoutes(api)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(r.sessions.Authenticate())
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	for _, h := range []Handler{
		r.handlers.Session,
		r.handlers.Appointment,
		r.handlers.Wizard,
		r.handlers.Catalog,
		r.handlers.Planner,
		r.handlers.Audit,
	} {
		if h != nil {
			h.RegisterRoutes(rg)
		}
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Use(middleware ...gin.HandlerFunc) {
	r.engine.Use(middleware...)
}
