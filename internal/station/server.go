// Package station exposes the check-in workflow over HTTP for the operator
// frontend.
package station

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hackops/internal/apiclient"
	"hackops/internal/audit"
	"hackops/internal/auth"
	"hackops/internal/checkin"
	"hackops/internal/httpmiddleware"
	"hackops/internal/identify"
	"hackops/internal/logging"
	"hackops/internal/metrics"
	"hackops/internal/nfc"
	"hackops/internal/points"
)

// Directory is the read side of the remote API.
type Directory interface {
	Users(ctx context.Context) ([]apiclient.User, error)
	User(ctx context.Context, id int) (*apiclient.UserDetail, error)
	Events(ctx context.Context) ([]apiclient.Event, error)
}

// Settings holds the persisted server URL.
type Settings interface {
	ServerURL(ctx context.Context) (string, error)
	SetServerURL(ctx context.Context, raw string) error
}

// AuditLog lists stored audit records.
type AuditLog interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Record, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps wires the station to its collaborators. Audit, Simulator, Metrics and
// the limiters are optional. Limiter runs after operator auth so it can key by
// operator; TokenLimiter guards the unauthenticated token endpoints.
type Deps struct {
	Log          *zap.Logger
	Issuer       *auth.Issuer
	OperatorKey  string
	Settings     Settings
	Directory    Directory
	Methods      []identify.Method
	Sessions     *checkin.Registry
	Points       *points.Service
	Audit        AuditLog
	Simulator    *nfc.Simulator
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Limiter      *httpmiddleware.TokenBucket
	TokenLimiter *httpmiddleware.TokenBucket
	Health       map[string]HealthCheck
	CORSOrigins  []string
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
	log  *zap.Logger
}

// New builds a server.
func New(deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{deps: deps, log: logging.OrNop(deps.Log)}
}

// Router returns the gin engine serving every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.CORS(s.deps.CORSOrigins))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	operators := v1.Group("/operators")
	if s.deps.TokenLimiter != nil {
		operators.Use(s.deps.TokenLimiter.Middleware())
	}
	operators.POST("/token", s.issueToken)
	operators.POST("/refresh", s.refreshToken)

	authed := v1.Group("", auth.OperatorAuth(s.deps.Issuer))
	if s.deps.Limiter != nil {
		authed.Use(s.deps.Limiter.Middleware())
	}
	authed.GET("/settings/server-url", s.getServerURL)
	authed.PUT("/settings/server-url", s.putServerURL)
	authed.GET("/methods", s.listMethods)
	authed.GET("/users", s.searchUsers)
	authed.GET("/users/:id", s.getUser)
	authed.GET("/events", s.listEvents)
	authed.POST("/points/award", s.awardPoints)
	authed.GET("/audit", s.listAudit)

	sessions := authed.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("/:id", s.withSession(s.getSession))
	sessions.POST("/:id/select", s.withSession(s.selectUser))
	sessions.DELETE("/:id/user", s.withSession(s.clearUser))
	sessions.PUT("/:id/event", s.withSession(s.setEvent))
	sessions.POST("/:id/write", s.withSession(s.writeTag))
	sessions.POST("/:id/verify", s.withSession(s.verifyTag))
	sessions.POST("/:id/attendance", s.withSession(s.markAttendance))
	sessions.DELETE("/:id", s.withSession(s.deleteSession))

	if s.deps.Simulator != nil {
		sim := authed.Group("/simulator")
		sim.GET("/tag", s.tagState)
		sim.PUT("/tag", s.presentTag)
		sim.DELETE("/tag", s.removeTag)
		sim.PUT("/support", s.setSupport)
	}
	return r
}

// HTTPServer wraps the router with the station's timeouts. Tag steps block
// until a tag is presented, so writes are not bounded.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.deps.Health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	if s.deps.Sessions != nil {
		body["sessions"] = s.deps.Sessions.Len()
	}
	c.JSON(status, body)
}
