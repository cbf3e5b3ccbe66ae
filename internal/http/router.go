package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/tickethub/internal/auth"
	"github.com/geocoder89/tickethub/internal/http/handlers"
	"github.com/geocoder89/tickethub/internal/http/middlewares"
	"github.com/geocoder89/tickethub/internal/observability"
)

const serviceName = "tickethub"

type RouterDeps struct {
	Env      string
	Log      *slog.Logger
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Checks   []handlers.Check
	// Serving gates readiness: false before the pipeline starts and during shutdown.
	Serving  func() bool

	// Tokens is nil when no admin secret is configured; the admin group is then not mounted.
	Tokens       *auth.Manager
	// PasswordHash enables POST /auth/token when set alongside Tokens.
	PasswordHash string

	Layouts   handlers.LayoutController
	Stats     handlers.StatsReader
	Preview   handlers.Previewer
	Attendees handlers.AttendeeReader
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	h := handlers.NewHealthHandler(d.Serving, d.Checks...)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	if d.Tokens == nil {
		d.Log.Warn("ADMIN_JWT_SECRET not set, admin endpoints disabled")
		return r
	}

	if d.PasswordHash != "" {
		loginLimiter := middlewares.NewRateLimiter(5, time.Minute)
		login := handlers.NewAuthHandler(d.Tokens, d.PasswordHash)
		r.POST("/auth/token", middlewares.MaxBodyBytes(4<<10), loginLimiter.Middleware(middlewares.KeyByIP), login.Login)
	}

	authMW := middlewares.NewAuthMiddleware(d.Tokens)
	detectLimiter := middlewares.NewRateLimiter(3, time.Minute)
	admin := handlers.NewAdminHandler(d.Layouts, d.Stats, d.Preview, d.Attendees)

	g := r.Group("/admin", middlewares.MaxBodyBytes(64<<10), authMW.RequireAuth(), authMW.RequireRole(auth.RoleAdmin))
	g.GET("/layout", admin.GetLayout)
	g.POST("/layout/detect", detectLimiter.Middleware(middlewares.KeyBySubjectOrIP), admin.Redetect)
	g.GET("/stats", admin.GetStats)
	g.POST("/tickets/preview", admin.Preview)
	g.GET("/attendees/:id", admin.GetAttendee)

	return r
}
