package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/auth"
	"schoolattendance/internal/httpmiddleware"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options configures the router.
type Options struct {
	SigningKey      string
	Issuer          string
	PublicBaseURL   string
	CORSOrigins     []string
	RateLimitPerMin int
	Health          map[string]HealthCheck
}

type handler struct {
	svc     *attendance.Service
	baseURL string
}

// NewRouter wires middleware and routes around the attendance service.
func NewRouter(svc *attendance.Service, opts Options) *gin.Engine {
	h := &handler{svc: svc, baseURL: opts.PublicBaseURL}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS(opts.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(opts.Health))

	v1 := r.Group("/v1",
		auth.Authenticate(opts.SigningKey, opts.Issuer),
		httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin).GinMiddleware(),
	)

	teacher := v1.Group("/attendance", auth.RequireRole(auth.RoleTeacher))
	teacher.POST("/sessions", h.issueSession)
	teacher.GET("/sessions/current", h.currentSession)
	teacher.GET("/sessions/:token/qr.png", h.sessionQR)
	teacher.GET("/sessions/:token/records", h.sessionRecords)
	teacher.PUT("/daily", h.markDaily)

	student := v1.Group("/attendance", auth.RequireRole(auth.RoleStudent))
	student.POST("/redeem", h.redeem)
	student.GET("/me", h.mySummary)

	return r
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			healthy := check(c.Request.Context())
			body[name] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
