// Package api exposes the check-in operations over HTTP. Each operation has
// its own root path; every path answers OPTIONS with 204 and wrong methods
// with 405.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"checkin/internal/auth"
	"checkin/internal/checkin"
	"checkin/internal/httpmiddleware"
	"checkin/internal/photos"
)

// Services are the operations served by the router. Photos may be nil when
// image storage is not configured.
type Services struct {
	Events      *checkin.Events
	Students    *checkin.Students
	Recorder    *checkin.Recorder
	Reader      *checkin.Reader
	Maintenance *checkin.Maintenance
	Deleter     *checkin.Deleter
	ErrorLog    *checkin.ErrorLog
	Photos      *photos.Checker
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Options configure the router's middleware.
type Options struct {
	// OperatorSigningKey enables operator auth on maintenance routes.
	OperatorSigningKey string
	JWTIssuer          string
	RateLimitPerMin    int
	RequestTimeout     time.Duration
	AccessLog          bool
	Health             map[string]HealthCheck
}

type handler struct {
	svc  Services
	opts Options
	log  zerolog.Logger
}

// NewRouter builds the gin engine.
func NewRouter(svc Services, opts Options, log zerolog.Logger) *gin.Engine {
	h := &handler{svc: svc, opts: opts, log: log.With().Str("component", "api").Logger()}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	if opts.AccessLog {
		r.Use(httpmiddleware.RequestLogger(h.log))
	}
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewClientLimiter(opts.RateLimitPerMin, 0).GinMiddleware())
	if opts.RequestTimeout > 0 {
		r.Use(httpmiddleware.Timeout(opts.RequestTimeout))
	}

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)

	r.GET("/getEvents", h.listEvents)
	r.GET("/getStudents", h.listStudents)
	r.GET("/getStudentById", h.getStudent)
	r.GET("/getScanRecords", h.listScans)
	r.POST("/addScanRecord", h.recordScan)
	r.POST("/addErrorRecord", h.recordError)
	r.POST("/createEvent", h.createEvent)
	r.PUT("/updateEvent", h.updateEvent)

	op := auth.OperatorAuth(opts.OperatorSigningKey, opts.JWTIssuer)
	r.DELETE("/deleteScanRecord", op, h.deleteScan)
	r.DELETE("/bulkDeleteScanRecords", op, h.bulkDeleteScans)
	r.POST("/migrateScanRecords", op, h.migrateScans)
	r.POST("/fixScanRecords", op, h.enrichScans)
	r.GET("/deleteTestEvent", op, h.deleteTestEvent)
	r.DELETE("/deleteTestEvent", op, h.deleteTestEvent)
	r.GET("/checkStudentPhotos", op, h.checkPhotos)
	r.POST("/uploadStudentPhoto", op, h.uploadPhoto)

	return r
}

func (h *handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.opts.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
