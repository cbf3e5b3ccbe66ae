package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check is one readiness probe, such as a database or redis ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	serving func() bool
	checks  []Check
	timeout time.Duration
}

// NewHealthHandler builds the probes. serving may be nil; while it reports false
// (before the pipeline starts and once shutdown begins) readiness fails regardless of
// the checks.
func NewHealthHandler(serving func() bool, checks ...Check) *HealthHandler {
	if serving == nil {
		serving = func() bool { return true }
	}
	return &HealthHandler{serving: serving, checks: checks, timeout: time.Second}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz answers 503 when any dependency fails its ping.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if !h.serving() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_serving"})
		return
	}

	failed := gin.H{}
	for _, c := range h.checks {
		pctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
		err := c.Ping(pctx)
		cancel()
		if err != nil {
			failed[c.Name] = err.Error()
		}
	}

	if len(failed) > 0 {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": failed})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
