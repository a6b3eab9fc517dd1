package api

import (
	"context"
	"net/http"

	"docdash/quartermaster/internal/provision"

	"github.com/gin-gonic/gin"
)

// provisionerService is the subset of *provision.Provisioner used by the
// HTTP handlers. Declaring it as an interface allows test doubles to be injected.
type provisionerService interface {
	RunAsync(ctx context.Context) error
	RunDeepHealth(ctx context.Context) map[string]provision.ProbeResult
	LastResult() *provision.ProvisionResult
	IsReady() bool
	IsRunInProgress() bool
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	provisioner provisionerService
}

// Bootstrap handles POST /api/v1/bootstrap.
// It returns 202 when a new bootstrap run is started, or 409 if one is
// already in progress. The overlap claim is made before replying, so two
// concurrent POSTs cannot both get a 202. The actual bootstrap work runs in
// a background goroutine; clients poll GET /api/v1/bootstrap for the outcome.
func (h *Handler) Bootstrap(c *gin.Context) {
	//nolint:contextcheck // the run must outlive the request
	if err := h.provisioner.RunAsync(context.Background()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"status": "in-progress"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// BootstrapStatus handles GET /api/v1/bootstrap.
// It reports the phase results of the most recent run, an in-progress marker
// while one is running, or 404 when no run has happened yet.
func (h *Handler) BootstrapStatus(c *gin.Context) {
	if h.provisioner.IsRunInProgress() {
		c.JSON(http.StatusOK, gin.H{"status": provision.StatusInProgress})
		return
	}
	result := h.provisioner.LastResult()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no bootstrap run yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health handles GET /health.
// It always returns 200 — this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes the runtime, the model cache, the python environment, and the
// workspace, and returns 200 only when every probe is OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.provisioner.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after a bootstrap run without strict-phase failures;
// 503 otherwise.
func (h *Handler) Ready(c *gin.Context) {
	if h.provisioner.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
