package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"campusattend/internal/delivery/http/helpers"
	"campusattend/internal/domain"
)

// ConnectivityReporter exposes the monitor state to the health endpoint.
type ConnectivityReporter interface {
	Online() bool
	Observe(ev domain.ConnectivityEvent)
	Pending(ctx context.Context) (int, error)
}

// ConnectivityRequest is the request body for POST /connectivity.
type ConnectivityRequest struct {
	IsConnected         *bool `json:"is_connected"`
	IsInternetReachable *bool `json:"is_internet_reachable"`
}

// Validate implements Validator.
func (c ConnectivityRequest) Validate() []string {
	if c.IsConnected == nil {
		return []string{"is_connected is required"}
	}
	return nil
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Online  bool   `json:"online"`
	Pending int    `json:"pending_operations"`
}

type HealthController struct {
	Logger  *slog.Logger
	Monitor ConnectivityReporter
}

func NewHealthController(logger *slog.Logger, monitor ConnectivityReporter) *HealthController {
	return &HealthController{Logger: logger, Monitor: monitor}
}

// Health godoc
// @Summary Health check
// @Description Reports whether the backing store is reachable and how many offline operations are waiting to sync. Always 200 while the process is serving.
// @Tags health
// @Produce json
// @Success 200 {object} helpers.APIResponse "data is a HealthResponse"
// @Router /health [get]
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Online: c.Monitor.Online()}
	if !resp.Online {
		resp.Status = "degraded"
	}
	n, err := c.Monitor.Pending(r.Context())
	if err != nil {
		c.Logger.WarnContext(r.Context(), "pending queue length unavailable", "err", err)
		resp.Status = "degraded"
	}
	resp.Pending = n
	helpers.WriteJSONSuccess(w, http.StatusOK, resp)
}

// ReportConnectivity godoc
// @Summary Report connectivity
// @Description Feeds a device-style connectivity event into the monitor. Admin only.
// @Tags health
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ConnectivityRequest true "Connectivity event"
// @Success 200 {object} helpers.APIResponse "data is a HealthResponse"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /connectivity [post]
func (c *HealthController) ReportConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	c.Monitor.Observe(domain.ConnectivityEvent{IsConnected: *req.IsConnected, IsInternetReachable: req.IsInternetReachable})
	c.Health(w, r)
}
