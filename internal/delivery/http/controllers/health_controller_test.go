package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/domain"
)

type fakeMonitor struct {
	online  bool
	pending int
	err     error
	events  []domain.ConnectivityEvent
}

func (m *fakeMonitor) Online() bool { return m.online }

func (m *fakeMonitor) Observe(ev domain.ConnectivityEvent) {
	m.events = append(m.events, ev)
	m.online = ev.Online()
}

func (m *fakeMonitor) Pending(context.Context) (int, error) { return m.pending, m.err }

func TestHealthController_Health(t *testing.T) {
	tests := []struct {
		name    string
		monitor *fakeMonitor
		want    HealthResponse
	}{
		{"online", &fakeMonitor{online: true}, HealthResponse{Status: "ok", Online: true}},
		{"offline with backlog", &fakeMonitor{pending: 3}, HealthResponse{Status: "degraded", Pending: 3}},
		{"queue unreadable", &fakeMonitor{online: true, err: errors.New("redis down")}, HealthResponse{Status: "degraded", Online: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewHealthController(testLogger, tt.monitor)
			rr := httptest.NewRecorder()
			c.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, rr.Code)
			var got HealthResponse
			require.Nil(t, decodeEnvelope(t, rr, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthController_ReportConnectivity(t *testing.T) {
	m := &fakeMonitor{online: true}
	c := NewHealthController(testLogger, m)

	rr := httptest.NewRecorder()
	c.ReportConnectivity(rr, newRequest(http.MethodPost, "/connectivity", map[string]any{"is_connected": true, "is_internet_reachable": false}, "admin-1", "admin"))
	require.Equal(t, http.StatusOK, rr.Code)
	var got HealthResponse
	require.Nil(t, decodeEnvelope(t, rr, &got))
	assert.False(t, got.Online)
	require.Len(t, m.events, 1)
	require.NotNil(t, m.events[0].IsInternetReachable)
	assert.False(t, *m.events[0].IsInternetReachable)

	rr = httptest.NewRecorder()
	c.ReportConnectivity(rr, newRequest(http.MethodPost, "/connectivity", map[string]any{}, "admin-1", "admin"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
