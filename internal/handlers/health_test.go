package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/proctorrelay/internal/database"
	"github.com/charlesng35/proctorrelay/internal/database/testutil"
	"github.com/charlesng35/proctorrelay/internal/monitoring"
	"github.com/charlesng35/proctorrelay/internal/monitoring/checks"
	"github.com/charlesng35/proctorrelay/internal/realtime"
)

func newHealthRouter(handler *HealthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", handler.Summary)
	r.GET("/health/live", handler.Live)
	r.GET("/health/ready", handler.Ready)
	return r
}

func TestHealthSummaryReportsRelays(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	directory := realtime.NewDirectory()
	directory.GetOrCreate("exam")

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(checks.Database(db, 0))
	r := newHealthRouter(NewHealthHandler(manager, directory))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Success bool                    `json:"success"`
		Status  string                  `json:"status"`
		Relays  realtime.DirectoryStats `json:"relays"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.Equal(t, "up", payload.Status)
	require.Equal(t, 1, payload.Relays.Rooms)
}

func TestHealthReadyReportsUnavailableDatabase(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	require.NoError(t, database.Close(db))

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(checks.Database(db, 0))
	r := newHealthRouter(NewHealthHandler(manager, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report monitoring.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.False(t, report.Success)
	require.Len(t, report.Checks, 1)
	require.Equal(t, "database", report.Checks[0].Component)
	require.Equal(t, monitoring.StatusDegraded, report.Checks[0].Status)
}

func TestHealthLiveIgnoresReadinessFailures(t *testing.T) {
	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("broken", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown}
	}))
	r := newHealthRouter(NewHealthHandler(manager, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
