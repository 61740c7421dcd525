package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkpulse/parkpulse/internal/accounting"
	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/notify"
	"github.com/parkpulse/parkpulse/internal/pricing"
	"github.com/parkpulse/parkpulse/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	svc := accounting.NewService(st, nil)
	dispatcher := notify.NewDispatcher(svc, "")
	return buildRouter(svc, st, pricing.DefaultRates(), dispatcher), st
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
}

func TestRouter_SessionLifecycle(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	// Start.
	rr := doJSON(t, router, http.MethodPost, "/sessions", map[string]any{
		"user_id": "u1", "carpark_id": "ACB", "budget_cap": 5.0,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var sess model.ParkingSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	assert.True(t, sess.IsActive)

	// A second start for the same user conflicts.
	rr = doJSON(t, router, http.MethodPost, "/sessions", map[string]any{
		"user_id": "u1", "carpark_id": "BM29",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Active lookup.
	rr = doJSON(t, router, http.MethodGet, "/sessions/active?user=u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// End with an explicit final cost.
	rr = doJSON(t, router, http.MethodPost, fmt.Sprintf("/sessions/%s/end", sess.ID), map[string]any{
		"final_cost": 2.4,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ended model.ParkingSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ended))
	assert.False(t, ended.IsActive)
	require.NotNil(t, ended.ActualCost)
	assert.InDelta(t, 2.4, *ended.ActualCost, 1e-9)

	// Ending again with a different cost conflicts.
	rr = doJSON(t, router, http.MethodPost, fmt.Sprintf("/sessions/%s/end", sess.ID), map[string]any{
		"final_cost": 9.9,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	// No active session left.
	rr = doJSON(t, router, http.MethodGet, "/sessions/active?user=u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// History.
	rr = doJSON(t, router, http.MethodGet, "/sessions/?user=u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history []model.ParkingSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Len(t, history, 1)
}

func TestRouter_SessionEndRollsIntoBudget(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPut, "/budgets/u1/", map[string]any{"limit": 100.0})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, router, http.MethodPost, "/sessions", map[string]any{
		"user_id": "u1", "carpark_id": "ACB",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var sess model.ParkingSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))

	rr = doJSON(t, router, http.MethodPost, fmt.Sprintf("/sessions/%s/end", sess.ID), map[string]any{
		"final_cost": 3.5,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/budgets/u1/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status struct {
		Budget model.Budget `json:"budget"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.InDelta(t, 3.5, status.Budget.AccumulatedSpend, 1e-9)
}

func TestRouter_BudgetSpendingOps(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	// No budget yet.
	rr := doJSON(t, router, http.MethodGet, "/budgets/u1/", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodPut, "/budgets/u1/", map[string]any{"limit": 50.0})
	require.Equal(t, http.StatusOK, rr.Code)

	// Invalid limit.
	rr = doJSON(t, router, http.MethodPut, "/budgets/u1/", map[string]any{"limit": -1.0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/budgets/u1/spending", map[string]any{"add": 20.0})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/budgets/u1/spending", map[string]any{"remove": 5.0})
	require.Equal(t, http.StatusOK, rr.Code)
	var b model.Budget
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	assert.InDelta(t, 15.0, b.AccumulatedSpend, 1e-9)

	rr = doJSON(t, router, http.MethodPost, "/budgets/u1/spending", map[string]any{"set": 42.0})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	assert.InDelta(t, 42.0, b.AccumulatedSpend, 1e-9)

	rr = doJSON(t, router, http.MethodPost, "/budgets/u1/spending", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/budgets/u1/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &b))
	assert.Zero(t, b.AccumulatedSpend)
}

func TestRouter_CarparksNear(t *testing.T) {
	t.Parallel()
	router, st := newTestRouter(t)

	_, err := st.UpsertCarparks(context.Background(), []model.Carpark{
		{ID: "NEAR", Latitude: 1.3005, Longitude: 103.8505, UpdatedAt: time.Now()},
		{ID: "FAR", Latitude: 1.4000, Longitude: 103.9500, UpdatedAt: time.Now()},
	})
	require.NoError(t, err)

	rr := doJSON(t, router, http.MethodGet, "/carparks/near?lat=1.30&lon=103.85&radius=500", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var results []struct {
		Carpark   model.Carpark `json:"carpark"`
		DistanceM float64       `json:"distance_m"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "NEAR", results[0].Carpark.ID)

	// Missing coordinates.
	rr = doJSON(t, router, http.MethodGet, "/carparks/near", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_Availability(t *testing.T) {
	t.Parallel()
	router, st := newTestRouter(t)

	_, err := st.UpsertAvailability(context.Background(), []model.LotAvailability{
		{CarparkID: "ACB", LotType: "C", LotsTotal: 100, LotsAvailable: 40, AsOf: time.Now()},
	})
	require.NoError(t, err)

	rr := doJSON(t, router, http.MethodGet, "/carparks/ACB/availability", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var readings []model.LotAvailability
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &readings))
	require.Len(t, readings, 1)
	assert.Equal(t, 40, readings[0].LotsAvailable)
}

func TestRouter_PurgeUser(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPut, "/budgets/u1/", map[string]any{"limit": 50.0})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/users/u1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/budgets/u1/", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
