package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkpulse/parkpulse/internal/accounting"
	"github.com/parkpulse/parkpulse/internal/store"
)

type webhookRecorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (w *webhookRecorder) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var alert Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	w.mu.Lock()
	w.alerts = append(w.alerts, alert)
	w.mu.Unlock()
}

func (w *webhookRecorder) received() []Alert {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Alert(nil), w.alerts...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *accounting.Service, *webhookRecorder) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := accounting.NewService(st, func() time.Time { return now })

	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	return NewDispatcher(svc, srv.URL), svc, rec
}

func TestBudgetUpdated_FiresOncePerThreshold(t *testing.T) {
	t.Parallel()
	d, svc, rec := newTestDispatcher(t)
	ctx := context.Background()

	_, err := svc.SetMonthlyBudget(ctx, "u1", 100)
	require.NoError(t, err)

	b, err := svc.AddSpending(ctx, "u1", 85)
	require.NoError(t, err)
	require.NoError(t, d.BudgetUpdated(ctx, b))

	alerts := rec.received()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBudgetWarning, alerts[0].Type)
	assert.Equal(t, "u1", alerts[0].UserID)

	// Re-evaluating the latched budget stays silent.
	b, err = svc.CurrentBudget(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, d.BudgetUpdated(ctx, b))
	assert.Len(t, rec.received(), 1)

	// Crossing the limit fires the exceeded alert, once.
	b, err = svc.AddSpending(ctx, "u1", 20)
	require.NoError(t, err)
	require.NoError(t, d.BudgetUpdated(ctx, b))

	alerts = rec.received()
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertBudgetExceeded, alerts[1].Type)

	b, err = svc.CurrentBudget(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, d.BudgetUpdated(ctx, b))
	assert.Len(t, rec.received(), 2)
}

func TestSessionUpdated_CapAlerts(t *testing.T) {
	t.Parallel()
	d, svc, rec := newTestDispatcher(t)
	ctx := context.Background()

	capAmount := 5.0
	sess, err := svc.StartSession(ctx, accounting.StartSessionParams{
		UserID: "u1", CarparkID: "ACB", CarparkName: "Albert Centre", BudgetCap: &capAmount,
	})
	require.NoError(t, err)

	// Under the warning line: nothing.
	got, err := svc.UpdateEstimatedCost(ctx, sess.ID, 3.5)
	require.NoError(t, err)
	require.NoError(t, d.SessionUpdated(ctx, got))
	assert.Empty(t, rec.received())

	// Over 80% of the cap: warning, exactly once.
	got, err = svc.UpdateEstimatedCost(ctx, sess.ID, 4.2)
	require.NoError(t, err)
	require.NoError(t, d.SessionUpdated(ctx, got))

	got, err = svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	require.NoError(t, d.SessionUpdated(ctx, got))

	alerts := rec.received()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSessionWarning, alerts[0].Type)

	// At the cap: exceeded, exactly once.
	got, err = svc.UpdateEstimatedCost(ctx, sess.ID, 5.0)
	require.NoError(t, err)
	require.NoError(t, d.SessionUpdated(ctx, got))

	got, err = svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	require.NoError(t, d.SessionUpdated(ctx, got))

	alerts = rec.received()
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertSessionExceeded, alerts[1].Type)
}

func TestSessionUpdated_NoCapIsSilent(t *testing.T) {
	t.Parallel()
	d, svc, rec := newTestDispatcher(t)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, accounting.StartSessionParams{UserID: "u1", CarparkID: "ACB"})
	require.NoError(t, err)

	got, err := svc.UpdateEstimatedCost(ctx, sess.ID, 999)
	require.NoError(t, err)
	require.NoError(t, d.SessionUpdated(ctx, got))
	assert.Empty(t, rec.received())
}

func TestDispatcher_LatchesWithoutWebhook(t *testing.T) {
	t.Parallel()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	svc := accounting.NewService(st, nil)
	d := NewDispatcher(svc, "")
	ctx := context.Background()

	_, err = svc.SetMonthlyBudget(ctx, "u1", 100)
	require.NoError(t, err)
	b, err := svc.AddSpending(ctx, "u1", 90)
	require.NoError(t, err)

	require.NoError(t, d.BudgetUpdated(ctx, b))

	b, err = svc.CurrentBudget(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, b.WarningSent)
}
