// Package notify evaluates budget and session thresholds and delivers
// one-shot alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parkpulse/parkpulse/internal/accounting"
	"github.com/parkpulse/parkpulse/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBudgetWarning   AlertType = "budget_warning"
	AlertBudgetExceeded  AlertType = "budget_exceeded"
	AlertSessionWarning  AlertType = "session_warning"
	AlertSessionExceeded AlertType = "session_exceeded"
)

// Alert is a single notification payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	UserID    string         `json:"user_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Dispatcher evaluates thresholds and sends alerts via webhook. Each alert
// fires at most once per budget cycle or session; the sent flag is latched
// through the accounting service after evaluation, whether or not the
// webhook delivery succeeded, so a flapping webhook never floods a user.
type Dispatcher struct {
	svc        *accounting.Service
	webhookURL string
	client     *http.Client
}

// NewDispatcher creates a Dispatcher. An empty webhookURL disables
// delivery; evaluation and latching still run.
func NewDispatcher(svc *accounting.Service, webhookURL string) *Dispatcher {
	return &Dispatcher{
		svc:        svc,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// EvaluateBudget returns the alerts a budget snapshot warrants.
func (d *Dispatcher) EvaluateBudget(b *model.Budget) []Alert {
	var alerts []Alert
	now := d.svc.Now().UTC()

	if b.ShouldSendWarning() {
		alerts = append(alerts, Alert{
			Type:   AlertBudgetWarning,
			UserID: b.UserID,
			Message: fmt.Sprintf("Parking spend $%.2f has reached %.0f%% of your $%.2f monthly budget",
				b.AccumulatedSpend, b.UsagePercent(), b.LimitAmount),
			Details: map[string]any{
				"budget_id": b.ID,
				"cycle":     b.CycleKey,
				"spend":     b.AccumulatedSpend,
				"limit":     b.LimitAmount,
			},
			Timestamp: now,
		})
	}
	if b.ShouldSendCritical() {
		alerts = append(alerts, Alert{
			Type:   AlertBudgetExceeded,
			UserID: b.UserID,
			Message: fmt.Sprintf("Parking spend $%.2f has exceeded your $%.2f monthly budget",
				b.AccumulatedSpend, b.LimitAmount),
			Details: map[string]any{
				"budget_id": b.ID,
				"cycle":     b.CycleKey,
				"spend":     b.AccumulatedSpend,
				"limit":     b.LimitAmount,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// EvaluateSession returns the alerts a session snapshot warrants.
func (d *Dispatcher) EvaluateSession(s *model.ParkingSession) []Alert {
	var alerts []Alert
	now := d.svc.Now().UTC()

	if s.ShouldSendWarning() {
		alerts = append(alerts, Alert{
			Type:   AlertSessionWarning,
			UserID: s.UserID,
			Message: fmt.Sprintf("Parking at %s is approaching your $%.2f session cap ($%.2f so far)",
				s.CarparkName, *s.BudgetCap, s.EstimatedCost),
			Details: map[string]any{
				"session_id": s.ID,
				"carpark":    s.CarparkID,
				"estimated":  s.EstimatedCost,
				"cap":        *s.BudgetCap,
			},
			Timestamp: now,
		})
	}
	if !s.ExceededSent && s.IsBudgetExceeded() {
		alerts = append(alerts, Alert{
			Type:   AlertSessionExceeded,
			UserID: s.UserID,
			Message: fmt.Sprintf("Parking at %s has exceeded your $%.2f session cap",
				s.CarparkName, *s.BudgetCap),
			Details: map[string]any{
				"session_id": s.ID,
				"carpark":    s.CarparkID,
				"estimated":  s.EstimatedCost,
				"cap":        *s.BudgetCap,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// BudgetUpdated evaluates a budget, delivers any due alerts, and latches
// their sent flags.
func (d *Dispatcher) BudgetUpdated(ctx context.Context, b *model.Budget) error {
	for _, alert := range d.EvaluateBudget(b) {
		d.deliver(ctx, alert)
		var err error
		switch alert.Type {
		case AlertBudgetWarning:
			err = d.svc.MarkWarningSent(ctx, b.ID)
		case AlertBudgetExceeded:
			err = d.svc.MarkCriticalSent(ctx, b.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "notify: latch %s", alert.Type)
		}
	}
	return nil
}

// SessionUpdated evaluates a session, delivers any due alerts, and latches
// their sent flags.
func (d *Dispatcher) SessionUpdated(ctx context.Context, s *model.ParkingSession) error {
	for _, alert := range d.EvaluateSession(s) {
		d.deliver(ctx, alert)
		var err error
		switch alert.Type {
		case AlertSessionWarning:
			err = d.svc.MarkSessionWarningSent(ctx, s.ID)
		case AlertSessionExceeded:
			err = d.svc.MarkSessionExceededSent(ctx, s.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "notify: latch %s", alert.Type)
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, alert Alert) {
	if d.webhookURL == "" {
		return
	}
	if err := d.sendWebhook(ctx, alert); err != nil {
		zap.L().Error("notify: failed to send alert",
			zap.String("type", string(alert.Type)),
			zap.String("user", alert.UserID),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("notify: alert sent",
		zap.String("type", string(alert.Type)),
		zap.String("user", alert.UserID),
	)
}

func (d *Dispatcher) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "notify: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
