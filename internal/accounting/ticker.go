package accounting

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Estimator converts elapsed parking time into an estimated cost. The
// pricing package provides the production implementation; the engine never
// owns tariff logic.
type Estimator interface {
	Estimate(elapsed time.Duration) float64
}

// Ticker periodically re-derives the estimated cost of every active
// session. Each tick is an independent, idempotent recomputation from
// absolute timestamps, so missed or delayed ticks never skew accrued cost.
type Ticker struct {
	svc      *Service
	est      Estimator
	interval time.Duration
	onUpdate func(ctx context.Context, sessionID string)
}

// NewTicker creates a Ticker. onUpdate, if non-nil, runs after each session
// refresh with the refreshed session id.
func NewTicker(svc *Service, est Estimator, interval time.Duration, onUpdate func(ctx context.Context, sessionID string)) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{svc: svc, est: est, interval: interval, onUpdate: onUpdate}
}

// Run ticks until the context is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick refreshes the cost estimate of every active session once.
func (t *Ticker) Tick(ctx context.Context) {
	sessions, err := t.svc.store.ActiveSessions(ctx)
	if err != nil {
		zap.L().Warn("session tick: list active sessions", zap.Error(err))
		return
	}

	now := t.svc.Now()
	for i := range sessions {
		sess := &sessions[i]
		cost := t.est.Estimate(sess.Elapsed(now))
		if _, err := t.svc.UpdateEstimatedCost(ctx, sess.ID, cost); err != nil {
			// A session ended between the list and the update loses the
			// race harmlessly; the estimate is final-cost territory now.
			zap.L().Debug("session tick: update estimate",
				zap.String("session", sess.ID),
				zap.Error(err),
			)
			continue
		}
		if t.onUpdate != nil {
			t.onUpdate(ctx, sess.ID)
		}
	}
}
