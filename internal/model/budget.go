package model

import (
	"fmt"
	"time"
)

// Default notification thresholds as fractions of the limit or cap.
const (
	DefaultWarningFraction  = 0.8
	DefaultCriticalFraction = 1.0
)

// CycleKey returns the budget cycle identifier for t, format "YYYY-MM", in
// t's location. A new calendar month yields a new key and therefore a new
// budget row; old rows are superseded, never reset in place.
func CycleKey(t time.Time) string {
	return t.Format("2006-01")
}

// BudgetID derives the deterministic budget row id for a user and cycle.
// Upsert and lookup logic depend on this format being stable.
func BudgetID(userID, cycleKey string) string {
	return fmt.Sprintf("%s_%s", userID, cycleKey)
}

// Budget is one user's spending limit and accumulated spend for one
// calendar month. Instances are immutable snapshots: every mutation goes
// through the store, which applies spend changes as atomic clamped deltas.
type Budget struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	CycleKey         string    `json:"cycle_key"`
	LimitAmount      float64   `json:"limit_amount"`
	AccumulatedSpend float64   `json:"accumulated_spend"`
	WarningFraction  float64   `json:"warning_fraction"`
	CriticalFraction float64   `json:"critical_fraction"`
	WarningSent      bool      `json:"warning_sent"`
	CriticalSent     bool      `json:"critical_sent"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Remaining returns the unspent portion of the limit, negative once the
// limit is exceeded.
func (b *Budget) Remaining() float64 {
	return b.LimitAmount - b.AccumulatedSpend
}

// UsagePercent returns spend as a percentage of the limit, or 0 when the
// limit is not positive.
func (b *Budget) UsagePercent() float64 {
	if b.LimitAmount <= 0 {
		return 0
	}
	return b.AccumulatedSpend / b.LimitAmount * 100
}

// IsExceeded reports whether spend has reached the limit.
func (b *Budget) IsExceeded() bool {
	return b.AccumulatedSpend >= b.LimitAmount
}

// ShouldSendWarning reports whether the warning threshold has been crossed
// and no warning has gone out this cycle. The sent flag is a one-way latch:
// once marked, the predicate stays false even if spend drops back under the
// threshold and climbs again.
func (b *Budget) ShouldSendWarning() bool {
	return !b.WarningSent && b.AccumulatedSpend >= b.LimitAmount*b.WarningFraction
}

// ShouldSendCritical reports whether the critical threshold has been
// crossed and no critical alert has gone out this cycle.
func (b *Budget) ShouldSendCritical() bool {
	return !b.CriticalSent && b.AccumulatedSpend >= b.LimitAmount*b.CriticalFraction
}
