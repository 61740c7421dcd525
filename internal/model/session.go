package model

import (
	"fmt"
	"math"
	"time"
)

// SessionID derives the deterministic session id from the user and the
// session start time. One session start per millisecond per user keeps ids
// collision-free.
func SessionID(userID string, start time.Time) string {
	return fmt.Sprintf("%s_%d", userID, start.UnixMilli())
}

// ParkingSession is one instance of a user parking at one facility. A user
// has at most one active session at a time; ending a session is final.
// Instances are immutable snapshots, the store owns all mutation.
type ParkingSession struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	CarparkID       string     `json:"carpark_id"`
	CarparkName     string     `json:"carpark_name"`
	CarparkAddress  string     `json:"carpark_address"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	IsActive        bool       `json:"is_active"`
	EstimatedCost   float64    `json:"estimated_cost"`
	ActualCost      *float64   `json:"actual_cost,omitempty"`
	BudgetCap       *float64   `json:"budget_cap,omitempty"`
	WarningFraction float64    `json:"warning_fraction"`
	WarningSent     bool       `json:"warning_sent"`
	ExceededSent    bool       `json:"exceeded_sent"`
	AutoStarted     bool       `json:"auto_started"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Elapsed returns the parked duration: start to end for an ended session,
// start to now for an active one. Derived from absolute timestamps, so a
// delayed or missed tick never skews it. Never negative.
func (s *ParkingSession) Elapsed(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	d := end.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedMinutes returns whole minutes parked.
func (s *ParkingSession) ElapsedMinutes(now time.Time) int {
	return int(s.Elapsed(now).Minutes())
}

// ElapsedClock formats the parked duration as HH:MM:SS.
func (s *ParkingSession) ElapsedClock(now time.Time) string {
	d := s.Elapsed(now)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// RemainingBudget returns the cap minus the current cost estimate, or nil
// when the session has no cap.
func (s *ParkingSession) RemainingBudget() *float64 {
	if s.BudgetCap == nil {
		return nil
	}
	r := *s.BudgetCap - s.EstimatedCost
	return &r
}

// IsBudgetExceeded reports whether the cost estimate has reached the cap.
func (s *ParkingSession) IsBudgetExceeded() bool {
	return s.BudgetCap != nil && s.EstimatedCost >= *s.BudgetCap
}

// ShouldSendWarning reports whether the cap warning threshold has been
// crossed and no warning has gone out for this session. One-way latch, same
// semantics as the budget-level flags.
func (s *ParkingSession) ShouldSendWarning() bool {
	return !s.WarningSent && s.BudgetCap != nil && s.EstimatedCost >= *s.BudgetCap*s.WarningFraction
}

// RemainingTimeMinutes estimates how many minutes of parking remain before
// the cap is reached at the given per-minute rate. Nil when there is no cap
// or the rate is not positive; zero when the cap is already spent.
func (s *ParkingSession) RemainingTimeMinutes(costPerMinute float64) *int {
	if s.BudgetCap == nil || costPerMinute <= 0 {
		return nil
	}
	remaining := *s.BudgetCap - s.EstimatedCost
	if remaining <= 0 {
		zero := 0
		return &zero
	}
	m := int(math.Ceil(remaining / costPerMinute))
	return &m
}
