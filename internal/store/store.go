package store

import (
	"context"
	"time"

	"github.com/parkpulse/parkpulse/internal/model"
)

// SessionFilter specifies criteria for listing parking sessions.
type SessionFilter struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for carparks, availability
// readings, budgets, and parking sessions.
//
// Spend mutations are relative deltas applied atomically at the storage
// layer (never read-modify-write from application memory), and the
// one-active-session-per-user rule is enforced by a storage constraint, so
// concurrent callers cannot corrupt accumulated spend or double-start.
type Store interface {
	// Carparks
	UpsertCarparks(ctx context.Context, carparks []model.Carpark) (int, error)
	GetCarpark(ctx context.Context, id string) (*model.Carpark, error)
	CarparksInBounds(ctx context.Context, minLat, minLon, maxLat, maxLon float64, limit int) ([]model.Carpark, error)

	// Availability
	UpsertAvailability(ctx context.Context, readings []model.LotAvailability) (int, error)
	GetAvailability(ctx context.Context, carparkID string) ([]model.LotAvailability, error)

	// Budgets
	CreateBudget(ctx context.Context, b model.Budget) error
	GetBudget(ctx context.Context, budgetID string) (*model.Budget, error)
	GetCycleBudget(ctx context.Context, userID, cycleKey string) (*model.Budget, error)
	UpdateBudgetLimit(ctx context.Context, budgetID string, limit float64, now time.Time) error
	// AddSpendDelta adjusts accumulated spend by delta (positive or
	// negative), clamping the result at zero.
	AddSpendDelta(ctx context.Context, budgetID string, delta float64, now time.Time) error
	SetSpend(ctx context.Context, budgetID string, amount float64, now time.Time) error
	MarkBudgetWarningSent(ctx context.Context, budgetID string, now time.Time) error
	MarkBudgetCriticalSent(ctx context.Context, budgetID string, now time.Time) error
	// ResetBudgetSpending zeroes accumulated spend and un-latches both sent
	// flags. Manual corrective operation only.
	ResetBudgetSpending(ctx context.Context, budgetID string, now time.Time) error

	// Sessions
	CreateSession(ctx context.Context, s model.ParkingSession) error
	GetSession(ctx context.Context, sessionID string) (*model.ParkingSession, error)
	// ActiveSession returns the user's active session, or (nil, nil) when
	// there is none.
	ActiveSession(ctx context.Context, userID string) (*model.ParkingSession, error)
	ActiveSessions(ctx context.Context) ([]model.ParkingSession, error)
	// UpdateSessionCost replaces the cost estimate of an active session.
	// Returns ErrNotFound when no active row matches.
	UpdateSessionCost(ctx context.Context, sessionID string, cost float64, now time.Time) error
	// CloseSession ends an active session, setting end time and actual cost
	// together. Returns ErrNotFound when no active row matches.
	CloseSession(ctx context.Context, sessionID string, endTime time.Time, actualCost float64) error
	MarkSessionWarningSent(ctx context.Context, sessionID string, now time.Time) error
	MarkSessionExceededSent(ctx context.Context, sessionID string, now time.Time) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.ParkingSession, error)

	// PurgeUser removes all budgets and sessions for a user.
	PurgeUser(ctx context.Context, userID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
