// Package accounting owns parking-session and budget state transitions:
// session start/end, cost accrual, monthly spend bookkeeping, and the
// at-most-once notification latches.
package accounting

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/store"
)

// Clock supplies the current time. The service never reads the global clock
// directly, so cycle rollover and elapsed-time behavior stay deterministic
// under test.
type Clock func() time.Time

// Service implements the session and budget accounting operations over a
// Store. It holds no entity state of its own: entities are immutable
// snapshots and every mutation is an atomic store update, so concurrent
// callers (a UI slider and a background cost tick, say) cannot lose writes.
type Service struct {
	store store.Store
	now   Clock
}

// NewService creates a Service. A nil clock defaults to time.Now.
func NewService(st store.Store, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: st, now: clock}
}

// StartSessionParams carries the inputs for starting a parking session.
type StartSessionParams struct {
	UserID         string   `json:"user_id"`
	CarparkID      string   `json:"carpark_id"`
	CarparkName    string   `json:"carpark_name"`
	CarparkAddress string   `json:"carpark_address"`
	BudgetCap      *float64 `json:"budget_cap,omitempty"`
	AutoStarted    bool     `json:"auto_started"`
}

// StartSession begins a parking session for the user. Fails with
// ErrConflict when the user already has an active session: the check-and-set
// is atomic because the storage layer enforces the uniqueness constraint on
// insert, not the service by reading first.
func (s *Service) StartSession(ctx context.Context, p StartSessionParams) (*model.ParkingSession, error) {
	if p.UserID == "" || p.CarparkID == "" {
		return nil, eris.Wrap(ErrValidation, "user id and carpark id are required")
	}
	if p.BudgetCap != nil && *p.BudgetCap <= 0 {
		return nil, eris.Wrap(ErrValidation, "budget cap must be positive")
	}

	now := s.now()
	sess := model.ParkingSession{
		ID:              model.SessionID(p.UserID, now),
		UserID:          p.UserID,
		CarparkID:       p.CarparkID,
		CarparkName:     p.CarparkName,
		CarparkAddress:  p.CarparkAddress,
		StartTime:       now,
		IsActive:        true,
		BudgetCap:       p.BudgetCap,
		WarningFraction: model.DefaultWarningFraction,
		AutoStarted:     p.AutoStarted,
		UpdatedAt:       now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		if eris.Is(err, store.ErrDuplicateActiveSession) {
			return nil, eris.Wrapf(ErrConflict, "user %s", p.UserID)
		}
		return nil, err
	}
	return &sess, nil
}

// UpdateEstimatedCost replaces the live cost estimate of an active session.
// The cost itself is computed by the pricing collaborator; the engine only
// does the accrual bookkeeping. Returns the refreshed snapshot.
func (s *Service) UpdateEstimatedCost(ctx context.Context, sessionID string, cost float64) (*model.ParkingSession, error) {
	if cost < 0 {
		return nil, eris.Wrap(ErrValidation, "cost must not be negative")
	}
	err := s.store.UpdateSessionCost(ctx, sessionID, cost, s.now())
	if eris.Is(err, store.ErrNotFound) {
		// Distinguish a missing session from an ended one.
		if _, getErr := s.store.GetSession(ctx, sessionID); eris.Is(getErr, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrNotFound, "session %s", sessionID)
		}
		return nil, eris.Wrapf(ErrInvalidState, "session %s is not active", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return s.Session(ctx, sessionID)
}

// EndSession irreversibly ends a session, setting end time and actual cost
// together. Ending an already-ended session with the identical final cost
// is a silent idempotent success; a different cost is ErrInvalidState.
func (s *Service) EndSession(ctx context.Context, sessionID string, finalCost float64) (*model.ParkingSession, error) {
	if finalCost < 0 {
		return nil, eris.Wrap(ErrValidation, "final cost must not be negative")
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", sessionID)
	}
	if err != nil {
		return nil, err
	}

	if !sess.IsActive {
		if sess.ActualCost != nil && *sess.ActualCost == finalCost {
			return sess, nil
		}
		return nil, eris.Wrapf(ErrInvalidState, "session %s already ended with a different final cost", sessionID)
	}

	if err := s.store.CloseSession(ctx, sessionID, s.now(), finalCost); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			// Lost a close race; re-read and apply the idempotency rule.
			return s.EndSession(ctx, sessionID, finalCost)
		}
		return nil, err
	}
	return s.Session(ctx, sessionID)
}

// Session returns a session snapshot by id.
func (s *Service) Session(ctx context.Context, sessionID string) (*model.ParkingSession, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", sessionID)
	}
	return sess, err
}

// ActiveSession returns the user's active session, or (nil, nil) when there
// is none.
func (s *Service) ActiveSession(ctx context.Context, userID string) (*model.ParkingSession, error) {
	return s.store.ActiveSession(ctx, userID)
}

// Sessions lists sessions, newest first.
func (s *Service) Sessions(ctx context.Context, filter store.SessionFilter) ([]model.ParkingSession, error) {
	return s.store.ListSessions(ctx, filter)
}

// MarkSessionWarningSent latches the session's cap-warning flag. One-way.
func (s *Service) MarkSessionWarningSent(ctx context.Context, sessionID string) error {
	return mapNotFound(s.store.MarkSessionWarningSent(ctx, sessionID, s.now()), "session", sessionID)
}

// MarkSessionExceededSent latches the session's cap-exceeded flag. One-way.
func (s *Service) MarkSessionExceededSent(ctx context.Context, sessionID string) error {
	return mapNotFound(s.store.MarkSessionExceededSent(ctx, sessionID, s.now()), "session", sessionID)
}

// SetMonthlyBudget upserts the user's budget for the current cycle: creates
// the row on first use, otherwise updates only the limit. Accumulated spend
// and the sent latches survive limit changes because the thresholds are
// fractions of the limit, not stored absolute amounts.
func (s *Service) SetMonthlyBudget(ctx context.Context, userID string, limit float64) (*model.Budget, error) {
	if userID == "" {
		return nil, eris.Wrap(ErrValidation, "user id is required")
	}
	if limit <= 0 {
		return nil, eris.Wrap(ErrValidation, "budget limit must be positive")
	}

	now := s.now()
	cycle := model.CycleKey(now)
	id := model.BudgetID(userID, cycle)

	existing, err := s.store.GetCycleBudget(ctx, userID, cycle)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if existing == nil {
		b := model.Budget{
			ID:               id,
			UserID:           userID,
			CycleKey:         cycle,
			LimitAmount:      limit,
			WarningFraction:  model.DefaultWarningFraction,
			CriticalFraction: model.DefaultCriticalFraction,
			LastUpdated:      now,
		}
		if err := s.store.CreateBudget(ctx, b); err != nil {
			return nil, err
		}
		return &b, nil
	}

	if err := s.store.UpdateBudgetLimit(ctx, id, limit, now); err != nil {
		return nil, err
	}
	return s.Budget(ctx, id)
}

// AddSpending increases the current cycle's accumulated spend by amount.
func (s *Service) AddSpending(ctx context.Context, userID string, amount float64) (*model.Budget, error) {
	return s.adjustSpending(ctx, userID, amount, amount)
}

// RemoveSpending decreases the current cycle's accumulated spend by amount,
// clamped at zero by the storage layer.
func (s *Service) RemoveSpending(ctx context.Context, userID string, amount float64) (*model.Budget, error) {
	return s.adjustSpending(ctx, userID, amount, -amount)
}

func (s *Service) adjustSpending(ctx context.Context, userID string, amount, delta float64) (*model.Budget, error) {
	if amount <= 0 {
		return nil, eris.Wrap(ErrValidation, "amount must be positive")
	}
	b, err := s.CurrentBudget(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddSpendDelta(ctx, b.ID, delta, s.now()); err != nil {
		return nil, err
	}
	return s.Budget(ctx, b.ID)
}

// UpdateCurrentSpending overwrites the current cycle's accumulated spend
// with an absolute amount, clamped at zero.
func (s *Service) UpdateCurrentSpending(ctx context.Context, userID string, amount float64) (*model.Budget, error) {
	b, err := s.CurrentBudget(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetSpend(ctx, b.ID, amount, s.now()); err != nil {
		return nil, err
	}
	return s.Budget(ctx, b.ID)
}

// Budget returns a budget snapshot by id.
func (s *Service) Budget(ctx context.Context, budgetID string) (*model.Budget, error) {
	b, err := s.store.GetBudget(ctx, budgetID)
	if eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNotFound, "budget %s", budgetID)
	}
	return b, err
}

// CurrentBudget returns the user's budget for the cycle containing now.
func (s *Service) CurrentBudget(ctx context.Context, userID string) (*model.Budget, error) {
	cycle := model.CycleKey(s.now())
	b, err := s.store.GetCycleBudget(ctx, userID, cycle)
	if eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNotFound, "no budget set for %s in cycle %s", userID, cycle)
	}
	return b, err
}

// MarkWarningSent latches the budget's warning flag. One-way; only
// ResetSpending un-latches it.
func (s *Service) MarkWarningSent(ctx context.Context, budgetID string) error {
	return mapNotFound(s.store.MarkBudgetWarningSent(ctx, budgetID, s.now()), "budget", budgetID)
}

// MarkCriticalSent latches the budget's critical flag. One-way.
func (s *Service) MarkCriticalSent(ctx context.Context, budgetID string) error {
	return mapNotFound(s.store.MarkBudgetCriticalSent(ctx, budgetID, s.now()), "budget", budgetID)
}

// ResetSpending zeroes accumulated spend and un-latches both sent flags.
// Manual corrective operation only: cycle rollover creates a fresh budget
// row under the new cycle key and never calls this.
func (s *Service) ResetSpending(ctx context.Context, budgetID string) (*model.Budget, error) {
	if err := mapNotFound(s.store.ResetBudgetSpending(ctx, budgetID, s.now()), "budget", budgetID); err != nil {
		return nil, err
	}
	return s.Budget(ctx, budgetID)
}

// PurgeUser removes all budgets and sessions for a user.
func (s *Service) PurgeUser(ctx context.Context, userID string) error {
	return s.store.PurgeUser(ctx, userID)
}

// Now exposes the service clock so collaborators evaluate derived queries
// against the same time source.
func (s *Service) Now() time.Time {
	return s.now()
}

func mapNotFound(err error, entity, id string) error {
	if eris.Is(err, store.ErrNotFound) {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return err
}
