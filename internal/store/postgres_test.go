package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkpulse/parkpulse/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetBudget_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM budgets WHERE id = \$1`).
		WithArgs("u1_2025-06").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBudget(context.Background(), "u1_2025-06")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddSpendDelta(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// The clamp happens inside the UPDATE, not in application code.
	mock.ExpectExec(`UPDATE budgets SET accumulated_spend = GREATEST\(0, accumulated_spend \+ \$1\)`).
		WithArgs(-15.0, now, "u1_2025-06").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.AddSpendDelta(context.Background(), "u1_2025-06", -15.0, now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddSpendDelta_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE budgets SET accumulated_spend = GREATEST`).
		WithArgs(5.0, now, "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.AddSpendDelta(context.Background(), "nope", 5.0, now)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSession_UniqueViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO parking_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_sessions_one_active"})

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	err := s.CreateSession(context.Background(), model.ParkingSession{
		ID:       model.SessionID("u1", start),
		UserID:   "u1",
		IsActive: true,
	})
	assert.ErrorIs(t, err, ErrDuplicateActiveSession)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActiveSession_NoneIsNotAnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM parking_sessions WHERE user_id = \$1 AND is_active`).
		WithArgs("u1").
		WillReturnError(pgx.ErrNoRows)

	sess, err := s.ActiveSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseSession_AlreadyClosed(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	end := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)UPDATE parking_sessions SET end_time = \$1.+WHERE id = \$3 AND is_active`).
		WithArgs(end, 2.4, "u1_123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CloseSession(context.Background(), "u1_123", end, 2.4)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCarpark(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	updated := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "address", "latitude", "longitude", "carpark_type", "parking_system",
		"short_term", "free_parking", "night_parking", "decks", "gantry_height",
		"basement", "updated_at",
	}).AddRow(
		"ACB", "Blk 270/271 Albert Centre", 1.3006, 103.8543, "Basement Car Park",
		"Electronic Parking", "Whole Day", "No", "Yes", 1, 1.8, true, updated,
	)
	mock.ExpectQuery(`(?s)SELECT .+ FROM carparks WHERE id = \$1`).
		WithArgs("ACB").
		WillReturnRows(rows)

	got, err := s.GetCarpark(context.Background(), "ACB")
	require.NoError(t, err)
	assert.Equal(t, "ACB", got.ID)
	assert.InDelta(t, 1.3006, got.Latitude, 1e-9)
	assert.True(t, got.Basement)
	assert.NoError(t, mock.ExpectationsWereMet())
}
