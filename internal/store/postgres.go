package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/parkpulse/parkpulse/internal/model"
)

// Pool is the minimal pgx pool surface used by PostgresStore. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS carparks (
	id             TEXT PRIMARY KEY,
	address        TEXT NOT NULL DEFAULT '',
	latitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
	carpark_type   TEXT NOT NULL DEFAULT '',
	parking_system TEXT NOT NULL DEFAULT '',
	short_term     TEXT NOT NULL DEFAULT '',
	free_parking   TEXT NOT NULL DEFAULT '',
	night_parking  TEXT NOT NULL DEFAULT '',
	decks          INTEGER NOT NULL DEFAULT 0,
	gantry_height  DOUBLE PRECISION NOT NULL DEFAULT 0,
	basement       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lot_availability (
	carpark_id     TEXT NOT NULL,
	lot_type       TEXT NOT NULL,
	lots_total     INTEGER NOT NULL DEFAULT 0,
	lots_available INTEGER NOT NULL DEFAULT 0,
	as_of          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (carpark_id, lot_type)
);

CREATE TABLE IF NOT EXISTS budgets (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	cycle_key         TEXT NOT NULL,
	limit_amount      DOUBLE PRECISION NOT NULL,
	accumulated_spend DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (accumulated_spend >= 0),
	warning_fraction  DOUBLE PRECISION NOT NULL DEFAULT 0.8,
	critical_fraction DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	warning_sent      BOOLEAN NOT NULL DEFAULT FALSE,
	critical_sent     BOOLEAN NOT NULL DEFAULT FALSE,
	last_updated      TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, cycle_key)
);

CREATE TABLE IF NOT EXISTS parking_sessions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	carpark_id       TEXT NOT NULL,
	carpark_name     TEXT NOT NULL DEFAULT '',
	carpark_address  TEXT NOT NULL DEFAULT '',
	start_time       TIMESTAMPTZ NOT NULL,
	end_time         TIMESTAMPTZ,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	estimated_cost   DOUBLE PRECISION NOT NULL DEFAULT 0,
	actual_cost      DOUBLE PRECISION,
	budget_cap       DOUBLE PRECISION,
	warning_fraction DOUBLE PRECISION NOT NULL DEFAULT 0.8,
	warning_sent     BOOLEAN NOT NULL DEFAULT FALSE,
	exceeded_sent    BOOLEAN NOT NULL DEFAULT FALSE,
	auto_started     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_carparks_latlon ON carparks(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_budgets_user ON budgets(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active ON parking_sessions(user_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_sessions_user_start ON parking_sessions(user_id, start_time);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Carparks ---

func (s *PostgresStore) UpsertCarparks(ctx context.Context, carparks []model.Carpark) (int, error) {
	var upserted int
	for _, c := range carparks {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO carparks (id, address, latitude, longitude, carpark_type, parking_system,
				short_term, free_parking, night_parking, decks, gantry_height, basement, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				address = EXCLUDED.address,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				carpark_type = EXCLUDED.carpark_type,
				parking_system = EXCLUDED.parking_system,
				short_term = EXCLUDED.short_term,
				free_parking = EXCLUDED.free_parking,
				night_parking = EXCLUDED.night_parking,
				decks = EXCLUDED.decks,
				gantry_height = EXCLUDED.gantry_height,
				basement = EXCLUDED.basement,
				updated_at = EXCLUDED.updated_at`,
			c.ID, c.Address, c.Latitude, c.Longitude, c.CarparkType, c.ParkingSystem,
			c.ShortTermParking, c.FreeParking, c.NightParking, c.Decks, c.GantryHeight,
			c.Basement, c.UpdatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert carpark %s", c.ID)
		}
		upserted++
	}
	return upserted, nil
}

const pgCarparkColumns = `id, address, latitude, longitude, carpark_type, parking_system,
	short_term, free_parking, night_parking, decks, gantry_height, basement, updated_at`

func (s *PostgresStore) GetCarpark(ctx context.Context, id string) (*model.Carpark, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgCarparkColumns+` FROM carparks WHERE id = $1`, id)
	return scanPgCarpark(row)
}

func (s *PostgresStore) CarparksInBounds(ctx context.Context, minLat, minLon, maxLat, maxLon float64, limit int) ([]model.Carpark, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgCarparkColumns+` FROM carparks
		 WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4
		 ORDER BY id LIMIT $5`,
		minLat, maxLat, minLon, maxLon, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: carparks in bounds")
	}
	defer rows.Close()

	var carparks []model.Carpark
	for rows.Next() {
		c, err := scanPgCarpark(rows)
		if err != nil {
			return nil, err
		}
		carparks = append(carparks, *c)
	}
	return carparks, eris.Wrap(rows.Err(), "postgres: carparks in bounds iterate")
}

// --- Availability ---

func (s *PostgresStore) UpsertAvailability(ctx context.Context, readings []model.LotAvailability) (int, error) {
	var upserted int
	for _, r := range readings {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO lot_availability (carpark_id, lot_type, lots_total, lots_available, as_of)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (carpark_id, lot_type) DO UPDATE SET
				lots_total = EXCLUDED.lots_total,
				lots_available = EXCLUDED.lots_available,
				as_of = EXCLUDED.as_of`,
			r.CarparkID, r.LotType, r.LotsTotal, r.LotsAvailable, r.AsOf)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert availability %s/%s", r.CarparkID, r.LotType)
		}
		upserted++
	}
	return upserted, nil
}

func (s *PostgresStore) GetAvailability(ctx context.Context, carparkID string) ([]model.LotAvailability, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT carpark_id, lot_type, lots_total, lots_available, as_of
		 FROM lot_availability WHERE carpark_id = $1 ORDER BY lot_type`, carparkID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get availability")
	}
	defer rows.Close()

	var readings []model.LotAvailability
	for rows.Next() {
		var r model.LotAvailability
		if err := rows.Scan(&r.CarparkID, &r.LotType, &r.LotsTotal, &r.LotsAvailable, &r.AsOf); err != nil {
			return nil, eris.Wrap(err, "postgres: scan availability")
		}
		readings = append(readings, r)
	}
	return readings, eris.Wrap(rows.Err(), "postgres: get availability iterate")
}

// --- Budgets ---

func (s *PostgresStore) CreateBudget(ctx context.Context, b model.Budget) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO budgets (id, user_id, cycle_key, limit_amount, accumulated_spend,
			warning_fraction, critical_fraction, warning_sent, critical_sent, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.UserID, b.CycleKey, b.LimitAmount, b.AccumulatedSpend,
		b.WarningFraction, b.CriticalFraction, b.WarningSent, b.CriticalSent, b.LastUpdated,
	)
	return eris.Wrapf(err, "postgres: insert budget %s", b.ID)
}

const pgBudgetColumns = `id, user_id, cycle_key, limit_amount, accumulated_spend,
	warning_fraction, critical_fraction, warning_sent, critical_sent, last_updated`

func (s *PostgresStore) GetBudget(ctx context.Context, budgetID string) (*model.Budget, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgBudgetColumns+` FROM budgets WHERE id = $1`, budgetID)
	return scanPgBudget(row)
}

func (s *PostgresStore) GetCycleBudget(ctx context.Context, userID, cycleKey string) (*model.Budget, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgBudgetColumns+` FROM budgets WHERE user_id = $1 AND cycle_key = $2`,
		userID, cycleKey)
	return scanPgBudget(row)
}

func (s *PostgresStore) UpdateBudgetLimit(ctx context.Context, budgetID string, limit float64, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET limit_amount = $1, last_updated = $2 WHERE id = $3`,
		limit, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update budget limit %s", budgetID)
	}
	return checkTag(tag, "budget", budgetID)
}

func (s *PostgresStore) AddSpendDelta(ctx context.Context, budgetID string, delta float64, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET accumulated_spend = GREATEST(0, accumulated_spend + $1), last_updated = $2 WHERE id = $3`,
		delta, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "postgres: add spend delta %s", budgetID)
	}
	return checkTag(tag, "budget", budgetID)
}

func (s *PostgresStore) SetSpend(ctx context.Context, budgetID string, amount float64, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET accumulated_spend = GREATEST(0, $1), last_updated = $2 WHERE id = $3`,
		amount, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set spend %s", budgetID)
	}
	return checkTag(tag, "budget", budgetID)
}

func (s *PostgresStore) MarkBudgetWarningSent(ctx context.Context, budgetID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET warning_sent = TRUE, last_updated = $1 WHERE id = $2`, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark budget warning sent %s", budgetID)
	}
	return checkTag(tag, "budget", budgetID)
}

func (s *PostgresStore) MarkBudgetCriticalSent(ctx context.Context, budgetID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET critical_sent = TRUE, last_updated = $1 WHERE id = $2`, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark budget critical sent %s", budgetID)
	}
	return checkTag(tag, "budget", budgetID)
}

func (s *PostgresStore) ResetBudgetSpending(ctx context.Context, budgetID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET accumulated_spend = 0, warning_sent = FALSE, critical_sent = FALSE, last_updated = $1
		 WHERE id = $2`, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset budget spending %s", budgetID)
	}
	return checkTag(tag, "budget", budgetID)
}

// --- Sessions ---

const pgSessionColumns = `id, user_id, carpark_id, carpark_name, carpark_address,
	start_time, end_time, is_active, estimated_cost, actual_cost, budget_cap,
	warning_fraction, warning_sent, exceeded_sent, auto_started, updated_at`

func (s *PostgresStore) CreateSession(ctx context.Context, sess model.ParkingSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO parking_sessions (id, user_id, carpark_id, carpark_name, carpark_address,
			start_time, end_time, is_active, estimated_cost, actual_cost, budget_cap,
			warning_fraction, warning_sent, exceeded_sent, auto_started, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		sess.ID, sess.UserID, sess.CarparkID, sess.CarparkName, sess.CarparkAddress,
		sess.StartTime, sess.EndTime, sess.IsActive, sess.EstimatedCost, sess.ActualCost,
		sess.BudgetCap, sess.WarningFraction, sess.WarningSent, sess.ExceededSent,
		sess.AutoStarted, sess.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(ErrDuplicateActiveSession, "user %s", sess.UserID)
		}
		return eris.Wrapf(err, "postgres: insert session %s", sess.ID)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.ParkingSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSessionColumns+` FROM parking_sessions WHERE id = $1`, sessionID)
	return scanPgSession(row)
}

func (s *PostgresStore) ActiveSession(ctx context.Context, userID string) (*model.ParkingSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSessionColumns+` FROM parking_sessions WHERE user_id = $1 AND is_active`, userID)
	sess, err := scanPgSession(row)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

func (s *PostgresStore) ActiveSessions(ctx context.Context) ([]model.ParkingSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSessionColumns+` FROM parking_sessions WHERE is_active ORDER BY start_time`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active sessions")
	}
	defer rows.Close()

	var sessions []model.ParkingSession
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: active sessions iterate")
}

func (s *PostgresStore) UpdateSessionCost(ctx context.Context, sessionID string, cost float64, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE parking_sessions SET estimated_cost = $1, updated_at = $2 WHERE id = $3 AND is_active`,
		cost, now, sessionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session cost %s", sessionID)
	}
	return checkTag(tag, "active session", sessionID)
}

func (s *PostgresStore) CloseSession(ctx context.Context, sessionID string, endTime time.Time, actualCost float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE parking_sessions SET end_time = $1, actual_cost = $2, is_active = FALSE, updated_at = $1
		 WHERE id = $3 AND is_active`,
		endTime, actualCost, sessionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: close session %s", sessionID)
	}
	return checkTag(tag, "active session", sessionID)
}

func (s *PostgresStore) MarkSessionWarningSent(ctx context.Context, sessionID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE parking_sessions SET warning_sent = TRUE, updated_at = $1 WHERE id = $2`, now, sessionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark session warning sent %s", sessionID)
	}
	return checkTag(tag, "session", sessionID)
}

func (s *PostgresStore) MarkSessionExceededSent(ctx context.Context, sessionID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE parking_sessions SET exceeded_sent = TRUE, updated_at = $1 WHERE id = $2`, now, sessionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark session exceeded sent %s", sessionID)
	}
	return checkTag(tag, "session", sessionID)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ParkingSession, error) {
	query := `SELECT ` + pgSessionColumns + ` FROM parking_sessions`
	var args []any

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += ` WHERE user_id = $1`
	}
	query += ` ORDER BY start_time DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.ParkingSession
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) PurgeUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM parking_sessions WHERE user_id = $1`, userID); err != nil {
		return eris.Wrapf(err, "postgres: purge sessions for %s", userID)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM budgets WHERE user_id = $1`, userID); err != nil {
		return eris.Wrapf(err, "postgres: purge budgets for %s", userID)
	}
	return nil
}

// helpers

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanPgCarpark(row pgx.Row) (*model.Carpark, error) {
	var c model.Carpark
	err := row.Scan(
		&c.ID, &c.Address, &c.Latitude, &c.Longitude, &c.CarparkType, &c.ParkingSystem,
		&c.ShortTermParking, &c.FreeParking, &c.NightParking, &c.Decks, &c.GantryHeight,
		&c.Basement, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "carpark")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan carpark")
	}
	return &c, nil
}

func scanPgBudget(row pgx.Row) (*model.Budget, error) {
	var b model.Budget
	err := row.Scan(
		&b.ID, &b.UserID, &b.CycleKey, &b.LimitAmount, &b.AccumulatedSpend,
		&b.WarningFraction, &b.CriticalFraction, &b.WarningSent, &b.CriticalSent, &b.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "budget")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan budget")
	}
	return &b, nil
}

func scanPgSession(row pgx.Row) (*model.ParkingSession, error) {
	var sess model.ParkingSession
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.CarparkID, &sess.CarparkName, &sess.CarparkAddress,
		&sess.StartTime, &sess.EndTime, &sess.IsActive, &sess.EstimatedCost, &sess.ActualCost,
		&sess.BudgetCap, &sess.WarningFraction, &sess.WarningSent, &sess.ExceededSent,
		&sess.AutoStarted, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "session")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan session")
	}
	return &sess, nil
}
