package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/parkpulse/parkpulse/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS carparks (
	id             TEXT PRIMARY KEY,
	address        TEXT NOT NULL DEFAULT '',
	latitude       REAL NOT NULL DEFAULT 0,
	longitude      REAL NOT NULL DEFAULT 0,
	carpark_type   TEXT NOT NULL DEFAULT '',
	parking_system TEXT NOT NULL DEFAULT '',
	short_term     TEXT NOT NULL DEFAULT '',
	free_parking   TEXT NOT NULL DEFAULT '',
	night_parking  TEXT NOT NULL DEFAULT '',
	decks          INTEGER NOT NULL DEFAULT 0,
	gantry_height  REAL NOT NULL DEFAULT 0,
	basement       INTEGER NOT NULL DEFAULT 0,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lot_availability (
	carpark_id     TEXT NOT NULL,
	lot_type       TEXT NOT NULL,
	lots_total     INTEGER NOT NULL DEFAULT 0,
	lots_available INTEGER NOT NULL DEFAULT 0,
	as_of          DATETIME NOT NULL,
	PRIMARY KEY (carpark_id, lot_type)
);

CREATE TABLE IF NOT EXISTS budgets (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	cycle_key         TEXT NOT NULL,
	limit_amount      REAL NOT NULL,
	accumulated_spend REAL NOT NULL DEFAULT 0 CHECK (accumulated_spend >= 0),
	warning_fraction  REAL NOT NULL DEFAULT 0.8,
	critical_fraction REAL NOT NULL DEFAULT 1.0,
	warning_sent      INTEGER NOT NULL DEFAULT 0,
	critical_sent     INTEGER NOT NULL DEFAULT 0,
	last_updated      DATETIME NOT NULL,
	UNIQUE (user_id, cycle_key)
);

CREATE TABLE IF NOT EXISTS parking_sessions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	carpark_id       TEXT NOT NULL,
	carpark_name     TEXT NOT NULL DEFAULT '',
	carpark_address  TEXT NOT NULL DEFAULT '',
	start_time       DATETIME NOT NULL,
	end_time         DATETIME,
	is_active        INTEGER NOT NULL DEFAULT 1,
	estimated_cost   REAL NOT NULL DEFAULT 0,
	actual_cost      REAL,
	budget_cap       REAL,
	warning_fraction REAL NOT NULL DEFAULT 0.8,
	warning_sent     INTEGER NOT NULL DEFAULT 0,
	exceeded_sent    INTEGER NOT NULL DEFAULT 0,
	auto_started     INTEGER NOT NULL DEFAULT 0,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_carparks_latlon ON carparks(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_budgets_user ON budgets(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active ON parking_sessions(user_id) WHERE is_active = 1;
CREATE INDEX IF NOT EXISTS idx_sessions_user_start ON parking_sessions(user_id, start_time);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Carparks ---

func (s *SQLiteStore) UpsertCarparks(ctx context.Context, carparks []model.Carpark) (int, error) {
	if len(carparks) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert carparks")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO carparks (id, address, latitude, longitude, carpark_type, parking_system,
			short_term, free_parking, night_parking, decks, gantry_height, basement, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			carpark_type = excluded.carpark_type,
			parking_system = excluded.parking_system,
			short_term = excluded.short_term,
			free_parking = excluded.free_parking,
			night_parking = excluded.night_parking,
			decks = excluded.decks,
			gantry_height = excluded.gantry_height,
			basement = excluded.basement,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert carpark")
	}
	defer stmt.Close() //nolint:errcheck

	var upserted int
	for _, c := range carparks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Address, c.Latitude, c.Longitude, c.CarparkType, c.ParkingSystem,
			c.ShortTermParking, c.FreeParking, c.NightParking, c.Decks, c.GantryHeight,
			c.Basement, c.UpdatedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert carpark %s", c.ID)
		}
		upserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert carparks")
	}
	return upserted, nil
}

func (s *SQLiteStore) GetCarpark(ctx context.Context, id string) (*model.Carpark, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, address, latitude, longitude, carpark_type, parking_system,
			short_term, free_parking, night_parking, decks, gantry_height, basement, updated_at
		 FROM carparks WHERE id = ?`, id)
	return scanCarpark(row)
}

func (s *SQLiteStore) CarparksInBounds(ctx context.Context, minLat, minLon, maxLat, maxLon float64, limit int) ([]model.Carpark, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, address, latitude, longitude, carpark_type, parking_system,
			short_term, free_parking, night_parking, decks, gantry_height, basement, updated_at
		 FROM carparks
		 WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		 ORDER BY id LIMIT ?`,
		minLat, maxLat, minLon, maxLon, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: carparks in bounds")
	}
	defer rows.Close() //nolint:errcheck

	var carparks []model.Carpark
	for rows.Next() {
		c, err := scanCarpark(rows)
		if err != nil {
			return nil, err
		}
		carparks = append(carparks, *c)
	}
	return carparks, eris.Wrap(rows.Err(), "sqlite: carparks in bounds iterate")
}

// --- Availability ---

func (s *SQLiteStore) UpsertAvailability(ctx context.Context, readings []model.LotAvailability) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert availability")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lot_availability (carpark_id, lot_type, lots_total, lots_available, as_of)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (carpark_id, lot_type) DO UPDATE SET
			lots_total = excluded.lots_total,
			lots_available = excluded.lots_available,
			as_of = excluded.as_of`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert availability")
	}
	defer stmt.Close() //nolint:errcheck

	var upserted int
	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.CarparkID, r.LotType, r.LotsTotal, r.LotsAvailable, r.AsOf); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert availability %s/%s", r.CarparkID, r.LotType)
		}
		upserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert availability")
	}
	return upserted, nil
}

func (s *SQLiteStore) GetAvailability(ctx context.Context, carparkID string) ([]model.LotAvailability, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT carpark_id, lot_type, lots_total, lots_available, as_of
		 FROM lot_availability WHERE carpark_id = ? ORDER BY lot_type`, carparkID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get availability")
	}
	defer rows.Close() //nolint:errcheck

	var readings []model.LotAvailability
	for rows.Next() {
		var r model.LotAvailability
		if err := rows.Scan(&r.CarparkID, &r.LotType, &r.LotsTotal, &r.LotsAvailable, &r.AsOf); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan availability")
		}
		readings = append(readings, r)
	}
	return readings, eris.Wrap(rows.Err(), "sqlite: get availability iterate")
}

// --- Budgets ---

func (s *SQLiteStore) CreateBudget(ctx context.Context, b model.Budget) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, cycle_key, limit_amount, accumulated_spend,
			warning_fraction, critical_fraction, warning_sent, critical_sent, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.CycleKey, b.LimitAmount, b.AccumulatedSpend,
		b.WarningFraction, b.CriticalFraction, b.WarningSent, b.CriticalSent, b.LastUpdated,
	)
	return eris.Wrapf(err, "sqlite: insert budget %s", b.ID)
}

func (s *SQLiteStore) GetBudget(ctx context.Context, budgetID string) (*model.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, cycle_key, limit_amount, accumulated_spend,
			warning_fraction, critical_fraction, warning_sent, critical_sent, last_updated
		 FROM budgets WHERE id = ?`, budgetID)
	return scanBudget(row)
}

func (s *SQLiteStore) GetCycleBudget(ctx context.Context, userID, cycleKey string) (*model.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, cycle_key, limit_amount, accumulated_spend,
			warning_fraction, critical_fraction, warning_sent, critical_sent, last_updated
		 FROM budgets WHERE user_id = ? AND cycle_key = ?`, userID, cycleKey)
	return scanBudget(row)
}

func (s *SQLiteStore) UpdateBudgetLimit(ctx context.Context, budgetID string, limit float64, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET limit_amount = ?, last_updated = ? WHERE id = ?`,
		limit, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update budget limit %s", budgetID)
	}
	return checkRowsAffected(res, "budget", budgetID)
}

func (s *SQLiteStore) AddSpendDelta(ctx context.Context, budgetID string, delta float64, now time.Time) error {
	// Single-statement relative update: concurrent deltas serialize in the
	// database instead of racing through application memory.
	res, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET accumulated_spend = MAX(0, accumulated_spend + ?), last_updated = ? WHERE id = ?`,
		delta, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add spend delta %s", budgetID)
	}
	return checkRowsAffected(res, "budget", budgetID)
}

func (s *SQLiteStore) SetSpend(ctx context.Context, budgetID string, amount float64, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET accumulated_spend = MAX(0, ?), last_updated = ? WHERE id = ?`,
		amount, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set spend %s", budgetID)
	}
	return checkRowsAffected(res, "budget", budgetID)
}

func (s *SQLiteStore) MarkBudgetWarningSent(ctx context.Context, budgetID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET warning_sent = 1, last_updated = ? WHERE id = ?`, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark budget warning sent %s", budgetID)
	}
	return checkRowsAffected(res, "budget", budgetID)
}

func (s *SQLiteStore) MarkBudgetCriticalSent(ctx context.Context, budgetID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET critical_sent = 1, last_updated = ? WHERE id = ?`, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark budget critical sent %s", budgetID)
	}
	return checkRowsAffected(res, "budget", budgetID)
}

func (s *SQLiteStore) ResetBudgetSpending(ctx context.Context, budgetID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET accumulated_spend = 0, warning_sent = 0, critical_sent = 0, last_updated = ?
		 WHERE id = ?`, now, budgetID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset budget spending %s", budgetID)
	}
	return checkRowsAffected(res, "budget", budgetID)
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess model.ParkingSession) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parking_sessions (id, user_id, carpark_id, carpark_name, carpark_address,
			start_time, end_time, is_active, estimated_cost, actual_cost, budget_cap,
			warning_fraction, warning_sent, exceeded_sent, auto_started, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.CarparkID, sess.CarparkName, sess.CarparkAddress,
		sess.StartTime, nullTime(sess.EndTime), sess.IsActive, sess.EstimatedCost,
		nullFloat(sess.ActualCost), nullFloat(sess.BudgetCap),
		sess.WarningFraction, sess.WarningSent, sess.ExceededSent, sess.AutoStarted, sess.UpdatedAt,
	)
	if err != nil {
		// The partial unique index on (user_id) WHERE is_active enforces
		// the one-active-session invariant; surface it as a typed error.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrapf(ErrDuplicateActiveSession, "user %s", sess.UserID)
		}
		return eris.Wrapf(err, "sqlite: insert session %s", sess.ID)
	}
	return nil
}

const sqliteSessionColumns = `id, user_id, carpark_id, carpark_name, carpark_address,
	start_time, end_time, is_active, estimated_cost, actual_cost, budget_cap,
	warning_fraction, warning_sent, exceeded_sent, auto_started, updated_at`

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.ParkingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM parking_sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

func (s *SQLiteStore) ActiveSession(ctx context.Context, userID string) (*model.ParkingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM parking_sessions WHERE user_id = ? AND is_active = 1`, userID)
	sess, err := scanSession(row)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

func (s *SQLiteStore) ActiveSessions(ctx context.Context) ([]model.ParkingSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM parking_sessions WHERE is_active = 1 ORDER BY start_time`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active sessions")
	}
	defer rows.Close() //nolint:errcheck
	return collectSessions(rows, "sqlite: active sessions iterate")
}

func (s *SQLiteStore) UpdateSessionCost(ctx context.Context, sessionID string, cost float64, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE parking_sessions SET estimated_cost = ?, updated_at = ? WHERE id = ? AND is_active = 1`,
		cost, now, sessionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session cost %s", sessionID)
	}
	return checkRowsAffected(res, "active session", sessionID)
}

func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string, endTime time.Time, actualCost float64) error {
	// end_time and actual_cost are set together, exactly once: the
	// is_active guard makes the active->ended transition irreversible.
	res, err := s.db.ExecContext(ctx,
		`UPDATE parking_sessions SET end_time = ?, actual_cost = ?, is_active = 0, updated_at = ?
		 WHERE id = ? AND is_active = 1`,
		endTime, actualCost, endTime, sessionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: close session %s", sessionID)
	}
	return checkRowsAffected(res, "active session", sessionID)
}

func (s *SQLiteStore) MarkSessionWarningSent(ctx context.Context, sessionID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE parking_sessions SET warning_sent = 1, updated_at = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark session warning sent %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) MarkSessionExceededSent(ctx context.Context, sessionID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE parking_sessions SET exceeded_sent = 1, updated_at = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark session exceeded sent %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ParkingSession, error) {
	query := `SELECT ` + sqliteSessionColumns + ` FROM parking_sessions WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY start_time DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck
	return collectSessions(rows, "sqlite: list sessions iterate")
}

func (s *SQLiteStore) PurgeUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin purge user")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM parking_sessions WHERE user_id = ?`, userID); err != nil {
		return eris.Wrapf(err, "sqlite: purge sessions for %s", userID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM budgets WHERE user_id = ?`, userID); err != nil {
		return eris.Wrapf(err, "sqlite: purge budgets for %s", userID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit purge user")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func scanCarpark(row scannable) (*model.Carpark, error) {
	var c model.Carpark
	err := row.Scan(
		&c.ID, &c.Address, &c.Latitude, &c.Longitude, &c.CarparkType, &c.ParkingSystem,
		&c.ShortTermParking, &c.FreeParking, &c.NightParking, &c.Decks, &c.GantryHeight,
		&c.Basement, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "carpark")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan carpark")
	}
	return &c, nil
}

func scanBudget(row scannable) (*model.Budget, error) {
	var b model.Budget
	err := row.Scan(
		&b.ID, &b.UserID, &b.CycleKey, &b.LimitAmount, &b.AccumulatedSpend,
		&b.WarningFraction, &b.CriticalFraction, &b.WarningSent, &b.CriticalSent, &b.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "budget")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan budget")
	}
	return &b, nil
}

func scanSession(row scannable) (*model.ParkingSession, error) {
	var (
		sess       model.ParkingSession
		endTime    sql.NullTime
		actualCost sql.NullFloat64
		budgetCap  sql.NullFloat64
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.CarparkID, &sess.CarparkName, &sess.CarparkAddress,
		&sess.StartTime, &endTime, &sess.IsActive, &sess.EstimatedCost, &actualCost, &budgetCap,
		&sess.WarningFraction, &sess.WarningSent, &sess.ExceededSent, &sess.AutoStarted, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "session")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}
	if endTime.Valid {
		sess.EndTime = &endTime.Time
	}
	if actualCost.Valid {
		sess.ActualCost = &actualCost.Float64
	}
	if budgetCap.Valid {
		sess.BudgetCap = &budgetCap.Float64
	}
	return &sess, nil
}

func collectSessions(rows *sql.Rows, wrapMsg string) ([]model.ParkingSession, error) {
	var sessions []model.ParkingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), wrapMsg)
}
