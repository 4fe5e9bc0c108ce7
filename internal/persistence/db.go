// Package persistence provides SQLite-based storage for run and sweep results.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/evosim/internal/experiment"
)

// ErrNotFound is returned when a run or sweep id is unknown.
var ErrNotFound = errors.New("not found")

const schemaVersion = "1"

// DB wraps a SQLite connection for result persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		variant TEXT NOT NULL,
		seed INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		r REAL NOT NULL,
		mean_coop REAL NOT NULL,
		mean_insp REAL NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_series (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		coop REAL NOT NULL,
		insp REAL NOT NULL,
		PRIMARY KEY (run_id, idx)
	);

	CREATE TABLE IF NOT EXISTS sweeps (
		id TEXT PRIMARY KEY,
		variant TEXT NOT NULL,
		seed INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		degree REAL NOT NULL,
		realizations INTEGER NOT NULL,
		runs INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sweep_points (
		sweep_id TEXT NOT NULL REFERENCES sweeps(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		r REAL NOT NULL,
		eta REAL NOT NULL,
		mean_coop REAL NOT NULL,
		mean_insp REAL NOT NULL,
		std_coop REAL NOT NULL,
		std_insp REAL NOT NULL,
		runs INTEGER NOT NULL,
		PRIMARY KEY (sweep_id, idx)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_sweeps_started ON sweeps(started_at);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return err
	}
	return db.SaveMeta(ctx, "schema_version", schemaVersion)
}

// RunSummary is a stored run without its series.
type RunSummary struct {
	ID         string    `json:"id" db:"id"`
	Variant    string    `json:"variant" db:"variant"`
	Seed       int64     `json:"seed" db:"seed"`
	Agents     int       `json:"agents" db:"agents"`
	R          float64   `json:"r" db:"r"`
	MeanCoop   float64   `json:"mean_coop" db:"mean_coop"`
	MeanInsp   float64   `json:"mean_insp" db:"mean_insp"`
	StartedAt  time.Time `json:"started_at" db:"-"`
	FinishedAt time.Time `json:"finished_at" db:"-"`
}

// RunRecord is a stored run with its series and the configuration it ran with.
type RunRecord struct {
	*experiment.Result
	Config json.RawMessage `json:"config,omitempty"`
}

// SweepSummary is a stored sweep without its points.
type SweepSummary struct {
	ID           string    `json:"id" db:"id"`
	Variant      string    `json:"variant" db:"variant"`
	Seed         int64     `json:"seed" db:"seed"`
	Agents       int       `json:"agents" db:"agents"`
	Degree       float64   `json:"degree" db:"degree"`
	Realizations int       `json:"realizations" db:"realizations"`
	Runs         int       `json:"runs" db:"runs"`
	StartedAt    time.Time `json:"started_at" db:"-"`
	FinishedAt   time.Time `json:"finished_at" db:"-"`
}

// SweepRecord is a stored sweep with its points.
type SweepRecord struct {
	*experiment.SweepResult
	Config json.RawMessage `json:"config,omitempty"`
}

// Timestamps are stored as unix nanoseconds.
type stamps struct {
	StartedNs  int64  `db:"started_at"`
	FinishedNs int64  `db:"finished_at"`
	ConfigJSON string `db:"config_json"`
}

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func marshalConfig(cfg any) (string, error) {
	if cfg == nil {
		return "{}", nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// SaveRun writes a run and its series. cfg is stored alongside as JSON and
// may be nil.
func (db *DB) SaveRun(ctx context.Context, res *experiment.Result, cfg any) error {
	cfgJSON, err := marshalConfig(cfg)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, variant, seed, agents, r, mean_coop, mean_insp, started_at, finished_at, config_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Variant, res.Seed, res.Agents, res.R, res.MeanCoop, res.MeanInsp,
		res.StartedAt.UnixNano(), res.FinishedAt.UnixNano(), cfgJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", res.ID, err)
	}

	stmt, err := tx.PreparexContext(ctx, "INSERT INTO run_series (run_id, idx, coop, insp) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range res.CoopLevel {
		insp := 0.0
		if i < len(res.InspLevel) {
			insp = res.InspLevel[i]
		}
		if _, err := stmt.ExecContext(ctx, res.ID, i, c, insp); err != nil {
			return fmt.Errorf("insert run %s series %d: %w", res.ID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run saved", "id", res.ID, "generations", len(res.CoopLevel))
	return nil
}

// LoadRun reads a run and its series.
func (db *DB) LoadRun(ctx context.Context, id string) (*RunRecord, error) {
	var row struct {
		RunSummary
		stamps
	}
	err := db.conn.GetContext(ctx, &row, `SELECT id, variant, seed, agents, r, mean_coop, mean_insp,
		started_at, finished_at, config_json FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	var series []struct {
		Coop float64 `db:"coop"`
		Insp float64 `db:"insp"`
	}
	if err := db.conn.SelectContext(ctx, &series,
		"SELECT coop, insp FROM run_series WHERE run_id = ? ORDER BY idx", id); err != nil {
		return nil, fmt.Errorf("load run %s series: %w", id, err)
	}

	res := &experiment.Result{
		ID:         row.ID,
		Variant:    row.Variant,
		Seed:       row.Seed,
		Agents:     row.Agents,
		R:          row.R,
		MeanCoop:   row.MeanCoop,
		MeanInsp:   row.MeanInsp,
		StartedAt:  fromNanos(row.StartedNs),
		FinishedAt: fromNanos(row.FinishedNs),
		CoopLevel:  make([]float64, len(series)),
		InspLevel:  make([]float64, len(series)),
	}
	for i, s := range series {
		res.CoopLevel[i] = s.Coop
		res.InspLevel[i] = s.Insp
	}
	return &RunRecord{Result: res, Config: json.RawMessage(row.ConfigJSON)}, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	var rows []struct {
		RunSummary
		stamps
	}
	err := db.conn.SelectContext(ctx, &rows, `SELECT id, variant, seed, agents, r, mean_coop, mean_insp,
		started_at, finished_at, config_json FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]RunSummary, len(rows))
	for i, r := range rows {
		out[i] = r.RunSummary
		out[i].StartedAt = fromNanos(r.StartedNs)
		out[i].FinishedAt = fromNanos(r.FinishedNs)
	}
	return out, nil
}

// SaveSweep writes a sweep and its points.
func (db *DB) SaveSweep(ctx context.Context, res *experiment.SweepResult, cfg any) error {
	cfgJSON, err := marshalConfig(cfg)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO sweeps
		(id, variant, seed, agents, degree, realizations, runs, started_at, finished_at, config_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Variant, res.Seed, res.Agents, res.Degree, res.Realizations, res.Runs,
		res.StartedAt.UnixNano(), res.FinishedAt.UnixNano(), cfgJSON,
	)
	if err != nil {
		return fmt.Errorf("insert sweep %s: %w", res.ID, err)
	}

	for i, p := range res.Points {
		_, err := tx.ExecContext(ctx, `INSERT INTO sweep_points
			(sweep_id, idx, r, eta, mean_coop, mean_insp, std_coop, std_insp, runs)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.ID, i, p.R, p.Eta, p.MeanCoop, p.MeanInsp, p.StdCoop, p.StdInsp, p.Runs,
		)
		if err != nil {
			return fmt.Errorf("insert sweep %s point %d: %w", res.ID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("sweep saved", "id", res.ID, "points", len(res.Points))
	return nil
}

// LoadSweep reads a sweep and its points.
func (db *DB) LoadSweep(ctx context.Context, id string) (*SweepRecord, error) {
	var row struct {
		SweepSummary
		stamps
	}
	err := db.conn.GetContext(ctx, &row, `SELECT id, variant, seed, agents, degree, realizations, runs,
		started_at, finished_at, config_json FROM sweeps WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load sweep %s: %w", id, err)
	}

	var points []experiment.Point
	if err := db.conn.SelectContext(ctx, &points, `SELECT r, eta, mean_coop, mean_insp, std_coop, std_insp, runs
		FROM sweep_points WHERE sweep_id = ? ORDER BY idx`, id); err != nil {
		return nil, fmt.Errorf("load sweep %s points: %w", id, err)
	}

	res := &experiment.SweepResult{
		ID:           row.ID,
		Variant:      row.Variant,
		Seed:         row.Seed,
		Agents:       row.Agents,
		Degree:       row.Degree,
		Realizations: row.Realizations,
		Runs:         row.SweepSummary.Runs,
		Points:       points,
		StartedAt:    fromNanos(row.StartedNs),
		FinishedAt:   fromNanos(row.FinishedNs),
	}
	return &SweepRecord{SweepResult: res, Config: json.RawMessage(row.ConfigJSON)}, nil
}

// ListSweeps returns the most recent sweeps, newest first.
func (db *DB) ListSweeps(ctx context.Context, limit int) ([]SweepSummary, error) {
	var rows []struct {
		SweepSummary
		stamps
	}
	err := db.conn.SelectContext(ctx, &rows, `SELECT id, variant, seed, agents, degree, realizations, runs,
		started_at, finished_at, config_json FROM sweeps ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sweeps: %w", err)
	}

	out := make([]SweepSummary, len(rows))
	for i, r := range rows {
		out[i] = r.SweepSummary
		out[i].StartedAt = fromNanos(r.StartedNs)
		out[i].FinishedAt = fromNanos(r.FinishedNs)
	}
	return out, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}
	return value, err
}
