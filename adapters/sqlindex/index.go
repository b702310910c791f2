// Package sqlindex keeps a queryable index of run summaries in SQLite or
// PostgreSQL. The run manifests stay the source of truth; the index can be
// rebuilt from them at any time.
package sqlindex

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"hypoforge/domain/core"
	"hypoforge/domain/run"
	"hypoforge/domain/stage"
	"hypoforge/internal/errors"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// sqlx only knows the cgo driver's "sqlite3" name.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Index implements ports.RunIndex on a SQL database.
type Index struct {
	db *sqlx.DB
}

// Open connects to the index database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*Index, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, errors.DatabaseError(fmt.Sprintf("create index directory: %v", err))
			}
		}
	case DriverPostgres:
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unknown run index driver %q", driver))
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "connect run index (%s)", driver)
	}
	if driver == DriverSQLite {
		// A single connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}
	if _, err := NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate run index")
	}
	return &Index{db: db}, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

type summaryRow struct {
	RunID            string  `db:"run_id"`
	Mode             string  `db:"mode"`
	Status           string  `db:"status"`
	DryRun           bool    `db:"dry_run"`
	StartedAt        string  `db:"started_at"`
	FinishedAt       string  `db:"finished_at"`
	StagesCompleted  int     `db:"stages_completed"`
	LoopRounds       int     `db:"loop_rounds"`
	Drafts           int     `db:"drafts"`
	Passed           int     `db:"passed"`
	Rejected         int     `db:"rejected"`
	Downgraded       int     `db:"downgraded"`
	Exported         int     `db:"exported"`
	MeanConfidence   float64 `db:"mean_confidence"`
	MedianConfidence float64 `db:"median_confidence"`
	TotalStageMs     int64   `db:"total_stage_ms"`
	SlowestStage     string  `db:"slowest_stage"`
	FailedStage      string  `db:"failed_stage"`
	FailureReason    string  `db:"failure_reason"`
}

const columns = `run_id, mode, status, dry_run, started_at, finished_at, stages_completed, loop_rounds,
	drafts, passed, rejected, downgraded, exported, mean_confidence, median_confidence, total_stage_ms,
	slowest_stage, failed_stage, failure_reason`

// Upsert inserts or replaces the summary of one run.
func (x *Index) Upsert(ctx context.Context, s run.Summary) error {
	_, err := x.db.NamedExecContext(ctx, `
		INSERT INTO run_index (`+columns+`)
		VALUES (:run_id, :mode, :status, :dry_run, :started_at, :finished_at, :stages_completed, :loop_rounds,
			:drafts, :passed, :rejected, :downgraded, :exported, :mean_confidence, :median_confidence,
			:total_stage_ms, :slowest_stage, :failed_stage, :failure_reason)
		ON CONFLICT (run_id) DO UPDATE SET
			mode = excluded.mode,
			status = excluded.status,
			dry_run = excluded.dry_run,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			stages_completed = excluded.stages_completed,
			loop_rounds = excluded.loop_rounds,
			drafts = excluded.drafts,
			passed = excluded.passed,
			rejected = excluded.rejected,
			downgraded = excluded.downgraded,
			exported = excluded.exported,
			mean_confidence = excluded.mean_confidence,
			median_confidence = excluded.median_confidence,
			total_stage_ms = excluded.total_stage_ms,
			slowest_stage = excluded.slowest_stage,
			failed_stage = excluded.failed_stage,
			failure_reason = excluded.failure_reason
	`, toRow(s))
	if err != nil {
		return errors.Wrapf(err, "upsert run %s", s.RunID)
	}
	return nil
}

// Get returns the summary of one run.
func (x *Index) Get(ctx context.Context, runID core.RunID) (*run.Summary, error) {
	var row summaryRow
	err := x.db.GetContext(ctx, &row, x.db.Rebind(`SELECT `+columns+` FROM run_index WHERE run_id = ?`), string(runID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get run %s", runID)
	}
	s, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the most recently started runs first. A limit <= 0 returns all.
func (x *Index) List(ctx context.Context, limit int) ([]run.Summary, error) {
	query := `SELECT ` + columns + ` FROM run_index ORDER BY started_at DESC, run_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []summaryRow
	if err := x.db.SelectContext(ctx, &rows, x.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	out := make([]run.Summary, 0, len(rows))
	for _, row := range rows {
		s, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func toRow(s run.Summary) summaryRow {
	return summaryRow{
		RunID:            string(s.RunID),
		Mode:             string(s.Mode),
		Status:           string(s.Status),
		DryRun:           s.DryRun,
		StartedAt:        formatTime(s.StartedAt),
		FinishedAt:       formatTime(s.FinishedAt),
		StagesCompleted:  s.StagesCompleted,
		LoopRounds:       s.LoopRounds,
		Drafts:           s.Drafts,
		Passed:           s.Passed,
		Rejected:         s.Rejected,
		Downgraded:       s.Downgraded,
		Exported:         s.Exported,
		MeanConfidence:   s.MeanConfidence,
		MedianConfidence: s.MedianConfidence,
		TotalStageMs:     s.TotalStageMs,
		SlowestStage:     string(s.SlowestStage),
		FailedStage:      string(s.FailedStage),
		FailureReason:    s.FailureReason,
	}
}

func fromRow(r summaryRow) (run.Summary, error) {
	started, err := parseTime(r.StartedAt)
	if err != nil {
		return run.Summary{}, fmt.Errorf("run %s: started_at: %w", r.RunID, err)
	}
	finished, err := parseTime(r.FinishedAt)
	if err != nil {
		return run.Summary{}, fmt.Errorf("run %s: finished_at: %w", r.RunID, err)
	}
	return run.Summary{
		RunID:            core.RunID(r.RunID),
		Mode:             run.Mode(r.Mode),
		Status:           run.Status(r.Status),
		DryRun:           r.DryRun,
		StartedAt:        started,
		FinishedAt:       finished,
		StagesCompleted:  r.StagesCompleted,
		LoopRounds:       r.LoopRounds,
		Drafts:           r.Drafts,
		Passed:           r.Passed,
		Rejected:         r.Rejected,
		Downgraded:       r.Downgraded,
		Exported:         r.Exported,
		MeanConfidence:   r.MeanConfidence,
		MedianConfidence: r.MedianConfidence,
		TotalStageMs:     r.TotalStageMs,
		SlowestStage:     stage.Name(r.SlowestStage),
		FailedStage:      stage.Name(r.FailedStage),
		FailureReason:    r.FailureReason,
	}, nil
}

// sortableTime has a fixed width so that text order is time order.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t core.Timestamp) string {
	if t.IsZero() {
		return ""
	}
	return t.Time().UTC().Format(sortableTime)
}

func parseTime(s string) (core.Timestamp, error) {
	if s == "" {
		return core.Timestamp{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return core.Timestamp{}, err
	}
	return core.NewTimestamp(t), nil
}
