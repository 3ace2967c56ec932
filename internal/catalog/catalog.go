// Package catalog records training runs, their epochs and their checkpoints
// in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/born-ml/pots/internal/checkpoint"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/metrics"
	"github.com/born-ml/pots/internal/trainer"
)

// Run is a row of the runs table.
type Run struct {
	ID           string
	Architecture string
	Task         core.Task
	Placement    string
	Monitor      string
	Status       string // running, completed, stopped, cancelled, failed
	Epochs       int
	Steps        int64
	BestEpoch    int
	BestValue    float64 // NaN when unknown
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time // Zero while running
}

// Epoch is a row of the epochs table.
type Epoch struct {
	Epoch     int
	Step      int64
	TrainLoss float64
	Metrics   metrics.Result
	Improved  bool
	Duration  time.Duration
}

// Checkpoint is a row of the checkpoints table.
type Checkpoint struct {
	ID        string
	Kind      checkpoint.Kind
	Epoch     int
	Step      int64
	Metric    string
	Value     float64
	CreatedAt time.Time
}

// Catalog is a SQLite-backed trainer.Recorder.
type Catalog struct {
	db *sql.DB
}

var _ trainer.Recorder = (*Catalog)(nil)

// Open opens or creates the catalog at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	// modernc applies _pragma parameters on every new connection.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}
	c := &Catalog{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return c, nil
}

// Close closes the database.
func (c *Catalog) Close() error { return c.db.Close() }

func (c *Catalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		architecture TEXT NOT NULL,
		task TEXT NOT NULL,
		placement TEXT NOT NULL,
		monitor TEXT NOT NULL,
		status TEXT NOT NULL,
		epochs INTEGER NOT NULL DEFAULT 0,
		steps INTEGER NOT NULL DEFAULT 0,
		best_epoch INTEGER NOT NULL DEFAULT 0,
		best_value REAL,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS epochs (
		run_id TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		step INTEGER NOT NULL,
		train_loss REAL,
		metrics TEXT NOT NULL,
		improved BOOLEAN NOT NULL,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, epoch),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		step INTEGER NOT NULL,
		metric TEXT NOT NULL,
		value REAL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON checkpoints(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// StartRun inserts a run in the running state.
func (c *Catalog) StartRun(ctx context.Context, info trainer.RunInfo) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO runs (id, architecture, task, placement, monitor, status, started_at)
		VALUES (?, ?, ?, ?, ?, 'running', ?)`,
		info.ID, info.Architecture, string(info.Task), info.Placement, info.Monitor,
		info.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordEpoch inserts an epoch summary.
func (c *Catalog) RecordEpoch(ctx context.Context, runID string, rec trainer.EpochRecord) error {
	finite := make(map[string]float64, len(rec.Metrics))
	for k, v := range rec.Metrics {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite[k] = v
		}
	}
	encoded, err := json.Marshal(finite)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO epochs (run_id, epoch, step, train_loss, metrics, improved, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Epoch, rec.Step, nullable(rec.TrainLoss), string(encoded), rec.Improved,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert epoch: %w", err)
	}
	return nil
}

// RecordCheckpoint inserts a checkpoint row.
func (c *Catalog) RecordCheckpoint(ctx context.Context, meta checkpoint.Meta) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints (id, run_id, kind, epoch, step, metric, value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.RunID, string(meta.Kind), meta.Epoch, meta.Step, meta.Metric,
		nullable(meta.Value), meta.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (c *Catalog) FinishRun(ctx context.Context, runID string, res *trainer.Result, runErr error) error {
	status := "completed"
	var errText string
	switch {
	case runErr != nil && trainer.IsCancellation(runErr):
		status, errText = "cancelled", runErr.Error()
	case runErr != nil:
		status, errText = "failed", runErr.Error()
	case res != nil && res.Stopped:
		status = "stopped"
	}
	var epochs, bestEpoch int
	var steps int64
	best := math.NaN()
	if res != nil {
		epochs, steps, bestEpoch, best = res.Epochs, res.Steps, res.BestEpoch, res.BestValue
	}
	_, err := c.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, epochs = ?, steps = ?, best_epoch = ?, best_value = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		status, epochs, steps, bestEpoch, nullable(best), errText,
		time.Now().UTC().Format(time.RFC3339Nano), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// ListRuns returns every run, most recent first.
func (c *Catalog) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, architecture, task, placement, monitor, status, epochs, steps,
		       best_epoch, best_value, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var task, started, finished string
		var best sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Architecture, &task, &r.Placement, &r.Monitor, &r.Status,
			&r.Epochs, &r.Steps, &r.BestEpoch, &best, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Task = core.Task(task)
		r.BestValue = orNaN(best)
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Epochs returns the epochs of a run in order.
func (c *Catalog) Epochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT epoch, step, train_loss, metrics, improved, duration_ms
		FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var out []Epoch
	for rows.Next() {
		var e Epoch
		var loss sql.NullFloat64
		var encoded string
		var ms int64
		if err := rows.Scan(&e.Epoch, &e.Step, &loss, &encoded, &e.Improved, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		e.TrainLoss = orNaN(loss)
		e.Duration = time.Duration(ms) * time.Millisecond
		if err := json.Unmarshal([]byte(encoded), &e.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics of epoch %d: %w", e.Epoch, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Checkpoints returns the checkpoints recorded for a run, oldest first.
// Checkpoints evicted by retention stay listed.
func (c *Catalog) Checkpoints(ctx context.Context, runID string) ([]Checkpoint, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, kind, epoch, step, metric, value, created_at
		FROM checkpoints WHERE run_id = ? ORDER BY created_at, epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var kind, created string
		var value sql.NullFloat64
		if err := rows.Scan(&cp.ID, &kind, &cp.Epoch, &cp.Step, &cp.Metric, &value, &created); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cp.Kind = checkpoint.Kind(kind)
		cp.Value = orNaN(value)
		cp.CreatedAt = parseTime(created)
		out = append(out, cp)
	}
	return out, rows.Err()
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
