package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
	"github.com/richpaul1/promptopt/pkg/logging"
)

// SQLiteConfig tunes the on-disk job store.
type SQLiteConfig struct {
	Path           string `json:"path" yaml:"path"`
	MaxConnections int    `json:"max_connections" yaml:"max_connections"`
	EnableWAL      bool   `json:"enable_wal" yaml:"enable_wal"`
}

// SQLiteStore persists jobs and iterations in SQLite. Iterations are an
// append-only child table of jobs.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore opens (or creates) the job database.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = "promptopt_jobs.db"
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to open job database")
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	} else {
		db.SetMaxOpenConns(10)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, logger: logging.GetLogger()}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to initialize job schema")
	}

	if cfg.EnableWAL {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to enable WAL mode")
		}
	}

	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			store.logger.Warn(context.Background(), "failed to set pragma %s: %v", pragma, err)
		}
	}

	return store, nil
}

func (s *SQLiteStore) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS iterations (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs(id),
		round_number INTEGER NOT NULL,
		iteration_number INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_iterations_job ON iterations(job_id, round_number, iteration_number);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *core.PromptOptimizationJob) error {
	stored := *job
	stored.Iterations = nil // history lives in the iterations table

	payload, err := json.Marshal(&stored)
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to encode job")
	}

	now := time.Now().UnixNano()
	query := `
	INSERT INTO jobs (id, status, payload, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload, updated_at=excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query, job.ID, string(job.Status), payload, job.CreatedAt.UnixNano(), now)
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to save job")
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*core.PromptOptimizationJob, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM jobs WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.JobNotFound, "job not found"),
			errors.Fields{"job_id": id},
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to load job")
	}

	var job core.PromptOptimizationJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to decode job")
	}

	iterations, err := s.Iterations(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Iterations = iterations

	return &job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*core.PromptOptimizationJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*core.PromptOptimizationJob
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to scan job row")
		}

		var job core.PromptOptimizationJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to decode job")
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) AppendIteration(ctx context.Context, jobID string, iter core.OptimizationIteration) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, jobID).Scan(&exists)
	if err == sql.ErrNoRows {
		return errors.WithFields(
			errors.New(errors.JobNotFound, "job not found"),
			errors.Fields{"job_id": jobID},
		)
	}
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to check job")
	}

	payload, err := json.Marshal(&iter)
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to encode iteration")
	}

	query := `
	INSERT INTO iterations (id, job_id, round_number, iteration_number, payload, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		iter.ID, jobID, iter.RoundNumber, iter.IterationNumber, payload, iter.Timestamp.UnixNano())
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to append iteration")
	}
	return nil
}

func (s *SQLiteStore) Iterations(ctx context.Context, jobID string) ([]core.OptimizationIteration, error) {
	query := `
	SELECT payload FROM iterations
	WHERE job_id = ?
	ORDER BY round_number ASC, iteration_number ASC, created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to query iterations")
	}
	defer rows.Close()

	var iterations []core.OptimizationIteration
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to scan iteration row")
		}

		var iter core.OptimizationIteration
		if err := json.Unmarshal(payload, &iter); err != nil {
			return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to decode iteration")
		}
		iterations = append(iterations, iter)
	}
	return iterations, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
