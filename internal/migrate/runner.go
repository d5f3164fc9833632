package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"schoolhub/internal/metrics"
	"schoolhub/migrations"
)

const (
	DefaultSuffix  = ".sql"
	defaultLockKey = "schoolhub_migrations"
)

// Ledger is the part of Tracker the runner depends on.
type Ledger interface {
	EnsureMigrationTable(ctx context.Context) error
	IsMigrationSucceeded(ctx context.Context, file string) (bool, error)
	RecordMigrationExecution(ctx context.Context, file string, durationMs int64, errorMessage string) error
}

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// FileState is the lifecycle of one migration file within a run.
type FileState string

const (
	StatePending   FileState = "pending"
	StateRunning   FileState = "running"
	StateCompleted FileState = "completed"
	StateFailed    FileState = "failed"
	StateSkipped   FileState = "skipped"
)

// MigrationExecutionError is fatal to the run that produced it.
type MigrationExecutionError struct {
	File string
	Err  error
}

func (e *MigrationExecutionError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.File, e.Err)
}

func (e *MigrationExecutionError) Unwrap() error { return e.Err }

// Summary lists the files of one run by outcome. Failed holds at most one
// file because the run stops at the first failure.
type Summary struct {
	Executed []string `json:"executed"`
	Skipped  []string `json:"skipped"`
	Failed   []string `json:"failed"`
}

func (s Summary) Counts() (executed, skipped, failed int) {
	return len(s.Executed), len(s.Skipped), len(s.Failed)
}

type Runner struct {
	ledger    Ledger
	db        Execer
	fsys      fs.FS
	suffix    string
	transform func(string) string
	locker    Locker
	lockKey   string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Runner)

func WithSuffix(suffix string) Option {
	return func(r *Runner) { r.suffix = suffix }
}

// WithTransform replaces the default StripConcurrently rewrite; nil disables it.
func WithTransform(fn func(string) string) Option {
	return func(r *Runner) { r.transform = fn }
}

func WithLocker(l Locker) Option {
	return func(r *Runner) { r.locker = l }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func NewRunner(ledger Ledger, db Execer, fsys fs.FS, opts ...Option) *Runner {
	r := &Runner{
		ledger:    ledger,
		db:        db,
		fsys:      fsys,
		suffix:    DefaultSuffix,
		transform: StripConcurrently,
		locker:    NoopLock{},
		lockKey:   defaultLockKey,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SourceFS returns the migrations directory dir, or the embedded set when
// dir is empty.
func SourceFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS()
	}
	return os.DirFS(dir)
}

// Files lists migration files in execution order. Only the top level of the
// source is read and files without the exact suffix are ignored.
func (r *Runner) Files() ([]string, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), r.suffix) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Pending returns the files the next Run would attempt.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	if err := r.ledger.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}
	files, err := r.Files()
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, file := range files {
		done, err := r.ledger.IsMigrationSucceeded(ctx, file)
		if err != nil {
			return nil, err
		}
		if !done {
			pending = append(pending, file)
		}
	}
	return pending, nil
}

// Run applies pending files in lexical order. Files recorded as successful
// are skipped; a previously failed file is attempted again. The first
// failure is recorded and returned as *MigrationExecutionError without
// attempting later files.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	release, err := r.locker.Acquire(ctx, r.lockKey)
	if err != nil {
		return summary, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer release()

	if err := r.ledger.EnsureMigrationTable(ctx); err != nil {
		return summary, err
	}
	files, err := r.Files()
	if err != nil {
		return summary, err
	}

	for _, file := range files {
		done, err := r.ledger.IsMigrationSucceeded(ctx, file)
		if err != nil {
			return summary, err
		}
		if done {
			summary.Skipped = append(summary.Skipped, file)
			r.metrics.ObserveMigration(string(StateSkipped), 0)
			r.logger.Debug("migration skipped", "file", file, "state", StateSkipped)
			continue
		}
		if err := r.apply(ctx, file); err != nil {
			summary.Failed = append(summary.Failed, file)
			r.logSummary(summary)
			return summary, err
		}
		summary.Executed = append(summary.Executed, file)
	}

	r.logSummary(summary)
	return summary, nil
}

func (r *Runner) apply(ctx context.Context, file string) error {
	body, err := fs.ReadFile(r.fsys, file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	script := string(body)
	if r.transform != nil {
		script = r.transform(script)
	}

	r.logger.Info("migration running", "file", file, "state", StateRunning)
	start := time.Now()
	var execErr error
	if strings.TrimSpace(script) != "" {
		_, execErr = r.db.Exec(ctx, script)
	}
	elapsed := time.Since(start)
	durationMs := elapsed.Milliseconds()

	if execErr != nil {
		r.metrics.ObserveMigration(string(StateFailed), elapsed)
		r.logger.Error("migration failed", "file", file, "state", StateFailed, "duration_ms", durationMs, "error", execErr)
		if err := r.ledger.RecordMigrationExecution(context.WithoutCancel(ctx), file, durationMs, execErr.Error()); err != nil {
			r.logger.Error("record migration failure", "file", file, "error", err)
		}
		return &MigrationExecutionError{File: file, Err: execErr}
	}

	if err := r.ledger.RecordMigrationExecution(ctx, file, durationMs, ""); err != nil {
		r.metrics.ObserveMigration(string(StateFailed), elapsed)
		r.logger.Error("migration applied but not recorded", "file", file, "duration_ms", durationMs, "error", err)
		return &MigrationExecutionError{File: file, Err: err}
	}
	r.metrics.ObserveMigration(string(StateCompleted), elapsed)
	r.logger.Info("migration applied", "file", file, "state", StateCompleted, "duration_ms", durationMs)
	return nil
}

func (r *Runner) logSummary(s Summary) {
	executed, skipped, failed := s.Counts()
	r.logger.Info("migrations finished", "executed", executed, "skipped", skipped, "failed", failed)
}
