package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fielddesk/chatcore/pkg/models"
)

// Logger is the minimal structured-logging surface the Store depends
// on; *observability.Logger satisfies it.
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
}

// MetricsRecorder is the minimal metrics surface the Store depends on;
// *observability.Metrics satisfies it.
type MetricsRecorder interface {
	RecordStoreOp(op, result string)
	ObserveWriteTxDuration(seconds float64)
}

type noopLogger struct{}

func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) RecordStoreOp(string, string)          {}
func (noopMetrics) ObserveWriteTxDuration(float64)        {}

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA cache_size = -64000",
}

// identifierPattern constrains store, field, and collection names to
// safe SQL identifiers since they are interpolated into DDL; caller
// input never reaches table or column position.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

func validIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Config configures a Store's backing SQLite connections and retry
// discipline.
type Config struct {
	// WriterPath is the SQLite file (or DSN) used for the single writer
	// connection. Pass "file::memory:?cache=shared" style DSNs for tests.
	WriterPath string
	// ReaderPath defaults to WriterPath when empty.
	ReaderPath string
	// MaxBusyAttempts bounds the busy-retry loop before ErrBusy
	// propagates. Defaults to 5.
	MaxBusyAttempts int
	// BusyPolicy controls backoff timing between busy retries. Defaults
	// to DefaultRetryPolicy().
	BusyPolicy RetryPolicy

	Logger  Logger
	Metrics MetricsRecorder
}

// Store is a tenant-scoped, schema-declared record store backed by
// SQLite: one writer connection funnels every mutation through an
// eager BEGIN IMMEDIATE transaction with bounded busy-retry; reads use
// a separate connection pool.
type Store struct {
	writer *sql.DB
	reader *sql.DB

	maxBusyAttempts int
	busyPolicy      RetryPolicy

	log     Logger
	metrics MetricsRecorder

	mu      sync.RWMutex
	schemas map[string]models.Schema
}

// Open establishes the writer and reader connections and applies the
// standard pragma set to each.
func Open(cfg Config) (*Store, error) {
	if cfg.ReaderPath == "" {
		cfg.ReaderPath = cfg.WriterPath
	}
	if cfg.MaxBusyAttempts <= 0 {
		cfg.MaxBusyAttempts = 5
	}
	if cfg.BusyPolicy == (RetryPolicy{}) {
		cfg.BusyPolicy = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	writer, err := openConn(cfg.WriterPath, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	reader, err := openConn(cfg.ReaderPath, 10)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &Store{
		writer:          writer,
		reader:          reader,
		maxBusyAttempts: cfg.MaxBusyAttempts,
		busyPolicy:      cfg.BusyPolicy,
		log:             cfg.Logger,
		metrics:         cfg.Metrics,
		schemas:         make(map[string]models.Schema),
	}, nil
}

func openConn(dsn string, maxOpen int) (*sql.DB, error) {
	// _txlock=immediate makes every BeginTx acquire the write lock
	// eagerly rather than deferring to the first write statement.
	if !strings.Contains(dsn, "_txlock=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = dsn + sep + "_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Close releases both connections.
func (s *Store) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "busy")
}

// withWriteTx runs fn inside an eagerly-locked write transaction. Only
// SQLITE_BUSY outcomes are retried, with exponential backoff, up to
// maxBusyAttempts before surfacing ErrBusy; any other error returns
// immediately without consuming further attempts.
func (s *Store) withWriteTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	defer func() { s.metrics.ObserveWriteTxDuration(time.Since(start).Seconds()) }()

	var lastBusyErr error
	for attempt := 1; attempt <= s.maxBusyAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		runErr := s.runWriteTxOnce(ctx, fn)
		if runErr == nil {
			s.metrics.RecordStoreOp(op, "ok")
			return nil
		}
		if !isBusyErr(runErr) {
			s.metrics.RecordStoreOp(op, "error")
			return runErr
		}

		lastBusyErr = runErr
		s.metrics.RecordStoreOp(op, "busy_retry")
		if attempt < s.maxBusyAttempts {
			if sleepErr := waitForRetry(ctx, s.busyPolicy, attempt); sleepErr != nil {
				return sleepErr
			}
		}
	}

	s.metrics.RecordStoreOp(op, "busy_exhausted")
	return models.NewError(models.ErrBusy, "write contention exhausted retries", lastBusyErr)
}

func (s *Store) runWriteTxOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func ftsTableName(name string) string { return "fts_" + name }
func childTableName(name, field string) string { return name + "_" + field }
