package telemetry

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the SQLite run log.
type DB struct {
	*sql.DB
}

// OpenDB opens (creating if needed) the run log at path and applies any
// pending migrations.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	// A single connection keeps in-memory databases alive and serialises
	// writes from the control loop.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("configure run log: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// MigrateUp applies all embedded migrations.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (db *DB) SchemaVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// RunInfo describes a run when it starts.
type RunInfo struct {
	StartedAt  time.Time
	BaseSpeed  int
	Kp, Kd, Ki float64
}

// Run is a stored run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while unfinished
	BaseSpeed  int
	Kp, Kd, Ki float64
	ExitReason string
	Samples    int
}

// RunSink is a Sink writing the samples of one run.
type RunSink struct {
	db       *DB
	id       string
	finished bool
}

// NewRun inserts a run and returns a sink for its samples.
func (db *DB) NewRun(info RunInfo) (*RunSink, error) {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_ns, base_speed, kp, kd, ki) VALUES (?, ?, ?, ?, ?, ?)`,
		id, info.StartedAt.UnixNano(), info.BaseSpeed, info.Kp, info.Kd, info.Ki,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &RunSink{db: db, id: id}, nil
}

// ID returns the run's UUID.
func (r *RunSink) ID() string { return r.id }

// Record stores one sample.
func (r *RunSink) Record(s Sample) error {
	_, err := r.db.Exec(
		`INSERT INTO samples (run_id, seq, elapsed_ns, heading, diff, left_speed, right_speed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.id, s.Seq, int64(s.Elapsed), s.Heading, s.Diff, s.Left, s.Right,
	)
	if err != nil {
		return fmt.Errorf("insert sample %d: %w", s.Seq, err)
	}
	return nil
}

// Finish marks the run finished with the given exit reason.
func (r *RunSink) Finish(at time.Time, reason string) error {
	if r.finished {
		return nil
	}
	_, err := r.db.Exec(`UPDATE runs SET finished_ns = ?, exit_reason = ? WHERE run_id = ?`,
		at.UnixNano(), reason, r.id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.id, err)
	}
	r.finished = true
	return nil
}

// Close finishes the run if Finish was not called. It does not close the
// database.
func (r *RunSink) Close() error {
	return r.Finish(time.Now(), "closed")
}

// Runs lists stored runs, most recent first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`
		SELECT r.run_id, r.started_ns, r.finished_ns, r.base_speed, r.kp, r.kd, r.ki, r.exit_reason,
		       (SELECT COUNT(*) FROM samples s WHERE s.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.BaseSpeed,
			&run.Kp, &run.Kd, &run.Ki, &run.ExitReason, &run.Samples); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.Unix(0, started)
		if finished.Valid {
			run.FinishedAt = time.Unix(0, finished.Int64)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Samples returns the samples of a run in sequence order.
func (db *DB) Samples(runID string) ([]Sample, error) {
	rows, err := db.Query(`
		SELECT seq, elapsed_ns, heading, diff, left_speed, right_speed
		FROM samples WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			s       Sample
			elapsed int64
		)
		if err := rows.Scan(&s.Seq, &elapsed, &s.Heading, &s.Diff, &s.Left, &s.Right); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Elapsed = time.Duration(elapsed)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
