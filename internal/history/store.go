// Package history persists swap samples, per-app usage, and remediation
// actions to an embedded SQLite database for after-the-fact analysis.
// Persistence is strictly best-effort: any storage error disables the store
// for the remainder of the process rather than interfering with monitoring.
package history

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bc-dunia/swapwatch/internal/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS swap_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	swap_percent REAL NOT NULL,
	swap_used_bytes INTEGER NOT NULL,
	swap_total_bytes INTEGER NOT NULL,
	mem_percent REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_swap_samples_ts ON swap_samples(timestamp);

CREATE TABLE IF NOT EXISTS app_swap_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	app_name TEXT NOT NULL,
	swap_bytes INTEGER NOT NULL,
	swap_percent REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_app_swap_usage_ts ON app_swap_usage(timestamp);

CREATE TABLE IF NOT EXISTS actions_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	action_type TEXT NOT NULL,
	target TEXT NOT NULL,
	result TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_log_ts ON actions_log(timestamp);
`

// Config controls the store's pathing, pruning horizon, and write rate.
type Config struct {
	DBPath         string
	RetentionDays  int
	SampleInterval time.Duration
}

// Sample is one system-level swap measurement.
type Sample struct {
	SwapPercent    float64
	SwapUsedBytes  uint64
	SwapTotalBytes uint64
	MemPercent     float64
}

// Store wraps the SQLite database. All methods are safe for concurrent use.
// A nil *Store and a disabled store are both valid no-op targets.
type Store struct {
	db       *sql.DB
	cfg      Config
	disabled atomic.Bool

	mu         sync.Mutex
	lastSample time.Time

	nowFunc func() time.Time
}

// Open creates or opens the database, applies the schema, and prunes rows
// past the retention horizon. Open errors are returned so the caller can log
// and continue without history rather than aborting.
func Open(cfg Config) (*Store, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Minute
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// SQLite allows one writer at a time; funnel everything through a
	// single connection instead of racing on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{db: db, cfg: cfg, nowFunc: time.Now}
	if n, err := s.prune(); err != nil {
		log.Printf("[History] Initial prune failed: %v", err)
	} else if n > 0 {
		log.Printf("[History] Pruned %d rows older than %d days", n, cfg.RetentionDays)
	}
	return s, nil
}

// Disabled returns a store that drops every write. Used when history is
// turned off or the database failed to open.
func Disabled() *Store {
	s := &Store{nowFunc: time.Now}
	s.disabled.Store(true)
	return s
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enabled reports whether the store is still accepting writes.
func (s *Store) Enabled() bool {
	return s != nil && !s.disabled.Load()
}

// RecordSample persists a system sample and the ranked per-app usage.
// Writes are throttled to one per SampleInterval; intermediate samples are
// dropped silently.
func (s *Store) RecordSample(sample Sample, usage []telemetry.AppUsage) {
	if !s.Enabled() {
		return
	}

	now := s.nowFunc()

	s.mu.Lock()
	if !s.lastSample.IsZero() && now.Sub(s.lastSample) < s.cfg.SampleInterval {
		s.mu.Unlock()
		return
	}
	s.lastSample = now
	s.mu.Unlock()

	ts := now.Unix()
	tx, err := s.db.Begin()
	if err != nil {
		s.fail("begin sample write", err)
		return
	}

	_, err = tx.Exec(
		`INSERT INTO swap_samples (timestamp, swap_percent, swap_used_bytes, swap_total_bytes, mem_percent)
		 VALUES (?, ?, ?, ?, ?)`,
		ts, sample.SwapPercent, sample.SwapUsedBytes, sample.SwapTotalBytes, sample.MemPercent,
	)
	if err == nil {
		for _, app := range usage {
			if app.SwapBytes == 0 {
				continue
			}
			_, err = tx.Exec(
				`INSERT INTO app_swap_usage (timestamp, app_name, swap_bytes, swap_percent)
				 VALUES (?, ?, ?, ?)`,
				ts, app.Name, app.SwapBytes, app.SwapPercent,
			)
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		tx.Rollback()
		s.fail("write sample", err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.fail("commit sample", err)
	}
}

// RecordAction persists one remediation action. Actions are never throttled:
// restarts are rare and each one matters for the audit trail.
func (s *Store) RecordAction(actionType, target, result string) {
	if !s.Enabled() {
		return
	}

	_, err := s.db.Exec(
		`INSERT INTO actions_log (timestamp, action_type, target, result) VALUES (?, ?, ?, ?)`,
		s.nowFunc().Unix(), actionType, target, result,
	)
	if err != nil {
		s.fail("write action", err)
	}
}

// ActionRecord is one row from the audit trail.
type ActionRecord struct {
	Timestamp  time.Time
	ActionType string
	Target     string
	Result     string
}

// RecentActions returns up to limit actions, newest first.
func (s *Store) RecentActions(limit int) ([]ActionRecord, error) {
	if !s.Enabled() {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT timestamp, action_type, target, result FROM actions_log ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []ActionRecord
	for rows.Next() {
		var ts int64
		var a ActionRecord
		if err := rows.Scan(&ts, &a.ActionType, &a.Target, &a.Result); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Timestamp = time.Unix(ts, 0)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// prune deletes rows past the retention horizon and returns the count.
func (s *Store) prune() (int64, error) {
	cutoff := s.nowFunc().AddDate(0, 0, -s.cfg.RetentionDays).Unix()

	var total int64
	for _, table := range []string{"swap_samples", "app_swap_usage", "actions_log"} {
		res, err := s.db.Exec("DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// fail disables the store permanently. One bad disk should not turn every
// monitoring tick into an error stream.
func (s *Store) fail(op string, err error) {
	if s.disabled.Swap(true) {
		return
	}
	log.Printf("[History] %s failed, disabling persistence: %v", op, err)
}
