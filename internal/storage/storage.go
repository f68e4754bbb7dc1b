// Package storage persists tabtimer's counters, per-domain usage and saved
// settings in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lotas/tabtimer/internal/types"
)

// RetentionDays is how many days of auto-close counts are kept.
const RetentionDays = 7

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema",
		SQL: `
CREATE TABLE auto_close_daily (
    day   TEXT PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE counters (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version:     2,
		Description: "domain usage",
		SQL: `
CREATE TABLE domain_usage (
    domain       TEXT PRIMARY KEY,
    total_ms     INTEGER NOT NULL DEFAULT 0,
    tabs         INTEGER NOT NULL DEFAULT 0,
    activations  INTEGER NOT NULL DEFAULT 0,
    visits       INTEGER NOT NULL DEFAULT 0,
    last_visited INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_domain_usage_total ON domain_usage(total_ms DESC);`,
	},
}

const (
	counterAutoClosed = "auto_closed_total"
	counterTabsOpened = "tabs_opened_total"

	keyEmptyEnabled  = "empty_tabs.enabled"
	keyEmptyCleanup  = "empty_tabs.cleanup_interval_ms"
	keyEmptyInterval = "empty_tabs.check_interval_ms"
)

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables WAL mode and runs any
// pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of the router's close path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// runMigrations ensures the schema_migrations table exists and applies any
// migration not yet recorded there.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// Store records statistics for the router. Days are bucketed in loc.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// New wraps an open database. A nil loc means time.Local.
func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{db: db, loc: loc}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) day(t time.Time) string {
	return t.In(s.loc).Format(time.DateOnly)
}

// RecordAutoClose counts one automatic close on the day of at and prunes
// days older than RetentionDays.
func (s *Store) RecordAutoClose(ctx context.Context, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auto_close_daily (day, count) VALUES (?, 1)
		 ON CONFLICT(day) DO UPDATE SET count = count + 1`,
		s.day(at),
	); err != nil {
		return fmt.Errorf("bump daily count: %w", err)
	}
	if err := bumpCounter(ctx, tx, counterAutoClosed); err != nil {
		return err
	}
	cutoff := s.day(at.AddDate(0, 0, -(RetentionDays - 1)))
	if _, err := tx.ExecContext(ctx, "DELETE FROM auto_close_daily WHERE day < ?", cutoff); err != nil {
		return fmt.Errorf("prune daily counts: %w", err)
	}
	return tx.Commit()
}

// AutoClosedOn returns the number of automatic closes on the calendar day
// containing day.
func (s *Store) AutoClosedOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count FROM auto_close_daily WHERE day = ?", s.day(day)).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query daily count: %w", err)
	}
	return n, nil
}

// TotalAutoClosed returns the all-time automatic close count.
func (s *Store) TotalAutoClosed(ctx context.Context) (int, error) {
	return s.counter(ctx, counterAutoClosed)
}

// TabsOpened returns how many web tabs have been opened while the daemon ran.
func (s *Store) TabsOpened(ctx context.Context) (int, error) {
	return s.counter(ctx, counterTabsOpened)
}

// DailyCount is one day's automatic close count.
type DailyCount struct {
	Day   string
	Count int
}

// DailyCounts returns the last days calendar days ending at now, oldest
// first. Days without closes are reported as zero.
func (s *Store) DailyCounts(ctx context.Context, now time.Time, days int) ([]DailyCount, error) {
	if days <= 0 {
		return nil, nil
	}
	first := s.day(now.AddDate(0, 0, -(days - 1)))
	rows, err := s.db.QueryContext(ctx, "SELECT day, count FROM auto_close_daily WHERE day >= ?", first)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]int)
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		byDay[d] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}

	out := make([]DailyCount, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := s.day(now.AddDate(0, 0, -i))
		out = append(out, DailyCount{Day: d, Count: byDay[d]})
	}
	return out, nil
}

// RecordTabOpened counts a visit to domain.
func (s *Store) RecordTabOpened(ctx context.Context, domain string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO domain_usage (domain, visits, last_visited) VALUES (?, 1, ?)
		 ON CONFLICT(domain) DO UPDATE SET
		     visits = visits + 1,
		     last_visited = MAX(last_visited, excluded.last_visited)`,
		domain, at.UnixMilli(),
	); err != nil {
		return fmt.Errorf("record visit %s: %w", domain, err)
	}
	if err := bumpCounter(ctx, tx, counterTabsOpened); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordDomainUsage adds the time, tab and activation counts in u to the
// running totals for u.Domain.
func (s *Store) RecordDomainUsage(ctx context.Context, u types.DomainUsage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domain_usage (domain, total_ms, tabs, activations, last_visited)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
		     total_ms = total_ms + excluded.total_ms,
		     tabs = tabs + excluded.tabs,
		     activations = activations + excluded.activations,
		     last_visited = MAX(last_visited, excluded.last_visited)`,
		u.Domain, u.TotalTime.Milliseconds(), u.TotalTabs, u.Activations, u.LastVisited.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record usage %s: %w", u.Domain, err)
	}
	return nil
}

// TopDomains returns up to limit domains ordered by time spent, then visits.
func (s *Store) TopDomains(ctx context.Context, limit int) ([]types.DomainUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, total_ms, tabs, activations, visits, last_visited
		 FROM domain_usage
		 ORDER BY total_ms DESC, visits DESC, domain
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	defer rows.Close()

	var result []types.DomainUsage
	for rows.Next() {
		var u types.DomainUsage
		var totalMS, lastMS int64
		if err := rows.Scan(&u.Domain, &totalMS, &u.TotalTabs, &u.Activations, &u.Visits, &lastMS); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		u.TotalTime = time.Duration(totalMS) * time.Millisecond
		if lastMS > 0 {
			u.LastVisited = time.UnixMilli(lastMS)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return result, nil
}

// SaveEmptyTabSettings stores the empty-tab cleanup settings.
func (s *Store) SaveEmptyTabSettings(ctx context.Context, es types.EmptyTabSettings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	values := map[string]string{
		keyEmptyEnabled:  strconv.FormatBool(es.Enabled),
		keyEmptyCleanup:  strconv.FormatInt(es.CleanupInterval.Milliseconds(), 10),
		keyEmptyInterval: strconv.FormatInt(es.CheckInterval.Milliseconds(), 10),
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			k, v,
		); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// LoadEmptyTabSettings returns the saved settings. ok is false when nothing
// has been saved yet.
func (s *Store) LoadEmptyTabSettings(ctx context.Context) (es types.EmptyTabSettings, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings WHERE key IN (?, ?, ?)",
		keyEmptyEnabled, keyEmptyCleanup, keyEmptyInterval)
	if err != nil {
		return es, false, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return es, false, fmt.Errorf("scan setting: %w", err)
		}
		switch k {
		case keyEmptyEnabled:
			es.Enabled, err = strconv.ParseBool(v)
		case keyEmptyCleanup:
			es.CleanupInterval, err = parseMillis(v)
		case keyEmptyInterval:
			es.CheckInterval, err = parseMillis(v)
		}
		if err != nil {
			return es, false, fmt.Errorf("setting %s: %w", k, err)
		}
		found++
	}
	if err := rows.Err(); err != nil {
		return es, false, fmt.Errorf("iterate settings: %w", err)
	}
	if found < 3 {
		return types.EmptyTabSettings{}, false, nil
	}
	return es, true, nil
}

func parseMillis(v string) (time.Duration, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (s *Store) counter(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT value FROM counters WHERE name = ?", name).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query counter %s: %w", name, err)
	}
	return n, nil
}

func bumpCounter(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO counters (name, value) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1`,
		name,
	)
	if err != nil {
		return fmt.Errorf("bump counter %s: %w", name, err)
	}
	return nil
}
