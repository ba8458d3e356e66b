// Package logbook stores the operator's contact log in SQLite and exposes
// the narrow read surface the scorer needs: the worked set, per-call counts,
// last contact dates, and distinct-member tallies for award progress. Every
// mutation fires the registered invalidation hooks so cached views upstream
// never serve pre-mutation data.
package logbook

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"skccspotter/sqliteutil"
	"skccspotter/strutil"
)

// Contact is one logged QSO.
type Contact struct {
	ID           int64
	Callsign     string
	MemberNumber string // SKCC number with suffix, empty for non-members
	Suffix       string // Award suffix at QSO time ("", "C", "T", "S")
	KeyType      string // SK, BUG, SS when logged
	Band         string
	Mode         string
	When         time.Time
}

// Log wraps the SQLite database. A single connection keeps the modernc
// driver serialized without a busy handler.
type Log struct {
	db *sql.DB

	mu    sync.Mutex
	hooks []func()
}

// Open opens (or creates) the contact log at path and ensures the schema.
func Open(path string) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("logbook: database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("logbook: ensure dir: %w", err)
		}
	}
	// A stalled WAL or corrupt file would otherwise hang the first query.
	if _, err := os.Stat(path); err == nil {
		if _, err := sqliteutil.Preflight(path, "logbook", 5*time.Second, nil); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("logbook: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS contacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    callsign TEXT NOT NULL,
    member_number TEXT,
    suffix TEXT,
    key_type TEXT,
    band TEXT,
    mode TEXT,
    worked_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contacts_callsign ON contacts(callsign);
CREATE INDEX IF NOT EXISTS idx_contacts_worked_at ON contacts(worked_at);`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("logbook: init schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

// OnChange registers a hook invoked after every successful mutation. Hooks
// must be fast; they run on the mutating goroutine.
func (l *Log) OnChange(fn func()) {
	l.mu.Lock()
	l.hooks = append(l.hooks, fn)
	l.mu.Unlock()
}

func (l *Log) fireHooks() {
	l.mu.Lock()
	hooks := append(([]func())(nil), l.hooks...)
	l.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// AddContact inserts a QSO and returns its id.
func (l *Log) AddContact(c Contact) (int64, error) {
	call := strutil.NormalizeUpper(c.Callsign)
	if call == "" {
		return 0, errors.New("logbook: contact callsign is empty")
	}
	when := c.When
	if when.IsZero() {
		when = time.Now().UTC()
	}
	res, err := l.db.Exec(
		`INSERT INTO contacts (callsign, member_number, suffix, key_type, band, mode, worked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		call, c.MemberNumber, c.Suffix, c.KeyType, c.Band, c.Mode, when.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("logbook: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("logbook: insert id: %w", err)
	}
	l.fireHooks()
	return id, nil
}

// DeleteContact removes a QSO by id.
func (l *Log) DeleteContact(id int64) error {
	if _, err := l.db.Exec(`DELETE FROM contacts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("logbook: delete %d: %w", id, err)
	}
	l.fireHooks()
	return nil
}

// WorkedCallsigns returns the set of callsigns with at least one contact.
func (l *Log) WorkedCallsigns() (map[string]struct{}, error) {
	rows, err := l.db.Query(`SELECT DISTINCT callsign FROM contacts`)
	if err != nil {
		return nil, fmt.Errorf("logbook: worked callsigns: %w", err)
	}
	defer rows.Close()
	set := make(map[string]struct{})
	for rows.Next() {
		var call string
		if err := rows.Scan(&call); err != nil {
			return nil, fmt.Errorf("logbook: scan callsign: %w", err)
		}
		set[call] = struct{}{}
	}
	return set, rows.Err()
}

// ContactStat is the per-callsign summary behind the scorer's worked cache.
type ContactStat struct {
	Count int
	Last  time.Time
}

// ContactStats returns per-callsign totals and last contact dates in one
// query.
func (l *Log) ContactStats() (map[string]ContactStat, error) {
	rows, err := l.db.Query(`SELECT callsign, COUNT(*), MAX(worked_at) FROM contacts GROUP BY callsign`)
	if err != nil {
		return nil, fmt.Errorf("logbook: contact stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[string]ContactStat)
	for rows.Next() {
		var call string
		var n int
		var last int64
		if err := rows.Scan(&call, &n, &last); err != nil {
			return nil, fmt.Errorf("logbook: scan stat: %w", err)
		}
		stats[call] = ContactStat{Count: n, Last: time.Unix(last, 0).UTC()}
	}
	return stats, rows.Err()
}

// ContactCount returns how many times a callsign was worked.
func (l *Log) ContactCount(call string) (int, error) {
	call = strutil.NormalizeUpper(call)
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM contacts WHERE callsign = ?`, call).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("logbook: count %s: %w", call, err)
	}
	return n, nil
}

// LastContactDate returns when a callsign was last worked, ok=false when
// never worked.
func (l *Log) LastContactDate(call string) (time.Time, bool, error) {
	call = strutil.NormalizeUpper(call)
	var unix sql.NullInt64
	err := l.db.QueryRow(`SELECT MAX(worked_at) FROM contacts WHERE callsign = ?`, call).Scan(&unix)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("logbook: last contact %s: %w", call, err)
	}
	if !unix.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(unix.Int64, 0).UTC(), true, nil
}

// DistinctMemberCount counts distinct member callsigns worked on or after
// minDate (zero means all time), optionally restricted to the given award
// suffixes. Contacts without a member number never count.
func (l *Log) DistinctMemberCount(minDate time.Time, suffixes ...string) (int, error) {
	query := `SELECT COUNT(DISTINCT callsign) FROM contacts WHERE member_number <> ''`
	args := make([]any, 0, len(suffixes)+1)
	if !minDate.IsZero() {
		query += ` AND worked_at >= ?`
		args = append(args, minDate.UTC().Unix())
	}
	if len(suffixes) > 0 {
		query += ` AND suffix IN (?` + strings.Repeat(",?", len(suffixes)-1) + `)`
		for _, s := range suffixes {
			args = append(args, s)
		}
	}
	var n int
	if err := l.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("logbook: member count: %w", err)
	}
	return n, nil
}

// DistinctMemberCountByKey counts distinct member callsigns worked with the
// given key type, for Triple Key progress.
func (l *Log) DistinctMemberCountByKey(keyType string) (int, error) {
	var n int
	err := l.db.QueryRow(
		`SELECT COUNT(DISTINCT callsign) FROM contacts WHERE member_number <> '' AND key_type = ?`,
		keyType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("logbook: key count %s: %w", keyType, err)
	}
	return n, nil
}
