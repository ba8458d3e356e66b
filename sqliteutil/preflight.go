// Package sqliteutil guards SQLite opens. A database left with a stalled
// WAL or torn pages can hang the first query for minutes; Preflight checks
// the file on a deadline and moves anything suspect out of the way so the
// caller always starts against a usable file.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PreflightResult reports what the check found and did.
type PreflightResult struct {
	Healthy         bool   // checkpoint and quick_check both passed
	Quarantined     bool   // the file was renamed aside
	QuarantinePath  string // new name of the main file when quarantined
	Elapsed         time.Duration
	CheckpointError error
	CheckError      error
}

// Preflight runs a WAL checkpoint and quick_check against the database at
// path within timeout. A failed check renames the file and its sidecars to
// a timestamped .bad name and reports Quarantined; the caller then opens a
// fresh database at the original path. role names the database in log
// lines. A nil logf falls back to the standard logger.
func Preflight(path, role string, timeout time.Duration, logf func(string, ...any)) (PreflightResult, error) {
	if logf == nil {
		logf = log.Printf
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	start := time.Now().UTC()
	res := PreflightResult{}
	files := statFiles(path)

	if strings.TrimSpace(path) == "" {
		return res, errors.New("preflight: empty path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return res, fmt.Errorf("preflight: ensure dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return res, fmt.Errorf("preflight: open %s db: %w", role, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", timeout.Milliseconds())); err != nil {
		return res, fmt.Errorf("preflight: set busy_timeout %s: %w", role, err)
	}

	res.CheckpointError = checkpoint(ctx, db)
	res.CheckError = quickCheck(ctx, db)
	res.Elapsed = time.Since(start)

	if res.CheckpointError == nil && res.CheckError == nil {
		res.Healthy = true
		return res, nil
	}

	// A deadline hit means the file itself is the hazard we exist to catch.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("preflight: %s db timed out after %s", role, timeout)
	}

	_ = db.Close()
	quarantinePath, qerr := quarantine(path, files, logf)
	if qerr != nil {
		return res, fmt.Errorf("preflight: %s db quarantine failed: %w (checkpoint=%v, quick_check=%v)",
			role, qerr, res.CheckpointError, res.CheckError)
	}
	res.Quarantined = true
	res.QuarantinePath = quarantinePath
	if res.CheckpointError != nil {
		logf("%s db preflight: checkpoint failed (%v); quarantined to %s; elapsed=%s",
			role, res.CheckpointError, quarantinePath, res.Elapsed)
	} else {
		logf("%s db preflight: quick_check failed (%v); quarantined to %s; elapsed=%s",
			role, res.CheckError, quarantinePath, res.Elapsed)
	}
	return res, nil
}

func checkpoint(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)")
	return err
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		if scanErr := rows.Scan(&status); scanErr != nil {
			return scanErr
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

type dbFile struct {
	path   string
	exists bool
}

// statFiles records which of the database file and its sidecars exist
// before the check runs, since a checkpoint can legitimately remove them.
func statFiles(path string) []dbFile {
	targets := []string{
		path,
		path + "-wal",
		path + "-shm",
		path + "-journal",
	}
	out := make([]dbFile, 0, len(targets))
	for _, t := range targets {
		_, err := os.Stat(t)
		out = append(out, dbFile{path: t, exists: err == nil})
	}
	return out
}

func quarantine(path string, files []dbFile, logf func(string, ...any)) (string, error) {
	ts := time.Now().UTC().Format("20060102T150405Z")
	quarantinePath := fmt.Sprintf("%s.bad-%s", path, ts)

	if len(files) == 0 {
		files = statFiles(path)
	}

	for _, f := range files {
		if !f.exists {
			continue
		}
		dest := f.path + ".bad-" + ts
		if _, err := os.Stat(f.path); err != nil {
			if os.IsNotExist(err) {
				logf("preflight: expected %s but it was missing during quarantine", f.path)
				continue
			}
			return "", err
		}
		if err := os.Rename(f.path, dest); err != nil {
			return "", err
		}
	}

	for _, f := range files {
		if f.exists {
			continue
		}
		if strings.HasSuffix(f.path, "-wal") || strings.HasSuffix(f.path, "-shm") || strings.HasSuffix(f.path, "-journal") {
			logf("preflight: expected sidecar %s but it was missing during quarantine", f.path)
		}
	}
	return quarantinePath, nil
}
