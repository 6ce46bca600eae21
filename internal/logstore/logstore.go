// Package logstore persists build log entries in sqlite and serves them to
// the log feed.
package logstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pomdtr/assetpipe/internal/logfeed"
	_ "modernc.org/sqlite"
)

var ErrEntryNotFound = errors.New("log entry not found")

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createEntryTable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create entries table: %w", err)
	}

	return &Store{db: db}, nil
}

func createEntryTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		buildId TEXT NOT NULL,
		time TEXT NOT NULL,
		level TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec("CREATE INDEX IF NOT EXISTS entries_build ON entries (buildId)")
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores entries in a single transaction.
func (s *Store) Insert(ctx context.Context, entries ...logfeed.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO entries (buildId, time, level, kind, message, path, detail) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.Time.IsZero() {
			e.Time = time.Now()
		}

		if _, err := stmt.ExecContext(ctx, e.BuildID, e.Time.UTC().Format(time.RFC3339Nano), e.Level, e.Kind, e.Message, e.Path, e.Detail); err != nil {
			return fmt.Errorf("failed to insert log entry: %w", err)
		}
	}

	return tx.Commit()
}

func where(filter logfeed.Filter) (string, []any) {
	var clauses []string
	var args []any

	if filter.BuildID != "" {
		clauses = append(clauses, "buildId = ?")
		args = append(args, filter.BuildID)
	}

	for _, field := range []struct {
		column string
		values []string
	}{
		{"kind", filter.Kinds},
		{"level", filter.Levels},
	} {
		if len(field.values) == 0 {
			continue
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(field.values)), ", ")
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", field.column, placeholders))
		for _, v := range field.values {
			args = append(args, v)
		}
	}

	if filter.Search != "" {
		clauses = append(clauses, "(message LIKE '%' || ? || '%' OR path LIKE '%' || ? || '%')")
		args = append(args, filter.Search, filter.Search)
	}

	if len(clauses) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Fetch returns one page of entries, newest first.
func (s *Store) Fetch(ctx context.Context, q logfeed.Query) (logfeed.Result, error) {
	if q.PageSize <= 0 {
		q.PageSize = logfeed.DefaultPageSize
	}

	if q.Page < 1 {
		q.Page = 1
	}

	clause, args := where(q.Filter)

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries"+clause, args...).Scan(&count); err != nil {
		return logfeed.Result{}, fmt.Errorf("failed to count log entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, buildId, time, level, kind, message, path, detail FROM entries"+clause+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, q.PageSize, (q.Page-1)*q.PageSize)...,
	)
	if err != nil {
		return logfeed.Result{}, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]logfeed.Entry, 0, q.PageSize)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return logfeed.Result{}, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return logfeed.Result{}, err
	}

	return logfeed.Result{
		Entries: entries,
		Pages:   (count + q.PageSize - 1) / q.PageSize,
	}, nil
}

func (s *Store) Get(ctx context.Context, id int64) (logfeed.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, buildId, time, level, kind, message, path, detail FROM entries WHERE id = ?", id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return logfeed.Entry{}, ErrEntryNotFound
	}

	return e, err
}

// LatestBuild returns the id of the most recent build, or an empty string.
func (s *Store) LatestBuild(ctx context.Context) (string, error) {
	var buildID string
	err := s.db.QueryRowContext(ctx, "SELECT buildId FROM entries ORDER BY id DESC LIMIT 1").Scan(&buildID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	return buildID, err
}

// Prune removes entries of all but the keep most recent builds.
func (s *Store) Prune(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE buildId NOT IN (
		SELECT buildId FROM entries GROUP BY buildId ORDER BY MAX(id) DESC LIMIT ?
	)`, keep)

	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (logfeed.Entry, error) {
	var e logfeed.Entry
	var ts string
	if err := row.Scan(&e.ID, &e.BuildID, &ts, &e.Level, &e.Kind, &e.Message, &e.Path, &e.Detail); err != nil {
		return logfeed.Entry{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return logfeed.Entry{}, fmt.Errorf("invalid time for entry %d: %w", e.ID, err)
	}
	e.Time = t

	return e, nil
}
