package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"crosspost/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) HasPost(ctx context.Context, articleID, destination string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM posts WHERE article_id = ? AND destination = ?`, articleID, destination,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) PutPost(ctx context.Context, articleID, destination string, at time.Time) error {
	if strings.TrimSpace(articleID) == "" || strings.TrimSpace(destination) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(article_id, destination, posted_at) VALUES(?,?,?)
		 ON CONFLICT(article_id, destination) DO NOTHING`,
		articleID, destination, at.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, run_trigger, started_at, took_ms, articles, posted, failed, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.RunID, r.Trigger, r.StartedAt.UTC().Format(time.RFC3339Nano), r.TookMS,
		r.Articles, r.Posted, r.Failed, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = runsKept
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, run_trigger, started_at, took_ms, articles, posted, failed, COALESCE(err, '')
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			started string
		)
		if err := rows.Scan(&r.RunID, &r.Trigger, &started, &r.TookMS, &r.Articles, &r.Posted, &r.Failed, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
