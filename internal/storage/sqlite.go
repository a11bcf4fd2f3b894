package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	logx "slacktranslator/pkg/logx"
)

//go:embed migrations.sql
var schemaFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	sq  sq.StatementBuilderType
	log logx.Logger
}

// openSQLite opens a single-connection database in WAL mode and applies the
// schema.
func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal: sqlite driver needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	b, err := schemaFS.ReadFile("migrations.sql")
	if err == nil {
		_, err = db.Exec(string(b))
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	log.Debug("sqlite journal ready", logx.String("path", path))
	return &sqliteStore{db: db, sq: sq.StatementBuilder.PlaceholderFormat(sq.Question), log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, r JobRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	q := s.sq.Insert("jobs").
		Columns("at", "job_id", "user_id", "channel_id", "engine", "src", "dst", "stage", "err", "took_ms").
		Values(r.At.UTC().Format(time.RFC3339Nano), r.JobID, nullStr(r.UserID), nullStr(r.Channel), nullStr(r.Engine),
			nullStr(r.From), nullStr(r.To), r.Stage, nullStr(r.Error), r.TookMS)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]JobRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	q := s.sq.Select("at", "job_id", "user_id", "channel_id", "engine", "src", "dst", "stage", "err", "took_ms").
		From("jobs").
		OrderBy("id DESC").
		Limit(uint64(limit))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var (
			r                                   JobRecord
			at                                  string
			user, channel, engine, src, dst, e2 sql.NullString
		)
		if err := rows.Scan(&at, &r.JobID, &user, &channel, &engine, &src, &dst, &r.Stage, &e2, &r.TookMS); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.UserID, r.Channel, r.Engine = user.String, channel.String, engine.String
		r.From, r.To, r.Error = src.String, dst.String, e2.String
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
