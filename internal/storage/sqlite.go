package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autopilot/internal/task"
	logx "autopilot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
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

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite busy_timeout: %w", err)
	}
	// WAL is unavailable on some filesystems; the rollback journal still works.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		st.log.Warn("sqlite WAL not enabled", logx.String("path", path), logx.Err(err))
	}
	// FULL so that a returned Append survives a power loss.
	if _, err := db.Exec("PRAGMA synchronous = FULL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite synchronous: %w", err)
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, rec task.ExecutionRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records(id, task_id, day, ts, category, type, success, reason, body)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		rec.ID, nullStr(rec.TaskID), rec.Day(), rec.Timestamp.UnixNano(),
		string(rec.Category), rec.Type, boolInt(rec.Success), nullStr(rec.Reason), string(body),
	)
	return err
}

func (s *sqliteStore) Query(ctx context.Context, q Query) ([]task.ExecutionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	days := dayRange(q)
	where := []string{"day >= ?", "day <= ?"}
	args := []any{days[len(days)-1], days[0]}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(q.Category))
	}
	if q.SuccessOnly {
		where = append(where, "success = 1")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM records WHERE `+strings.Join(where, " AND ")+` ORDER BY ts DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []task.ExecutionRecord
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec task.ExecutionRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			s.log.Warn("skipping malformed history row", logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Count(ctx context.Context, day string, f Filter) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	where := []string{"day = ?"}
	args := []any{day}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.SuccessOnly {
		where = append(where, "success = 1")
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE `+strings.Join(where, " AND "), args...).Scan(&n)
	return n, err
}

func (s *sqliteStore) Archive(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	cutoff := before.Format(task.DayLayout)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO records_archive SELECT * FROM records WHERE day < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("copy to archive: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE day < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete archived: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
