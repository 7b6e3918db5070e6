//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	logx "remindd/pkg/logx"

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
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

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

func (s *sqliteStore) Save(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.ID) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, event_id, title, description, location, start_ms, end_ms, important,
		                       tier_label, tier_offset_ms, scheduled_ms, created_ms, shown, dismissed)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   event_id=excluded.event_id, title=excluded.title, description=excluded.description,
		   location=excluded.location, start_ms=excluded.start_ms, end_ms=excluded.end_ms,
		   important=excluded.important, tier_label=excluded.tier_label,
		   tier_offset_ms=excluded.tier_offset_ms, scheduled_ms=excluded.scheduled_ms,
		   created_ms=excluded.created_ms, shown=excluded.shown, dismissed=excluded.dismissed`,
		r.ID, r.EventID, r.Title, nullStr(r.Description), nullStr(r.Location),
		r.Start.UnixMilli(), r.End.UnixMilli(), boolInt(r.Important),
		r.TierLabel, r.TierOffsetMS, r.ScheduledAt.UnixMilli(), r.CreatedAt.UnixMilli(),
		boolInt(r.Shown), boolInt(r.Dismissed),
	)
	return err
}

func (s *sqliteStore) Pending(ctx context.Context) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, title, COALESCE(description,''), COALESCE(location,''),
		        start_ms, end_ms, important, tier_label, tier_offset_ms,
		        scheduled_ms, created_ms, shown, dismissed
		 FROM reminders WHERE dismissed = 0 ORDER BY scheduled_ms ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var startMS, endMS, schedMS, createdMS int64
		var important, shown, dismissed int
		if err := rows.Scan(&r.ID, &r.EventID, &r.Title, &r.Description, &r.Location,
			&startMS, &endMS, &important, &r.TierLabel, &r.TierOffsetMS,
			&schedMS, &createdMS, &shown, &dismissed); err != nil {
			return nil, err
		}
		r.Start = time.UnixMilli(startMS)
		r.End = time.UnixMilli(endMS)
		r.ScheduledAt = time.UnixMilli(schedMS)
		r.CreatedAt = time.UnixMilli(createdMS)
		r.Important = important != 0
		r.Shown = shown != 0
		r.Dismissed = dismissed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkShown(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, "shown")
}

func (s *sqliteStore) MarkDismissed(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, "dismissed")
}

func (s *sqliteStore) setFlag(ctx context.Context, id, col string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(id) == "" {
		return nil
	}
	// col is one of two fixed literals, never user input.
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET `+col+` = 1 WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) IsDismissed(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	var dismissed int
	err := s.db.QueryRowContext(ctx, `SELECT dismissed FROM reminders WHERE id = ?`, id).Scan(&dismissed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return dismissed != 0, nil
}

func (s *sqliteStore) Cleanup(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}

	var lastMS int64
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_cleanup'`).Scan(&raw)
	if err == nil {
		lastMS, _ = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if lastMS > 0 && now.Sub(time.UnixMilli(lastMS)) < CleanupEvery {
		return 0, nil
	}

	cutoff := now.Add(-Retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE created_ms < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('last_cleanup', ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		strconv.FormatInt(now.UnixMilli(), 10),
	)
	if err != nil {
		return int(n), err
	}
	if n > 0 {
		s.log.Debug("reminder store cleanup", logx.Int64("purged", n))
	}
	return int(n), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
