package store

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindd/pkg/logx"
)

// Store is the persistence contract the engine depends on. Every call is
// fallible; the engine treats failures as "record absent / no-op".
type Store interface {
	// Save upserts a record by id. Saving the same id twice overwrites,
	// never duplicates.
	Save(ctx context.Context, r Record) error
	// Pending returns all records with Dismissed=false (regardless of
	// Shown), ordered by scheduled time ascending.
	Pending(ctx context.Context) ([]Record, error)
	// MarkShown / MarkDismissed set the respective flag; no-op if absent.
	MarkShown(ctx context.Context, id string) error
	MarkDismissed(ctx context.Context, id string) error
	// IsDismissed reports true only if the record exists AND is dismissed.
	IsDismissed(ctx context.Context, id string) (bool, error)
	// Cleanup purges records older than the retention window. It is a
	// no-op unless at least CleanupEvery has passed since the last sweep.
	// Returns the number of purged records.
	Cleanup(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if the store is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
