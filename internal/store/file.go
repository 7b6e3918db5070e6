package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "remindd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.reminders.snapshot.json (periodic snapshot incl. last cleanup)
//   - <prefix>.reminders.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File

	records     map[string]Record
	lastCleanup time.Time

	writes int
}

type journalOp struct {
	Op     string  `json:"op"` // save | shown | dismissed
	ID     string  `json:"id,omitempty"`
	Record *Record `json:"record,omitempty"`
}

type snapshotFile struct {
	LastCleanup time.Time         `json:"last_cleanup,omitempty"`
	Records     map[string]Record `json:"records"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".reminders.snapshot.json"
	journalPath := prefix + ".reminders.journal.jsonl"

	s := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		records:      map[string]Record{},
	}
	_ = s.loadSnapshot(snapPath)
	_ = s.replayJournal(journalPath)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journalFile = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Save(ctx context.Context, r Record) error {
	_ = ctx
	if strings.TrimSpace(r.ID) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("reminder journal closed")
	}
	s.records[r.ID] = r
	return s.appendLocked(journalOp{Op: "save", Record: &r})
}

func (s *fileStore) Pending(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if !r.Dismissed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *fileStore) MarkShown(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, "shown")
}

func (s *fileStore) MarkDismissed(ctx context.Context, id string) error {
	return s.setFlag(ctx, id, "dismissed")
}

func (s *fileStore) setFlag(ctx context.Context, id, op string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		// Absent ids are a no-op by contract.
		return nil
	}
	switch op {
	case "shown":
		r.Shown = true
	case "dismissed":
		r.Dismissed = true
	}
	s.records[id] = r
	if s.journalFile == nil {
		return errors.New("reminder journal closed")
	}
	return s.appendLocked(journalOp{Op: op, ID: id})
}

func (s *fileStore) IsDismissed(ctx context.Context, id string) (bool, error) {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, nil
	}
	return r.Dismissed, nil
}

func (s *fileStore) Cleanup(ctx context.Context, now time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastCleanup.IsZero() && now.Sub(s.lastCleanup) < CleanupEvery {
		return 0, nil
	}

	purged := 0
	for id, r := range s.records {
		if now.Sub(r.CreatedAt) > Retention {
			delete(s.records, id)
			purged++
		}
	}
	s.lastCleanup = now

	// Compact so the journal doesn't replay purged records on next open.
	if err := s.compactLocked(); err != nil {
		return purged, err
	}
	if purged > 0 {
		s.log.Debug("reminder store cleanup", logx.Int("purged", purged))
	}
	return purged, nil
}

func (s *fileStore) appendLocked(op journalOp) error {
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(op); err != nil {
		return err
	}
	s.writes++
	if s.writes%500 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("reminder snapshot compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	snap := snapshotFile{LastCleanup: s.lastCleanup, Records: s.records}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if s.journalFile == nil {
		return nil
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshotFile
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for id, r := range snap.Records {
		s.records[id] = r
	}
	s.lastCleanup = snap.LastCleanup
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			continue
		}
		switch op.Op {
		case "save":
			if op.Record != nil && op.Record.ID != "" {
				s.records[op.Record.ID] = *op.Record
			}
		case "shown":
			if r, ok := s.records[op.ID]; ok {
				r.Shown = true
				s.records[op.ID] = r
			}
		case "dismissed":
			if r, ok := s.records[op.ID]; ok {
				r.Dismissed = true
				s.records[op.ID] = r
			}
		}
	}
	return sc.Err()
}
