package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

// fileStore keeps one append-only JSON Lines file per calendar day.
//
// Files:
//   - <dir>/YYYY-MM-DD.jsonl          (hot partitions)
//   - <dir>/archive/YYYY-MM-DD.jsonl  (archived partitions)
type fileStore struct {
	log logx.Logger
	dir string

	mu     sync.Mutex
	closed bool
}

const partitionExt = ".jsonl"

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Join(dir, "archive"), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) partition(day string) string {
	return filepath.Join(s.dir, day+partitionExt)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fileStore) Append(ctx context.Context, rec task.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	f, err := os.OpenFile(s.partition(rec.Day()), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync partition: %w", err)
	}
	return f.Close()
}

func (s *fileStore) Query(ctx context.Context, q Query) ([]task.ExecutionRecord, error) {
	f := Filter{Category: q.Category, SuccessOnly: q.SuccessOnly}
	var out []task.ExecutionRecord
	for _, day := range dayRange(q) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := s.readPartition(s.partition(day))
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if f.match(r) {
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *fileStore) Count(ctx context.Context, day string, f Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	recs, err := s.readPartition(s.partition(day))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if f.match(r) {
			n++
		}
	}
	return n, nil
}

func (s *fileStore) Archive(ctx context.Context, before time.Time) (int, error) {
	cutoff := before.Format(task.DayLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, partitionExt) {
			continue
		}
		day := strings.TrimSuffix(name, partitionExt)
		if _, err := time.Parse(task.DayLayout, day); err != nil {
			continue
		}
		// Layout sorts lexically, so string comparison is date comparison.
		if day >= cutoff {
			continue
		}
		if err := os.Rename(filepath.Join(s.dir, name), filepath.Join(s.dir, "archive", name)); err != nil {
			return moved, fmt.Errorf("archive %s: %w", name, err)
		}
		moved++
		s.log.Debug("partition archived", logx.String("day", day))
	}
	return moved, nil
}

// readPartition tolerates a missing file and skips torn lines.
func (s *fileStore) readPartition(path string) ([]task.ExecutionRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []task.ExecutionRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var rec task.ExecutionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.Warn("skipping malformed history line", logx.String("file", filepath.Base(path)), logx.Int("line", line), logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
