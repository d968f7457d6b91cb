package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"autopilot/internal/storage"
)

// DirLocks extends the per-task gates across processes that share an
// automation directory: one advisory lock file per task key. A gate must be
// held before its lock is taken.
type DirLocks struct {
	dir string
}

func NewDirLocks(dir string) *DirLocks { return &DirLocks{dir: dir} }

func (l *DirLocks) path(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(l.dir, name+".lock")
}

// TryLock takes the lock of key without waiting. ok is false when another
// process is running the task.
func (l *DirLocks) TryLock(key string) (release func(), ok bool, err error) {
	unlock, err := storage.TryLockFile(l.path(key))
	if errors.Is(err, storage.ErrLocked) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return unlock, true, nil
}

// Lock waits for the locks of all keys in sorted order. On error nothing
// stays held.
func (l *DirLocks) Lock(ctx context.Context, keys ...string) (release func(), err error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	var held []func()
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for i, k := range sorted {
		if i > 0 && k == sorted[i-1] {
			continue
		}
		unlock, err := storage.LockFile(ctx, l.path(k))
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, unlock)
	}
	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}
