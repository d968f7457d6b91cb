//go:build unix

package engine

import (
	"context"
	"testing"
	"time"
)

func TestDirLocksAcrossHolders(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	daemon, cli := NewDirLocks(dir), NewDirLocks(dir)

	release, err := cli.Lock(context.Background(), "adhoc:publishing/social", "b1", "b1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := daemon.TryLock("b1"); err != nil || ok {
		t.Fatalf("TryLock on a held key: ok=%v err=%v", ok, err)
	}
	if unlock, ok, err := daemon.TryLock("other"); err != nil || !ok {
		t.Fatalf("TryLock on a free key: ok=%v err=%v", ok, err)
	} else {
		unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := daemon.Lock(ctx, "a0", "b1"); err == nil {
		t.Fatal("Lock succeeded while a key was held")
	}
	// The partially taken lock on a0 was released.
	if unlock, ok, _ := cli.TryLock("a0"); !ok {
		t.Fatal("a0 left locked after a failed Lock")
	} else {
		unlock()
	}

	release()
	release()
	unlock, ok, err := daemon.TryLock("b1")
	if err != nil || !ok {
		t.Fatalf("TryLock after release: ok=%v err=%v", ok, err)
	}
	unlock()
}
