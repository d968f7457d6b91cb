//go:build !unix

package storage

import "os"

// Advisory locks are unix-only; elsewhere the lock is a no-op and only
// in-process serialization applies.
func tryLock(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
