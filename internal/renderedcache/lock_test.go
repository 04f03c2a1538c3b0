package renderedcache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndReleaseDoesNotBlockSubsequentAcquire(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.bin")

	l1 := Acquire(path, time.Second)
	l1.Release()

	l2 := Acquire(path, time.Second)
	l2.Release()
}

func TestAcquireProceedsOnContention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.bin")

	holder := Acquire(path, time.Second)
	defer holder.Release()

	// A second acquire against the same path must still return
	// (proceeding as though it held the lock) instead of blocking
	// forever, per §4.3's best-effort fallback.
	waiter := Acquire(path, 200*time.Millisecond)
	waiter.Release()
}
