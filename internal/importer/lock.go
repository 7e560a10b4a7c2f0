package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// WriterLock is the single mutex guarding the Querier→Importer boundary
// (spec.md §5): an in-process sync.Mutex gates goroutines before even
// attempting the cross-process file lock, so two callers in the same
// process never pay for a redundant flock syscall. Grounded on
// untoldecay-BeadsLog's cmd/bd/sync.go, which guards its own state
// transition the same way with flock.New(lockPath).
type WriterLock struct {
	mu   sync.Mutex
	file *flock.Flock
}

// NewWriterLock creates a lock backed by a file alongside the database
// (conventionally dbPath + ".lock").
func NewWriterLock(lockPath string) *WriterLock {
	return &WriterLock{file: flock.New(lockPath)}
}

// Acquire blocks until the lock is held or ctx is done. ctx is only
// consulted while polling for the file lock; waiting for the in-process
// mutex ignores it. The returned func releases both the process-local
// mutex and the file lock.
func (w *WriterLock) Acquire(ctx context.Context) (release func(), err error) {
	w.mu.Lock()
	locked, err := w.file.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("revindex: acquiring writer lock: %w", err)
	}
	if !locked {
		w.mu.Unlock()
		return nil, fmt.Errorf("revindex: writer lock not acquired")
	}
	return func() {
		_ = w.file.Unlock()
		w.mu.Unlock()
	}, nil
}
