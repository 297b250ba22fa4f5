package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is an in-process keyed mutex for single-replica deployments
// and tests.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		slots: make(map[string]chan struct{}),
		wait:  defaultWait,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	slot := l.slot(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	return slot
}
