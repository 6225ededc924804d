package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context ended or the retries ran out.
var ErrNotAcquired = errors.New("lock not acquired")

type Unlock func()

type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
	// TryLock returns ok=false immediately when key is held elsewhere.
	TryLock(ctx context.Context, key string) (unlock Unlock, ok bool, err error)
}

// Local serialises holders of the same key inside one process.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	s := l.acquireSlot(key)
	select {
	case s.ch <- struct{}{}:
		return l.unlocker(key, s), nil
	case <-ctx.Done():
		l.releaseSlot(key, s)
		return nil, ctx.Err()
	}
}

func (l *Local) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	s := l.acquireSlot(key)
	select {
	case s.ch <- struct{}{}:
		return l.unlocker(key, s), true, nil
	default:
		l.releaseSlot(key, s)
		return nil, false, nil
	}
}

func (l *Local) unlocker(key string, s *slot) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.releaseSlot(key, s)
		})
	}
}
