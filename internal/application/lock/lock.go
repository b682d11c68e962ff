// Package lock serializes document updates with a bounded wait.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned when the lock was not acquired within the wait bound
var ErrTimeout = errors.New("lock wait timed out")

// DefaultTimeout bounds how long a caller waits for the lock
const DefaultTimeout = 30 * time.Second

// Mode selects the locking granularity
type Mode string

const (
	// ModeGlobal serializes every update through one slot
	ModeGlobal Mode = "global"
	// ModeDocument serializes updates per document number
	ModeDocument Mode = "document"
)

// Locker acquires exclusive access to a key. The returned release function
// is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

const globalKey = "*"

type slot struct {
	ch   chan struct{}
	refs int
}

type keyedLocker struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
	global  bool
}

// New creates a Locker for mode. A non-positive timeout uses DefaultTimeout.
func New(mode Mode, timeout time.Duration) (Locker, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch mode {
	case ModeGlobal, ModeDocument:
	case "":
		mode = ModeDocument
	default:
		return nil, fmt.Errorf("unknown lock mode %q", mode)
	}

	return &keyedLocker{
		slots:   make(map[string]*slot),
		timeout: timeout,
		global:  mode == ModeGlobal,
	}, nil
}

// Acquire waits up to the configured timeout for key
func (l *keyedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.global {
		key = globalKey
	}

	s := l.ref(key)

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	select {
	case s.ch <- struct{}{}:
	case <-waitCtx.Done():
		l.unref(key)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, l.timeout)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key)
		})
	}, nil
}

func (l *keyedLocker) ref(key string) *slot {
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

func (l *keyedLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
