package lock

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker guards critical sections keyed by arbitrary strings. Implementations
// acquire multiple keys in sorted order so two callers asking for the same
// set of keys can never deadlock.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// SortedKeys returns a sorted, de-duplicated copy of keys.
func SortedKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// Local is an in-process Locker. Waiting for a key respects ctx. A key is
// forgotten once nobody holds or waits for it.
type Local struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*localSlot)}
}

func (l *Local) ref(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Local) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	type held struct {
		key  string
		slot *localSlot
	}
	acquired := make([]held, 0, len(keys))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i].slot.sem
			l.unref(acquired[i].key, acquired[i].slot)
		}
	}()

	for _, key := range SortedKeys(keys) {
		s := l.ref(key)
		select {
		case s.sem <- struct{}{}:
			acquired = append(acquired, held{key: key, slot: s})
		case <-ctx.Done():
			l.unref(key, s)
			return errors.Join(ErrNotAcquired, ctx.Err())
		}
	}

	return fn(ctx)
}

// size is the number of keys currently tracked.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
