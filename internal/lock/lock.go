// Package lock serializes ingests of the same document id, either within
// one process or across processes through Redis.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

// Backend names accepted in configuration.
const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// Locker hands out exclusive locks per key. Implementations must be safe to
// call from multiple goroutines.
type Locker interface {
	// Lock blocks until key is held or ctx ends. The returned function
	// releases the lock and must be called exactly once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Keyed is an in-process Locker holding one mutex per key. Entries are
// removed once no goroutine holds or waits for them.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyed returns an empty Keyed locker.
func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

// Lock implements Locker.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, s)
		return nil, fmt.Errorf("lock: wait for %q: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.release(key, s)
		})
	}, nil
}

func (k *Keyed) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Len returns the number of keys currently held or waited for.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

// Open constructs the Locker selected by cfg.Backend.
func Open(cfg config.LockConfig, log *slog.Logger) (Locker, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewKeyed(), nil
	case BackendRedis:
		return NewRedis(cfg.RedisAddr, cfg.TTL, log)
	default:
		return nil, fmt.Errorf("lock: unknown backend %q (valid: local, redis)", cfg.Backend)
	}
}
