// Package lock provides per-symbol mutual exclusion for strategy invocations.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/crypto_market_maker/internal/domain"
)

// LocalLocker is an in-process domain.Locker. The ttl is ignored; the lock is held
// until unlock is called.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, domain.ErrLockHeld
	}
	var once sync.Once
	return func() { once.Do(m.Unlock) }, nil
}

var _ domain.Locker = (*LocalLocker)(nil)
