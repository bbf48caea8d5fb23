package services

import "sync"

// bettorLocks serializes bet placement per bettor. Entries are removed when
// no caller holds or waits on them.
type bettorLocks struct {
	mu    sync.Mutex
	locks map[int64]*bettorLock
}

type bettorLock struct {
	mu   sync.Mutex
	refs int
}

func newBettorLocks() *bettorLocks {
	return &bettorLocks{locks: make(map[int64]*bettorLock)}
}

// Lock blocks until the bettor's critical section is free and returns its release func
func (l *bettorLocks) Lock(bettorID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[bettorID]
	if !ok {
		lock = &bettorLock{}
		l.locks[bettorID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, bettorID)
		}
		l.mu.Unlock()
	}
}

func (l *bettorLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
