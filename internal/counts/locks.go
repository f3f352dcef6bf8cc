package counts

import "sync"

// termLocks hands out one mutex per term ID. Entries are dropped once no
// caller holds or waits on them.
type termLocks struct {
	mu    sync.Mutex
	locks map[string]*termLock
}

type termLock struct {
	sync.Mutex
	refs int
}

func newTermLocks() *termLocks {
	return &termLocks{locks: make(map[string]*termLock)}
}

// lock blocks until the term's mutex is held and returns its release func.
func (l *termLocks) lock(termID string) func() {
	l.mu.Lock()
	tl, ok := l.locks[termID]
	if !ok {
		tl = &termLock{}
		l.locks[termID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()
	return func() {
		tl.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, termID)
		}
		l.mu.Unlock()
	}
}

// size returns the number of live term entries.
func (l *termLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
