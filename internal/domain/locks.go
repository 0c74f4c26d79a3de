package domain

import "sync"

// ClaimLocks serializes transitions on one claim identifier across the
// automated pipeline and the human review path. The automated pipeline and a
// human decision can race to mutate the same claim; both must hold the
// claim's lock around load-transition-save.
type ClaimLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewClaimLocks creates an empty lock registry.
func NewClaimLocks() *ClaimLocks {
	return &ClaimLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for a claim ID, creating it on first use.
func (l *ClaimLocks) Lock(claimID string) {
	l.mu.Lock()
	m, ok := l.locks[claimID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[claimID] = m
	}
	l.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for a claim ID.
func (l *ClaimLocks) Unlock(claimID string) {
	l.mu.Lock()
	m := l.locks[claimID]
	l.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}
