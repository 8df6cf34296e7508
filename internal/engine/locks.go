package engine

import (
	"sync"

	"github.com/google/uuid"
)

// claimLocks serializes lifecycle operations per claim. At most one
// transition may be in flight for a claim at a time, covering the whole
// fingerprint -> ledger call -> persist -> timeline sequence; operations on
// different claims proceed independently.
type claimLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*claimLock
}

type claimLock struct {
	mu   sync.Mutex
	refs int
}

func newClaimLocks() *claimLocks {
	return &claimLocks{locks: make(map[uuid.UUID]*claimLock)}
}

func (c *claimLocks) lock(id uuid.UUID) {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &claimLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
}

func (c *claimLocks) unlock(id uuid.UUID) {
	c.mu.Lock()
	l := c.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(c.locks, id)
	}
	c.mu.Unlock()

	l.mu.Unlock()
}
