package submitter

import "sync"

// accountLocks serializes submissions per signing account. Sequence numbers
// are handed out by the ledger per account, so two concurrent submissions
// from the same account would race for the same number and one would always
// lose. Different accounts submit freely in parallel.
type accountLocks struct {
	// mu guards the locks map itself.
	mu sync.Mutex

	locks map[string]*sync.Mutex
}

// newAccountLocks creates a new per-account lock set.
func newAccountLocks() *accountLocks {
	return &accountLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// lock acquires the lock for the given account address and returns the
// matching unlock function.
func (a *accountLocks) lock(address string) func() {
	a.mu.Lock()
	l, ok := a.locks[address]
	if !ok {
		l = &sync.Mutex{}
		a.locks[address] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}
