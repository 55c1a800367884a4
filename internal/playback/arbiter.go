package playback

import "sync"

// Arbiter grants the device audio sink to one holder at a time. Acquiring a
// lease revokes the current holder before returning, so two sinks never
// overlap.
type Arbiter struct {
	mu     sync.Mutex
	holder *Lease
}

// Lease is the right to own the audio sink until it is released or revoked.
type Lease struct {
	arbiter *Arbiter
	owner   string
	revoke  func()
}

// NewArbiter creates an Arbiter with no holder.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Acquire makes owner the holder. The previous holder's revoke function runs
// synchronously, outside the arbiter lock, before Acquire returns.
func (a *Arbiter) Acquire(owner string, revoke func()) *Lease {
	lease := &Lease{arbiter: a, owner: owner, revoke: revoke}

	a.mu.Lock()
	previous := a.holder
	a.holder = lease
	a.mu.Unlock()

	if previous != nil && previous.revoke != nil {
		previous.revoke()
	}

	return lease
}

// Holder returns the owner of the current lease, or "" when free.
func (a *Arbiter) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.holder == nil {
		return ""
	}

	return a.holder.owner
}

// Release gives the sink back. Releasing a revoked or already released lease
// is a no-op.
func (l *Lease) Release() {
	l.arbiter.mu.Lock()
	defer l.arbiter.mu.Unlock()

	if l.arbiter.holder == l {
		l.arbiter.holder = nil
	}
}

// Owner returns the owner the lease was granted to.
func (l *Lease) Owner() string {
	return l.owner
}
