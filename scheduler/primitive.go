package scheduler

import "sync"

// Primitive is a timeline fence/semaphore: a monotonically increasing
// counter a submission targets and a waiter polls (spec §4.8
// "CreatePrimitive/DestroyPrimitive" — a real backend's fence/semaphore
// pair collapses to this single counter here, since the scheduler owns
// no native device objects).
type Primitive struct {
	mu      sync.Mutex
	counter uint64
}

// Signal advances the primitive and returns the new value, the target
// a submission waits for.
func (p *Primitive) Signal() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter++
	return p.counter
}

// Value returns the primitive's current counter.
func (p *Primitive) Value() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counter
}

// Reached reports whether the primitive has signaled at least target.
func (p *Primitive) Reached(target uint64) bool {
	return p.Value() >= target
}

// CreatePrimitive allocates a fresh timeline primitive at zero.
func (s *Scheduler) CreatePrimitive() *Primitive { return &Primitive{} }

// DestroyPrimitive releases a timeline primitive. Go's GC owns the
// memory; this exists so callers mirror the create/destroy pairing
// spec §4.8 requires of a real backend (every CreatePrimitive has a
// matching DestroyPrimitive once no submission still targets it).
func (s *Scheduler) DestroyPrimitive(p *Primitive) {}
