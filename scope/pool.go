package scope

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jonwraymond/bulwark/fault"
)

// Pool bounds the number of concurrently held acquisition slots, isolating
// callers from each other when a dependency degrades.
type Pool struct {
	sem *semaphore.Weighted
	max int64

	mu        sync.Mutex
	active    int64
	maxActive int64
	rejected  int64
}

// NewPool creates a pool allowing up to max concurrent slots.
// Non-positive max defaults to 10.
func NewPool(max int64) *Pool {
	if max <= 0 {
		max = 10
	}
	return &Pool{
		sem: semaphore.NewWeighted(max),
		max: max,
	}
}

// Acquire takes a slot, waiting no longer than ctx allows. A full pool with
// an expired or cancelled context yields a resource fault.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		p.rejected++
		p.mu.Unlock()
		return fault.WrapKind(fault.KindResource, err, "pool acquire")
	}

	p.mu.Lock()
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.mu.Unlock()
	return nil
}

// TryAcquire takes a slot without waiting.
func (p *Pool) TryAcquire() bool {
	if !p.sem.TryAcquire(1) {
		p.mu.Lock()
		p.rejected++
		p.mu.Unlock()
		return false
	}

	p.mu.Lock()
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.mu.Unlock()
	return true
}

// Release returns a slot to the pool.
func (p *Pool) Release() {
	p.mu.Lock()
	if p.active > 0 {
		p.active--
	}
	p.mu.Unlock()
	p.sem.Release(1)
}

// PoolMetrics contains pool occupancy statistics.
type PoolMetrics struct {
	Active    int64
	MaxActive int64
	Available int64
	Max       int64
	Rejected  int64
}

// Metrics returns current pool occupancy.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolMetrics{
		Active:    p.active,
		MaxActive: p.maxActive,
		Available: p.max - p.active,
		Max:       p.max,
		Rejected:  p.rejected,
	}
}
