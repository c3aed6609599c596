package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Observer receives pool occupancy changes. observability.Prom satisfies it.
type Observer interface {
	PoolAcquired()
	PoolReleased()
}

// Pool bounds how many CPU-bound jobs (bcrypt, token checks) run at once.
// Callers wait for a slot on their own goroutine and give up when ctx ends.
type Pool struct {
	sem *semaphore.Weighted
	obs Observer
}

func New(size int, obs Observer) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}

	return &Pool{
		sem: semaphore.NewWeighted(int64(size)),
		obs: obs,
	}
}

func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	if p.obs != nil {
		p.obs.PoolAcquired()
		defer p.obs.PoolReleased()
	}

	return fn()
}
