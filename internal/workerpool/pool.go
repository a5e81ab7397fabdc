package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of generation jobs allowed to run at once
const DefaultSize = 5

// ErrStopped is returned when a job is submitted after Stop
var ErrStopped = errors.New("worker pool stopped")

// Pool bounds the number of concurrent jobs. Jobs beyond capacity wait and
// are admitted in arrival order.
type Pool struct {
	size    int64
	sem     *semaphore.Weighted
	running atomic.Int64
	waiting atomic.Int64
	stopped atomic.Bool
}

// New creates a pool with size slots; size <= 0 uses DefaultSize
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Size returns the number of slots
func (p *Pool) Size() int {
	return int(p.size)
}

// Running returns the number of jobs holding a slot
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Waiting returns the number of jobs queued for a slot
func (p *Pool) Waiting() int {
	return int(p.waiting.Load())
}

// Stop refuses new jobs. Jobs already admitted run to completion.
func (p *Pool) Stop() {
	p.stopped.Store(true)
}

// Wait blocks until every admitted job has released its slot
func (p *Pool) Wait(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, p.size); err != nil {
		return err
	}
	p.sem.Release(p.size)
	return nil
}

type outcome[T any] struct {
	value T
	err   error
}

// Submit runs job on the pool and waits for its result.
//
// If ctx ends while the job is still queued, the job never runs. If ctx ends
// after the job started, Submit returns ctx.Err() and the job keeps running
// to completion on a context that is no longer cancelled with ctx.
func Submit[T any](ctx context.Context, p *Pool, job func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.stopped.Load() {
		return zero, ErrStopped
	}

	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return zero, fmt.Errorf("waiting for worker: %w", err)
	}

	done := make(chan outcome[T], 1)
	jobCtx := context.WithoutCancel(ctx)
	p.running.Add(1)
	go func() {
		defer func() {
			p.running.Add(-1)
			p.sem.Release(1)
		}()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("job panicked: %v", r)}
			}
		}()
		v, err := job(jobCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
