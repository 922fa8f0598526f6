// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package workerpool runs blocking work on a fixed set of goroutines fed by a FIFO queue.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrClosed is returned when submitting to a pool that is shutting down.
var ErrClosed = errors.New("workerpool: closed")

type job struct {
	ctx  context.Context
	run  func()
	skip func(error)
}

// Pool is a bounded worker pool. Tasks start in submission order.
type Pool struct {
	size int
	jobs chan job
	quit chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

// New starts a pool with workers goroutines and a queue of queueSize pending
// tasks. workers <= 0 uses runtime.NumCPU(); queueSize < 0 is treated as 0.
func New(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = goruntime.NumCPU()
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		size: workers,
		jobs: make(chan job, queueSize),
		quit: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	log.Debugf("worker pool started: workers=%d queue=%d", workers, queueSize)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int { return len(p.jobs) }

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		if err := j.ctx.Err(); err != nil {
			j.skip(err)
			continue
		}
		j.run()
	}
}

// enqueue blocks while the queue is full, until ctx ends or the pool closes.
func (p *Pool) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrClosed
	}
}

// Close stops accepting tasks and waits for queued and running tasks to
// finish, or for ctx to end. It is safe to call more than once.
func (p *Pool) Close(ctx context.Context) error {
	p.once.Do(func() {
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workerpool: drain interrupted: %w", ctx.Err())
	}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the task finished or was skipped.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the task completes or ctx ends. When ctx ends first the
// caller gets ctx.Err() and the task keeps running to completion on its worker.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit queues fn and returns its future. fn receives ctx. A task whose ctx
// is already done when a worker picks it up is skipped and its future reports ctx.Err().
// A panic inside fn is recovered and reported as an error.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}
	j := job{
		ctx: ctx,
		run: func() {
			defer close(f.done)
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("worker pool task panicked: %v", r)
					f.err = fmt.Errorf("workerpool: task panicked: %v", r)
				}
			}()
			f.val, f.err = fn(ctx)
		},
		skip: func(err error) {
			f.err = err
			close(f.done)
		},
	}
	if err := p.enqueue(ctx, j); err != nil {
		return nil, err
	}
	return f, nil
}

// Do submits fn and waits for its result.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	f, err := Submit(ctx, p, fn)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Wait(ctx)
}
