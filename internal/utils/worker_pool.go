package utils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolClosed is returned by Submit once Shutdown has been called.
	ErrPoolClosed = errors.New("worker pool is shut down")
	// ErrPoolBusy is returned by TrySubmit when every worker is busy and the queue is full.
	ErrPoolBusy = errors.New("worker pool is busy")
)

// WorkerPool runs submitted tasks on a fixed number of goroutines.
type WorkerPool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	busy atomic.Int64
}

// NewWorkerPool starts workers goroutines. The queue holds as many tasks as there are workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &WorkerPool{
		tasks: make(chan func(), workers),
	}

	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		wp.busy.Add(1)
		task()
		wp.busy.Add(-1)
	}
}

// Submit queues task. It blocks while the queue is full, until ctx is done.
// A task accepted before Shutdown always runs.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues task without waiting. It fails with ErrPoolBusy when the queue is full.
func (wp *WorkerPool) TrySubmit(task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.tasks <- task:
		return nil
	default:
		return ErrPoolBusy
	}
}

// Busy reports how many tasks are executing right now.
func (wp *WorkerPool) Busy() int {
	return int(wp.busy.Load())
}

// Shutdown stops accepting tasks and waits for queued ones to finish. Safe to call twice.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.tasks)
	}
	wp.mu.Unlock()

	wp.wg.Wait()
}
