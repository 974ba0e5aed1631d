// ============================================================================
// fontmake-mp Worker Pool - Concurrent Compile Executor
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Purpose: Own the lifecycle of N worker goroutines and distribute jobs
//
// Design:
//   Worker Pool pattern:
//   1. A fixed number of worker goroutines, sized once at Start
//   2. Jobs distributed over a shared task channel
//   3. Outcomes collected over a result channel
//
// Architecture:
//   ┌─────────────┐
//   │ Dispatcher  │ --Submit()--> taskCh
//   └─────────────┘
//         ↑
//    ReceiveResult()
//         ↑
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ resultCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// Lifecycle:
//   1. NewPool(size, handler) - create channels
//   2. Start(ctx, n)          - launch n worker goroutines
//   3. Submit(job)            - queue a job
//   4. ReceiveResult()        - read one outcome
//   5. Stop()                 - close taskCh, wait for workers, close resultCh
//
// Concurrency control:
//   - taskCh/resultCh: buffered to the batch size so neither side blocks
//   - WaitGroup: tracks workers for graceful shutdown
//   - Mutex: guards started/stopped and is held across the send in Submit,
//     so Stop can never close taskCh underneath a pending send
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ChuLiYu/fontmake-mp/pkg/types"
)

var (
	// ErrPoolClosed means the pool has been stopped
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted means Start has not been called yet
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolFull means the task buffer has no room left
	ErrPoolFull = errors.New("worker pool task buffer is full")
)

// Pool manages a fixed set of concurrent workers.
type Pool struct {
	workers  []*Worker
	handler  Handler
	taskCh   chan types.Job
	resultCh chan types.JobOutcome
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	mu       sync.Mutex
}

// NewPool creates a pool whose task and result buffers hold bufferSize
// entries. Callers submitting a known batch should pass the batch size.
func NewPool(bufferSize int, handler Handler) *Pool {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Pool{
		workers:  make([]*Worker, 0),
		handler:  handler,
		taskCh:   make(chan types.Job, bufferSize),
		resultCh: make(chan types.JobOutcome, bufferSize),
	}
}

// Start launches workerCount workers sharing ctx.
func (p *Pool) Start(ctx context.Context, workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	if workerCount < 1 {
		return errors.New("worker count must be at least 1")
	}

	for i := 1; i <= workerCount; i++ {
		worker := newWorker(ctx, i, p.handler, p.taskCh, p.resultCh)
		p.workers = append(p.workers, worker)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(worker)
	}

	p.started = true
	return nil
}

// Submit queues a job. It never blocks: a full buffer yields ErrPoolFull.
func (p *Pool) Submit(job types.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolClosed
	}

	select {
	case p.taskCh <- job:
		return nil
	default:
		return ErrPoolFull
	}
}

// ReceiveResult blocks until an outcome is available. After Stop it drains
// any buffered outcomes and then returns ErrPoolClosed.
func (p *Pool) ReceiveResult() (types.JobOutcome, error) {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return types.JobOutcome{}, ErrPoolNotStarted
	}

	outcome, ok := <-p.resultCh
	if !ok {
		return types.JobOutcome{}, ErrPoolClosed
	}
	return outcome, nil
}

// Stop closes the task channel, waits for every worker to finish the jobs
// already queued, then closes the result channel.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskCh)
	p.mu.Unlock()

	p.wg.Wait()

	close(p.resultCh)
}

// GetWorkerCount returns the number of workers started.
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}
