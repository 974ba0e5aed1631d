// ============================================================================
// fontmake-mp Worker - Job Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Work unit that runs compile jobs, each Worker runs in its own goroutine
//
// How it works:
//   Each Worker is an independent goroutine that loops:
//   1. Receive job from taskCh (blocking wait)
//   2. Hand it to the Handler (the job runner)
//   3. Send the outcome to resultCh
//   4. Repeat until taskCh is closed
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for job := range taskCh      │   │
//   │  │   ├─ handler(ctx, job, id)   │   │
//   │  │   └─ send outcome            │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// Outcome delivery:
//   resultCh is sized by the pool to hold every submitted job, so the send
//   never blocks for long and no outcome is ever dropped.
//
// ============================================================================

package worker

import (
	"context"

	"github.com/ChuLiYu/fontmake-mp/pkg/types"
)

// Worker represents a work execution unit
type Worker struct {
	id       int                     // 1-based identifier, reported in outcomes
	ctx      context.Context         // run context shared by the pool
	handler  Handler                 // job runner
	taskCh   <-chan types.Job        // jobs to execute
	resultCh chan<- types.JobOutcome // outcomes back to the dispatcher
}

func newWorker(ctx context.Context, id int, handler Handler, taskCh <-chan types.Job, resultCh chan<- types.JobOutcome) *Worker {
	return &Worker{
		id:       id,
		ctx:      ctx,
		handler:  handler,
		taskCh:   taskCh,
		resultCh: resultCh,
	}
}

// Run is the main loop of Worker. It exits once taskCh is closed and drained.
func (w *Worker) Run() {
	for job := range w.taskCh {
		w.resultCh <- w.handler(w.ctx, job, w.id)
	}
}
