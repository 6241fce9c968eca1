// Package canvasqueue provides the concrete workflow.Dispatcher the
// engine uses in single-process deployments: an in-memory job queue
// with bounded worker concurrency and a dispatch rate cap (spec.md
// §5: ≤100 dispatches/s, ≤10 parallel workers), plus a Reconciler for
// the crash-recovery sweep of spec.md §4.4.6. A WaitGroup tracks
// in-flight goroutines against a cancelable shutdown context, and
// per-batch concurrency across canvases is bounded with
// golang.org/x/sync/semaphore rather than a hand-rolled channel
// semaphore.
package canvasqueue

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasemit"
)

// RunFunc executes one dispatched batch to completion.
// workflow.RunBatch satisfies this signature.
type RunFunc func(ctx context.Context, envelope canvas.DispatchEnvelope) error

// Queue is an in-process, bounded-concurrency implementation of
// workflow.Dispatcher.
type Queue struct {
	run     RunFunc
	emitter canvasemit.Emitter
	sem     *semaphore.Weighted
	limiter *tokenBucket
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Options configures a Queue.
type Options struct {
	// MaxConcurrentBatches bounds how many RunFunc invocations run at
	// once, across all canvases. Defaults to 10 per spec.md §5.
	MaxConcurrentBatches int64
	// MaxDispatchesPerSecond bounds how often a batch may start
	// running. Zero means the default of 100 per spec.md §5; a
	// negative value allows one dispatch per second.
	MaxDispatchesPerSecond int
}

// NewQueue builds a Queue that calls run for every enqueued envelope,
// bounded by opts. The returned Queue must be stopped with Shutdown
// when the caller is done with it, to release the rate-limiter
// goroutine.
func NewQueue(ctx context.Context, run RunFunc, emitter canvasemit.Emitter, opts Options) *Queue {
	if emitter == nil {
		emitter = canvasemit.NullEmitter{}
	}
	maxConcurrent := opts.MaxConcurrentBatches
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	ratePerSecond := opts.MaxDispatchesPerSecond
	if ratePerSecond == 0 {
		ratePerSecond = 100
	}

	qctx, cancel := context.WithCancel(ctx)
	return &Queue{
		run:     run,
		emitter: emitter,
		sem:     semaphore.NewWeighted(maxConcurrent),
		limiter: newTokenBucket(qctx, ratePerSecond),
		ctx:     qctx,
		cancel:  cancel,
	}
}

// Enqueue implements workflow.Dispatcher: it hands envelope to a new
// goroutine that waits its turn under the rate limiter and
// concurrency semaphore before calling run. Enqueue itself never
// blocks on either gate, so a caller inside a store transaction (as
// workflow.CreateBatch and workflow.FinalizeBatch both are) never
// stalls behind queue backpressure.
func (q *Queue) Enqueue(_ context.Context, envelope canvas.DispatchEnvelope) error {
	if q.ctx.Err() != nil {
		return fmt.Errorf("queue shut down, refusing batch %s", envelope.BatchID)
	}
	q.wg.Add(1)
	go q.process(envelope)
	return nil
}

func (q *Queue) process(envelope canvas.DispatchEnvelope) {
	defer q.wg.Done()

	if err := q.limiter.wait(q.ctx); err != nil {
		return
	}
	if err := q.sem.Acquire(q.ctx, 1); err != nil {
		return
	}
	defer q.sem.Release(1)

	if err := q.run(q.ctx, envelope); err != nil {
		q.emitter.Emit(q.ctx, canvasemit.Event{
			CanvasID: envelope.CanvasID,
			BatchID:  envelope.BatchID,
			Kind:     canvasemit.KindError,
			Message:  fmt.Sprintf("batch run failed: %v", err),
		})
	}
}

// Shutdown cancels the queue's context, so no in-flight batch waiting
// on the rate limiter or semaphore starts running, then waits for
// batches already past those gates to finish, or ctx to expire,
// whichever comes first.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.cancel()
	drained := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
