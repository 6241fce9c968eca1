package canvasqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowcanvas/canvasengine/canvas"
)

func TestQueueRunsEnqueuedBatches(t *testing.T) {
	var ran int32
	var wg sync.WaitGroup
	wg.Add(3)

	run := func(_ context.Context, _ canvas.DispatchEnvelope) error {
		atomic.AddInt32(&ran, 1)
		wg.Done()
		return nil
	}

	q := NewQueue(context.Background(), run, nil, Options{MaxConcurrentBatches: 2, MaxDispatchesPerSecond: 1000})
	defer func() { _ = q.Shutdown(context.Background()) }()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(context.Background(), canvas.DispatchEnvelope{BatchID: "b"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	waitOrTimeout(t, &wg, 2*time.Second)
	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Fatalf("ran = %d, want 3", got)
	}
}

func TestQueueBoundsConcurrency(t *testing.T) {
	const maxConcurrent = 2
	var inflight int32
	var maxSeen int32
	var wg sync.WaitGroup
	wg.Add(6)

	run := func(_ context.Context, _ canvas.DispatchEnvelope) error {
		n := atomic.AddInt32(&inflight, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		wg.Done()
		return nil
	}

	q := NewQueue(context.Background(), run, nil, Options{MaxConcurrentBatches: maxConcurrent, MaxDispatchesPerSecond: 1000})
	defer func() { _ = q.Shutdown(context.Background()) }()

	for i := 0; i < 6; i++ {
		_ = q.Enqueue(context.Background(), canvas.DispatchEnvelope{BatchID: "b"})
	}

	waitOrTimeout(t, &wg, 3*time.Second)
	if atomic.LoadInt32(&maxSeen) > maxConcurrent {
		t.Fatalf("observed %d concurrent runs, want <= %d", maxSeen, maxConcurrent)
	}
}

func TestQueueShutdownWaitsForInFlightWork(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	run := func(_ context.Context, _ canvas.DispatchEnvelope) error {
		close(started)
		<-release
		close(finished)
		return nil
	}

	q := NewQueue(context.Background(), run, nil, Options{MaxConcurrentBatches: 1, MaxDispatchesPerSecond: 1000})
	if err := q.Enqueue(context.Background(), canvas.DispatchEnvelope{BatchID: "b"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	<-started
	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- q.Shutdown(context.Background()) }()

	select {
	case <-shutdownDone:
		t.Fatal("Shutdown returned before in-flight run finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-finished

	select {
	case err := <-shutdownDone:
		if err != nil {
			t.Fatalf("Shutdown err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown never returned after in-flight run finished")
	}
}

func TestQueueRejectsEnqueueAfterShutdown(t *testing.T) {
	run := func(_ context.Context, _ canvas.DispatchEnvelope) error { return nil }
	q := NewQueue(context.Background(), run, nil, Options{})
	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := q.Enqueue(context.Background(), canvas.DispatchEnvelope{BatchID: "b"}); err == nil {
		t.Fatal("Enqueue after Shutdown: want error, got nil")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for work to complete")
	}
}
