package canvasmetrics

import (
	"context"
	"time"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// Poller periodically recomputes the two gauges Tap cannot derive from
// events alone (inflight_tasks, pending_batches), since neither has a
// single Emit call marking entry and exit the way a counter does. Runs
// the same ticker-driven background loop shape as canvasqueue.Reconciler.
type Poller struct {
	store    canvasstore.Store
	metrics  *PrometheusMetrics
	interval time.Duration
}

// NewPoller builds a Poller. A non-positive interval defaults to 5s.
func NewPoller(store canvasstore.Store, metrics *PrometheusMetrics, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{store: store, metrics: metrics, interval: interval}
}

// Run blocks, recomputing gauges every p.interval until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *Poller) sweepOnce(ctx context.Context) {
	batches, err := p.store.ListUnfinishedBatches(ctx)
	if err != nil {
		return
	}

	inflight := make(map[string]int)
	pending := make(map[string]int)
	seenCanvas := make(map[string]bool)

	for _, b := range batches {
		seenCanvas[b.CanvasID] = true
		if b.StartedAt == nil && b.PendingJobData != nil {
			pending[b.CanvasID]++
			continue
		}
		tasks, err := p.store.ListTasks(ctx, b.ID)
		if err != nil {
			continue
		}
		for _, t := range tasks {
			if t.Status == canvas.TaskExecuting {
				inflight[b.CanvasID]++
			}
		}
	}

	for canvasID := range seenCanvas {
		p.metrics.UpdateInflightTasks(canvasID, inflight[canvasID])
		p.metrics.UpdatePendingBatches(canvasID, pending[canvasID])
	}
}
