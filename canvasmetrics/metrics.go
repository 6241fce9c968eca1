// Package canvasmetrics provides Prometheus-compatible metrics for the
// canvas workflow engine: per-canvas batch exclusivity, per-task
// latency, and the dropped-edge/deferred-batch signals this domain's
// validation and dispatch policy produce.
package canvasmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects the engine's runtime signals, all
// namespaced "canvasengine_".
//
// Metrics exposed:
//
//  1. inflight_tasks (gauge): tasks currently EXECUTING across all
//     canvases. Labels: canvas_id.
//  2. pending_batches (gauge): batches deferred behind another active
//     batch on the same canvas. Labels: canvas_id.
//  3. task_latency_ms (histogram): task duration from dispatch to
//     terminal status. Labels: node_type, status (COMPLETED/FAILED).
//  4. tasks_failed_total (counter): cumulative task failures. Labels:
//     node_type, reason.
//  5. edges_dropped_total (counter): edges silently dropped by the
//     Canvas Mutation Engine for referencing an unresolved handle.
//     Labels: canvas_id.
//  6. batch_deferrals_total (counter): times a batch could not start
//     immediately because another batch already owned the canvas.
//     Labels: canvas_id.
type PrometheusMetrics struct {
	inflightTasks   *prometheus.GaugeVec
	pendingBatches  *prometheus.GaugeVec
	taskLatency     *prometheus.HistogramVec
	tasksFailed     *prometheus.CounterVec
	edgesDropped    *prometheus.CounterVec
	batchDeferrals  *prometheus.CounterVec

	registry prometheus.Registerer
	mu       sync.RWMutex
	enabled  bool
}

// NewPrometheusMetrics creates and registers the engine's metrics with
// registry. A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{registry: registry, enabled: true}

	pm.inflightTasks = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "canvasengine",
		Name:      "inflight_tasks",
		Help:      "Tasks currently EXECUTING, by canvas",
	}, []string{"canvas_id"})

	pm.pendingBatches = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "canvasengine",
		Name:      "pending_batches",
		Help:      "Batches deferred behind another active batch on the same canvas",
	}, []string{"canvas_id"})

	pm.taskLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "canvasengine",
		Name:      "task_latency_ms",
		Help:      "Task duration in milliseconds, from EXECUTING to a terminal status",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
	}, []string{"node_type", "status"})

	pm.tasksFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvasengine",
		Name:      "tasks_failed_total",
		Help:      "Cumulative count of tasks that reached FAILED",
	}, []string{"node_type", "reason"})

	pm.edgesDropped = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvasengine",
		Name:      "edges_dropped_total",
		Help:      "Edges dropped by the mutation engine for referencing an unresolved handle",
	}, []string{"canvas_id"})

	pm.batchDeferrals = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvasengine",
		Name:      "batch_deferrals_total",
		Help:      "Times a new batch was deferred because another batch already owned its canvas",
	}, []string{"canvas_id"})

	return pm
}

// RecordTaskLatency observes a single task's duration.
func (pm *PrometheusMetrics) RecordTaskLatency(nodeType string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.taskLatency.WithLabelValues(nodeType, status).Observe(float64(latency.Milliseconds()))
}

// IncrementTasksFailed records one task reaching FAILED.
func (pm *PrometheusMetrics) IncrementTasksFailed(nodeType, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.tasksFailed.WithLabelValues(nodeType, reason).Inc()
}

// UpdateInflightTasks sets the current EXECUTING task count for canvasID.
func (pm *PrometheusMetrics) UpdateInflightTasks(canvasID string, count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightTasks.WithLabelValues(canvasID).Set(float64(count))
}

// UpdatePendingBatches sets the current deferred-batch count for canvasID.
func (pm *PrometheusMetrics) UpdatePendingBatches(canvasID string, count int) {
	if !pm.isEnabled() {
		return
	}
	pm.pendingBatches.WithLabelValues(canvasID).Set(float64(count))
}

// IncrementEdgesDropped records one edge dropped during a patch apply.
func (pm *PrometheusMetrics) IncrementEdgesDropped(canvasID string) {
	if !pm.isEnabled() {
		return
	}
	pm.edgesDropped.WithLabelValues(canvasID).Inc()
}

// IncrementBatchDeferrals records one batch deferred by the exclusivity policy.
func (pm *PrometheusMetrics) IncrementBatchDeferrals(canvasID string) {
	if !pm.isEnabled() {
		return
	}
	pm.batchDeferrals.WithLabelValues(canvasID).Inc()
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable stops metric recording (useful for tests).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
