// Command canvasengine-server runs the Canvas Workflow Engine behind
// the representative HTTP surface in canvashttp: an in-process
// dispatch queue, a crash-recovery reconciler, a Prometheus gauge
// poller, and whichever store/emitter backend canvasconfig.Config
// selects. Construction happens up front, then a blocking serve loop
// with signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/flowcanvas/canvasengine/canvas"
	"github.com/flowcanvas/canvasengine/canvas/processor"
	"github.com/flowcanvas/canvasengine/canvas/processor/illustrative"
	"github.com/flowcanvas/canvasengine/canvas/schema"
	"github.com/flowcanvas/canvasengine/canvas/workflow"
	"github.com/flowcanvas/canvasengine/canvasassets"
	"github.com/flowcanvas/canvasengine/canvasconfig"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvashttp"
	"github.com/flowcanvas/canvasengine/canvasmetrics"
	"github.com/flowcanvas/canvasengine/canvasqueue"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

func main() {
	configPath := flag.String("config", "", "path to a canvasconfig YAML file")
	flag.Parse()

	cfg, err := canvasconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg canvasconfig.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	emitter := buildEmitter(cfg)

	var metrics *canvasmetrics.PrometheusMetrics
	if cfg.MetricsEnabled {
		metrics = canvasmetrics.NewPrometheusMetrics(nil)
		emitter = canvasmetrics.Tap(emitter, metrics)
	}

	assets := canvasassets.New()
	schemas, err := schema.NewRegistry(nil)
	if err != nil {
		return err
	}
	registry := buildProcessorRegistry(cfg, schemas)

	var queue *canvasqueue.Queue
	runFn := func(ctx context.Context, envelope canvas.DispatchEnvelope) error {
		return workflow.RunBatch(ctx, store, registry, assets, queue, emitter, envelope)
	}
	queue = canvasqueue.NewQueue(ctx, runFn, emitter, canvasqueue.Options{
		MaxConcurrentBatches:   cfg.MaxConcurrentBatches,
		MaxDispatchesPerSecond: cfg.MaxDispatchesPerSecond,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queue.Shutdown(shutdownCtx); err != nil {
			log.Printf("queue shutdown: %v", err)
		}
	}()

	reconciler := canvasqueue.NewReconciler(store, queue, emitter, cfg.ReconcileInterval, cfg.StaleTaskThreshold)
	go reconciler.Run(ctx)

	if metrics != nil {
		poller := canvasmetrics.NewPoller(store, metrics, cfg.GaugePollInterval)
		go poller.Run(ctx)
	}

	server := canvashttp.NewServer(canvashttp.Options{
		Store:      store,
		Dispatcher: queue,
		Emitter:    emitter,
		Schemas:    schemas, // unregistered node types validate as a no-op
		Assets:     assets,
		URLs:       assets,
		BatchURLs:  assets,
	})

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("canvasengine-server listening on %s", cfg.HTTPAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildStore(cfg canvasconfig.Config) (canvasstore.Store, error) {
	templates := canvas.DefaultTemplates()
	switch cfg.StoreKind {
	case canvasconfig.StoreSQLite:
		return canvasstore.NewSQLiteStore(cfg.StoreDSN, templates)
	case canvasconfig.StoreMySQL:
		return canvasstore.NewMySQLStore(cfg.StoreDSN, templates)
	default:
		return canvasstore.NewMemStore(templates), nil
	}
}

func buildEmitter(cfg canvasconfig.Config) canvasemit.Emitter {
	switch cfg.EmitterKind {
	case canvasconfig.EmitterOTel:
		return canvasemit.NewOTelEmitter(otel.Tracer("canvasengine"))
	default:
		return canvasemit.NewLogEmitter(os.Stdout, cfg.LogJSON)
	}
}

// buildProcessorRegistry wires every node type the illustrative domain
// stack example covers (LLM) through the processor-boundary schema
// validator (spec.md §3's Opaque JSON fields design note). Other node
// types (Text, File, ImageGen, Compositor, ...) are left to
// a deployment's own Processor implementations; an unregistered type
// simply has no processor.Registry.Lookup hit, which
// workflow.runOneTask already treats as a task failure.
func buildProcessorRegistry(cfg canvasconfig.Config, schemas *schema.Registry) *processor.Registry {
	llm := illustrative.LLMProcessor{APIKeys: cfg.LLMAPIKeys}

	return processor.NewRegistry(map[canvas.NodeType]processor.Processor{
		canvas.NodeTypeLLM: processor.NewValidatingProcessor(llm, schemas),
	})
}
