// Package canvashttp provides the representative HTTP API spec.md §6
// describes (exact paths are an implementation choice; this package
// picks the ones spec.md itself lists). A single chi.Router is built
// once in NewServer and served through ServeHTTP, with
// middleware.Recoverer guarding every handler.
package canvashttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowcanvas/canvasengine/canvas/batch"
	"github.com/flowcanvas/canvasengine/canvas/schema"
	"github.com/flowcanvas/canvasengine/canvas/workflow"
	"github.com/flowcanvas/canvasengine/canvasemit"
	"github.com/flowcanvas/canvasengine/canvasrun"
	"github.com/flowcanvas/canvasengine/canvasstore"
)

// Server is the canvas engine's HTTP transport: a thin translation
// layer over the Canvas Mutation Engine, Canvas Cloner, Workflow
// Processor, and Batch Resolver. It holds no engine state of its own.
type Server struct {
	store      canvasstore.Store
	dispatcher workflow.Dispatcher
	emitter    canvasemit.Emitter
	schemas    *schema.Registry
	assets     canvasrun.AssetStore
	urls       canvasrun.URLFetcher
	batchURLs  batch.AssetURLResolver

	router chi.Router
}

// Options configures a Server. Only Store and Dispatcher are
// required; the rest degrade gracefully (nil Emitter logs nothing,
// nil schemas.Registry validates nothing, nil AssetStore/URLFetcher
// means the inline/url run-payload variants return an error if a
// client actually sends one).
type Options struct {
	Store      canvasstore.Store
	Dispatcher workflow.Dispatcher
	Emitter    canvasemit.Emitter
	Schemas    *schema.Registry
	Assets     canvasrun.AssetStore
	URLs       canvasrun.URLFetcher
	BatchURLs  batch.AssetURLResolver
}

// NewServer builds a Server and its router.
func NewServer(opts Options) *Server {
	if opts.Emitter == nil {
		opts.Emitter = canvasemit.NullEmitter{}
	}
	s := &Server{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		emitter:    opts.Emitter,
		schemas:    opts.Schemas,
		assets:     opts.Assets,
		urls:       opts.URLs,
		batchURLs:  opts.BatchURLs,
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP satisfies http.Handler, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/canvas/{canvasID}", func(r chi.Router) {
		r.Post("/patch", s.handlePatch)
		r.Post("/duplicate", s.handleDuplicate)
	})

	r.Route("/api/v1/run", func(r chi.Router) {
		r.Post("/", s.handleRunStart)
		r.Get("/{batchID}/status", s.handleRunStatus)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
