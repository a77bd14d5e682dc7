package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/vindereg/internal/application/ingest"
	"github.com/bryanwahyu/vindereg/internal/application/syncer"
	"github.com/bryanwahyu/vindereg/internal/middleware"
)

// Router exposes the trigger surface: the scheduler fabric POSTs to the
// run endpoints and gets the run summary back. Not a public API.
type Router struct {
	ingestSvc *ingest.Service
	syncSvc   *syncer.Service
}

func NewRouter(ingestSvc *ingest.Service, syncSvc *syncer.Service, apiKey string, health map[string]middleware.HealthChecker) http.Handler {
	r := &Router{ingestSvc: ingestSvc, syncSvc: syncSvc}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)

	mux.Get("/healthz", middleware.HealthHandler(health))

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(apiKey))
		rt.Post("/run/ingest", r.wrap(r.handleIngest))
		rt.Post("/run/sync", r.wrap(r.handleSync))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// POST /run/ingest → pull feed files and stage rows
func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) error {
	summary, err := r.ingestSvc.Run(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, summary)
}

// POST /run/sync → reconcile pending staged records against the CRM
func (r *Router) handleSync(w http.ResponseWriter, req *http.Request) error {
	summary, err := r.syncSvc.Run(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, summary)
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}
