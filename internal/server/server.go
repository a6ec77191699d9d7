// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matthewbaird/valuation/internal/activity"
	"github.com/matthewbaird/valuation/internal/draft"
	"github.com/matthewbaird/valuation/internal/eventbus"
	"github.com/matthewbaird/valuation/internal/form"
	"github.com/matthewbaird/valuation/internal/handler"
	"github.com/matthewbaird/valuation/internal/logging"
	"github.com/matthewbaird/valuation/internal/session"
	"github.com/matthewbaird/valuation/internal/store"
	"github.com/matthewbaird/valuation/internal/wire"
)

// Deps are the services the routes are served from.
type Deps struct {
	Valuations store.Store
	Drafts     draft.Store
	Activity   activity.Store
	Sessions   *session.Manager
	// Stats is optional; without it /v1/stats is not registered.
	Stats *eventbus.StatsConsumer
	Log   *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	Deps            Deps
}

// NewRouter registers every route on a chi router wrapped in the request
// middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(handler.Recovery)
	r.Use(handler.Logging)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// --- ValuationService ---
	vh := handler.NewValuationHandler(d.Valuations, d.Drafts)
	r.Post("/v1/valuations", vh.CreateValuation)
	r.Get("/v1/valuations", vh.ListValuations)
	r.Get("/v1/valuations/{id}", vh.GetValuation)
	r.Put("/v1/valuations/{id}", vh.UpdateValuation)
	r.Delete("/v1/valuations/{id}", vh.DeleteValuation)
	r.Post("/v1/valuations/{id}/submit", vh.SubmitValuation)
	r.Post("/v1/valuations/{id}/approve", vh.ApproveValuation)
	r.Post("/v1/valuations/{id}/reject", vh.RejectValuation)
	r.Post("/v1/valuations/{id}/reopen", vh.ReopenValuation)
	r.Get("/v1/valuations/{id}/export", vh.ExportValuation)

	// --- ActivityService ---
	ah := handler.NewActivityHandler(d.Activity)
	r.Get("/v1/valuations/{id}/activity", ah.GetValuationActivity)
	r.Get("/v1/activity/search", ah.SearchActivity)

	// --- DraftService ---
	dh := handler.NewDraftHandler(d.Drafts)
	r.Get("/v1/drafts/{key}", dh.GetDraft)
	r.Put("/v1/drafts/{key}", dh.PutDraft)
	r.Delete("/v1/drafts/{key}", dh.DeleteDraft)

	// --- FormService (stateless) ---
	fh := handler.NewFormHandler(form.Default())
	r.Post("/v1/form/apply", fh.Apply)
	r.Post("/v1/form/recompute", fh.Recompute)
	r.Post("/v1/form/flatten", fh.Flatten)
	r.Post("/v1/form/nest", fh.Nest)
	r.Get("/v1/catalog", fh.Catalog)

	// --- Live editing ---
	if d.Sessions != nil {
		r.Method(http.MethodGet, "/v1/ws/form", wire.NewHandler(d.Sessions, d.Log))
	}

	if d.Stats != nil {
		r.Get("/v1/stats", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(d.Stats.Snapshot())
		})
	}

	return r
}

// Run starts the HTTP server with all routes registered and shuts it down
// gracefully when ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	log := logging.OrNop(cfg.Deps.Log)
	handler.SetLogger(log.Named("http"))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg.Deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", addr))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	log.Info("shutting down server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
