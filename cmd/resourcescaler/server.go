package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/CortezFrazierJr/mantis/internal/api"
	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

// Server exposes the loop's observable surface: a health check, a
// rule-set snapshot, and Prometheus metrics. Mutating operator routes
// (rule admin) sit behind api.AuthMiddleware, which checks both the
// bearer token and that the route's clusterId matches the cluster this
// process owns.
type Server struct {
	Router *chi.Mux
	Port   int
}

func NewServer(port int, loop *scaler.Loop, loopClusterID scaler.ClusterID, registry *prometheus.Registry, authToken string) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Get("/clusters/{clusterId}/ruleset", func(w http.ResponseWriter, req *http.Request) {
		clusterID := scaler.ClusterID(chi.URLParam(req, "clusterId"))
		if clusterID != loopClusterID {
			http.Error(w, "unknown cluster", http.StatusNotFound)
			return
		}
		snapshot, err := loop.RuleSetSnapshot(req.Context())
		if err != nil {
			log.Warn().Err(err).Str("clusterId", string(clusterID)).Msg("failed to snapshot ruleset")
			http.Error(w, "failed to snapshot ruleset", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			log.Warn().Err(err).Msg("failed to encode ruleset response")
		}
	})

	if authToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(api.AuthMiddleware(authToken, loopClusterID))
			r.Post("/clusters/{clusterId}/refresh", func(w http.ResponseWriter, req *http.Request) {
				loop.TriggerRuleFetch(req.Context())
				w.WriteHeader(http.StatusAccepted)
			})
		})
	}

	return &Server{Router: r, Port: port}
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", s.Port).Msg("Starting server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
