package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/CortezFrazierJr/mantis/internal/scaler"
)

// AuthMiddleware enforces Bearer token authentication on operator routes and
// additionally scopes the request to clusterID: a process hosts exactly one
// ScalerLoop, so any request path naming a different cluster is rejected
// before it ever reaches the handler, the same way the ruleset handler
// guards against it inline.
func AuthMiddleware(expectedToken string, clusterID scaler.ClusterID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqClusterID := chi.URLParam(r, "clusterId")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn().Str("clusterId", reqClusterID).Msg("operator request missing Authorization header")
				http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn().Str("clusterId", reqClusterID).Msg("operator request has malformed Authorization header")
				http.Error(w, "Unauthorized: Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token := parts[1]
			if token != expectedToken {
				log.Warn().Str("clusterId", reqClusterID).Msg("operator request presented an invalid token")
				http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
				return
			}

			if scaler.ClusterID(reqClusterID) != clusterID {
				log.Warn().Str("clusterId", reqClusterID).Msg("operator request named a cluster this process does not own")
				http.Error(w, "unknown cluster", http.StatusNotFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
