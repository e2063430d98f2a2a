/*
Package handler provides the HTTP routing for the matchmaker.

The router applies CORS, request ids, structured request logging and panic
recovery globally, per-IP rate limiting on /api and /ws, and exposes the
health, metrics, WebSocket and REST interest endpoints.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/whisper/matchmaker/internal/metrics"
	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/pkg/limiter"
	"github.com/whisper/matchmaker/internal/pkg/logx"
	"github.com/whisper/matchmaker/internal/pkg/resp"
)

const (
	APIRate   = 5
	APIBurst  = 20
	WSRate    = 0.5
	WSBurst   = 5
	serviceID = "matchmaker"
)

// Router sets up the main HTTP routing table for the application.
func Router(deps *AppDeps) http.Handler {
	apiLimiter := limiter.NewIPRateLimiter(rate.Limit(APIRate), APIBurst)
	wsLimiter := limiter.NewIPRateLimiter(rate.Limit(WSRate), WSBurst)

	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", HandleHealth(deps))
	r.Handle("/metrics", metrics.Handler())

	if deps.WebSocket != nil {
		r.With(wsLimiter.Middleware, originGuard(deps)).Get("/ws", deps.WebSocket.ServeHTTP)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(apiLimiter.Middleware)
		api.Use(requireStore(deps))

		api.Get("/interests/{userId}", HandleGetInterests(deps))
		api.Post("/interests/{userId}", HandleSaveInterests(deps))
		api.Post("/match/best", HandleBestMatch(deps))
		api.Post("/match/similar", HandleSimilarMatch(deps))
		api.Post("/users/{userId}/status", HandleUserStatus(deps))
	})

	return r
}

// originGuard rejects WebSocket upgrades from origins outside the allow-list.
// Development accepts every origin, as does an empty allow-list.
func originGuard(deps *AppDeps) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(deps.Config.AllowedOrigins))
	for _, origin := range deps.Config.AllowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.Config.IsDevelopment() || len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; !ok {
				logx.Warn("WebSocket connection rejected: origin not allowed", "origin", origin)
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireStore answers STORE_UNAVAILABLE when no database is configured.
func requireStore(deps *AppDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.Interests == nil {
				resp.RespondError(w, r, errs.NewError(errs.CodeStoreUnavailable))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HandleHealth reports liveness together with live engine sizes.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":  "ok",
			"service": serviceID,
		}

		if deps.Stats != nil {
			stats := deps.Stats.Stats()
			data["connections"] = stats.Connections
			data["waitingUsers"] = stats.Waiting
			data["rooms"] = stats.Rooms
			data["uptimeSeconds"] = int64(stats.Uptime / time.Second)
		}

		database := "disabled"
		if deps.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			database = "ok"
			if err := deps.Database.Ping(ctx); err != nil {
				database = "unavailable"
				logx.Warn("health check: database unreachable", "error", err.Error())
			}
		}
		data["database"] = database

		resp.RespondSuccess(w, r, data)
	}
}
