package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gatherly-live/server/internal/api/handlers"
	"github.com/gatherly-live/server/internal/api/middleware"
	"github.com/gatherly-live/server/internal/audit"
	"github.com/gatherly-live/server/internal/auth"
	"github.com/gatherly-live/server/internal/config"
	"github.com/gatherly-live/server/internal/domain/events"
	"github.com/gatherly-live/server/internal/domain/registrations"
	"github.com/gatherly-live/server/internal/domain/users"
	"github.com/gatherly-live/server/internal/metrics"
	"github.com/gatherly-live/server/internal/realtime"
	"github.com/gatherly-live/server/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps carries the constructed services the router mounts. The caller owns
// their lifecycles; the router only wires routes and middleware.
type Deps struct {
	Users       *users.Service
	Events      *events.Service
	Coordinator *registrations.Coordinator
	Attendees   handlers.AttendeeLister
	Hub         *realtime.Hub
	JWT         *auth.JWTManager
	Pool        *pgxpool.Pool
}

func NewRouter(cfg config.Config, logger zerolog.Logger, deps Deps) http.Handler {
	authHandler := handlers.NewAuthHandler(deps.Users, deps.JWT, cfg.Environment)
	eventsHandler := handlers.NewEventsHandler(deps.Events, cfg.Environment).WithAudit(audit.NewLogger(logger))
	registrationsHandler := handlers.NewRegistrationsHandler(deps.Coordinator, deps.Attendees, deps.Events, cfg.Environment)
	statsHandler := handlers.NewStatsHandler(deps.Events, cfg.Environment)
	wsHandler := realtime.NewHandler(deps.Hub, deps.Coordinator, deps.JWT, cfg.Realtime, logger)

	requireAuth := middleware.RequireAuth(deps.JWT, cfg.Environment)
	authTier := middleware.WithRateLimitTierHandler(middleware.TierAuth)
	loginTier := middleware.WithRateLimitTierHandler(middleware.TierLogin)

	// One RateLimit middleware so every route shares the limiter store.
	// The tier stamp must wrap the limiter, so it composes per route
	// rather than in the outer chain.
	limit := middleware.RateLimit(cfg.RateLimit)

	public := func(h http.Handler) http.Handler {
		return limit(h)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return requireAuth(authTier(limit(h)))
	}
	login := func(h http.HandlerFunc) http.Handler {
		return loginTier(limit(h))
	}

	mux := http.NewServeMux()
	mux.Handle("/", public(web.IndexHandler()))
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(deps.Pool))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/ws", public(wsHandler))

	mux.Handle("/api/v1/auth/signup", methodMux(map[string]http.Handler{
		http.MethodPost: login(authHandler.Signup),
	}))
	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: login(authHandler.Login),
	}))

	mux.Handle("/api/v1/events", methodMux(map[string]http.Handler{
		http.MethodGet:  public(http.HandlerFunc(eventsHandler.List)),
		http.MethodPost: authed(eventsHandler.Create),
	}))
	mux.Handle("/api/v1/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    public(http.HandlerFunc(eventsHandler.Get)),
		http.MethodPatch:  authed(eventsHandler.Update),
		http.MethodDelete: authed(eventsHandler.Delete),
	}))
	mux.Handle("/api/v1/events/{id}/register", methodMux(map[string]http.Handler{
		http.MethodPost: authed(registrationsHandler.Register),
	}))
	mux.Handle("/api/v1/events/{id}/registrations", methodMux(map[string]http.Handler{
		http.MethodGet: authed(registrationsHandler.ListAttendees),
	}))
	mux.Handle("/api/v1/organizers/me/stats", methodMux(map[string]http.Handler{
		http.MethodGet: authed(statsHandler.Organizer),
	}))

	var handler http.Handler = mux
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
