package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gatehouse-io/gatehouse/engine"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/idempotency"
	"github.com/gatehouse-io/gatehouse/observability"
	"github.com/gatehouse-io/gatehouse/store"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
// Authenticate overrides the default JWT middleware when set; tests use it
// to inject a canned identity.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Registry     *engine.Registry
	Store        store.RequestStore
	Idempotency  idempotency.Store
	Metrics      http.Handler
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware, applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/health", handleHealth)
	r.Get("/ready", handleReady(deps.Registry))
	if deps.Metrics != nil {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Metrics)
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = JWTAuthenticator(deps.Config.Auth)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Config.Observability.Tracing.Enabled {
			r.Use(observability.TracingMiddleware)
		}

		r.Get("/definitions", handleDefinitionList(deps.Registry))
		r.Get("/definitions/{definitionID}", handleDefinitionGet(deps.Registry))
		r.Post("/definitions/{definitionID}/requests", handleRequestCreate(deps))

		r.Get("/requests", handleRequestList(deps))
		r.Get("/requests/{requestID}", handleRequestGet(deps))
		r.Get("/requests/{requestID}/actions", handleRequestActions(deps))
		r.Get("/requests/{requestID}/history", handleRequestHistory(deps))
		r.Post("/requests/{requestID}/actions/{actionName}", handleActionExecute(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(registry *engine.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":      "ready",
			"definitions": len(registry.IDs()),
			"checksum":    registry.Checksum(),
		})
	}
}
