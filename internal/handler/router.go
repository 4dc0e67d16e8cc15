package handler

import (
	"net/http"

	"github.com/dandantas/shopwatch/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	shopHandler         *ShopHandler
	refreshHandler      *RefreshHandler
	notificationHandler *NotificationHandler
	healthHandler       *HealthHandler
	metricsHandler      http.Handler
	observer            middleware.RequestObserver
	corsConfig          middleware.CORSConfig
}

// NewRouter creates a new router. observer may be nil.
func NewRouter(
	shopHandler *ShopHandler,
	refreshHandler *RefreshHandler,
	notificationHandler *NotificationHandler,
	healthHandler *HealthHandler,
	metricsHandler http.Handler,
	observer middleware.RequestObserver,
	corsConfig middleware.CORSConfig,
) *Router {
	return &Router{
		shopHandler:         shopHandler,
		refreshHandler:      refreshHandler,
		notificationHandler: notificationHandler,
		healthHandler:       healthHandler,
		metricsHandler:      metricsHandler,
		observer:            observer,
		corsConfig:          corsConfig,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/v1/shops", rt.shopHandler.List)
	api.HandleFunc("POST /api/v1/shops", rt.shopHandler.Create)
	api.HandleFunc("GET /api/v1/shops/{id}", rt.shopHandler.Get)
	api.HandleFunc("DELETE /api/v1/shops/{id}", rt.shopHandler.Delete)
	api.HandleFunc("GET /api/v1/shops/{id}/status", rt.shopHandler.Status)
	api.HandleFunc("GET /api/v1/shops/{id}/snapshot", rt.shopHandler.Snapshot)
	api.HandleFunc("POST /api/v1/shops/{id}/refresh", rt.refreshHandler.Refresh)
	api.HandleFunc("GET /api/v1/jobs/{id}", rt.refreshHandler.Job)
	api.HandleFunc("GET /api/v1/notifications", rt.notificationHandler.List)
	api.HandleFunc("PATCH /api/v1/notifications/{id}/read", rt.notificationHandler.MarkRead)

	// CORS first to handle preflight requests
	var handler http.Handler = middleware.CORS(rt.corsConfig)(api)
	handler = middleware.Recovery(handler)
	handler = middleware.Logging(rt.observer)(handler)
	handler = middleware.CorrelationID(handler)

	// Probes and metrics bypass the API middleware
	root := http.NewServeMux()
	root.HandleFunc("GET /health", rt.healthHandler.Health)
	root.HandleFunc("GET /ready", rt.healthHandler.Ready)
	if rt.metricsHandler != nil {
		root.Handle("GET /metrics", rt.metricsHandler)
	}
	root.Handle("/", handler)

	return root
}
