package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/slack-weather/internal/observability"
)

// RouterConfig holds the pieces of the router that vary per deployment.
type RouterConfig struct {
	// ImagesDir is served under /images/. Empty disables the route.
	ImagesDir string
	// Limiter guards POST /weather once the token has been accepted. Nil
	// disables rate limiting.
	Limiter *rate.Limiter
}

// NewRouter wires every route with the shared middleware chain.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/", h.GetIndex).Methods(http.MethodGet)
	router.HandleFunc("/privacy", h.GetPrivacy).Methods(http.MethodGet)
	router.HandleFunc("/support", h.GetSupport).Methods(http.MethodGet)
	router.HandleFunc("/auth", h.GetAuth).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	if cfg.ImagesDir != "" {
		images := http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.ImagesDir)))
		router.PathPrefix("/images/").Handler(images).Methods(http.MethodGet, http.MethodHead)
	}

	router.Handle("/weather", h.SlashCommand(RateLimitMiddleware(cfg.Limiter))).Methods(http.MethodPost)
	return router
}
