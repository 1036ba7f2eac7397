package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/slack-weather/internal/client"
	"github.com/kjstillabower/slack-weather/internal/lifecycle"
	"github.com/kjstillabower/slack-weather/internal/observability"
	"github.com/kjstillabower/slack-weather/internal/traffic"
	"github.com/kjstillabower/slack-weather/internal/validation"
)

const serviceName = "slack-weather"

// SlashCommandResponder produces the JSON reply for slash-command text.
type SlashCommandResponder interface {
	Respond(ctx context.Context, text, imageBaseURL string) ([]byte, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Window           time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability.
	CachePing func() error
}

// Options configures a Handler.
type Options struct {
	VerificationToken string
	// SlackClientID is shown in the "Add to Slack" button. Empty hides it.
	SlackClientID string
	// OAuth completes the install flow. Nil makes /auth always fail.
	OAuth client.OAuthExchanger
	// PublicURL, if set, is the base of the OAuth redirect URI instead of the
	// inbound request's scheme and host.
	PublicURL string
	Health    *HealthConfig
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	responder        SlashCommandResponder
	opts             Options
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(responder SlashCommandResponder, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{responder: responder, opts: opts, logger: logger}
}

// PostWeather handles POST /weather, the slash-command endpoint.
func (h *Handler) PostWeather(w http.ResponseWriter, r *http.Request) {
	h.SlashCommand(nil).ServeHTTP(w, r)
}

// SlashCommand returns the POST /weather handler. limit, if non-nil, wraps the
// lookup and only sees requests that carried a valid token.
func (h *Handler) SlashCommand(limit func(http.Handler) http.Handler) http.Handler {
	var lookup http.Handler = http.HandlerFunc(h.respond)
	if limit != nil {
		lookup = limit(lookup)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authorize(w, r) {
			return
		}
		lookup.ServeHTTP(w, r)
	})
}

// authorize parses the form and checks the verification token, writing the
// rejection itself when it returns false. A token mismatch is answered with
// 401 even when the rest of the body is malformed; ParseForm keeps the pairs
// it decoded before the bad one.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	parseErr := r.ParseForm()

	if err := validation.VerifyToken(r.PostForm.Get("token"), h.opts.VerificationToken); err != nil {
		observability.SlashCommandsTotal.WithLabelValues(observability.OutcomeUnauthorized).Inc()
		observability.LoggerFromContext(r.Context()).Info("slash command rejected",
			zap.Error(err),
			zap.String("team_domain", r.PostForm.Get("team_domain")),
		)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "Unauthorized")
		return false
	}

	if parseErr != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "malformed form body")
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	body, err := h.responder.Respond(r.Context(), r.PostForm.Get("text"), requestBaseURL(r))
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"upstream": "healthy"}
	if result.reason == "error_rate_breach" {
		checks["upstream"] = "unhealthy"
	}
	if hc := h.opts.Health; hc != nil && hc.CachePing != nil {
		if err := hc.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
			h.logger.Warn("cache ping failed", zap.Error(err))
		} else {
			checks["cache"] = "healthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":        result.status,
		"service":       serviceName,
		"checks":        checks,
		"uptimeSeconds": int64(lifecycle.Uptime().Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down, degraded, healthy.
// A failing cache is reported in checks only; requests still succeed without it.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if hc := h.opts.Health; hc != nil && hc.Window > 0 && hc.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(hc.Window)
		if total > 0 && float64(errs)*100/float64(total) >= float64(hc.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// requestBaseURL returns scheme://host for r, honoring X-Forwarded-Proto
// from a fronting proxy.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(fwd, ",")[0]))
	}
	return scheme + "://" + r.Host
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError writes a 503 for upstream failures and logs the cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	observability.LoggerFromContext(r.Context()).Warn("upstream error",
		zap.Error(err),
		zap.String("category", string(client.CategorizeError(err))),
	)
}
