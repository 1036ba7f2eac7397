package http

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/slack-weather/internal/observability"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = map[string]*template.Template{}

func init() {
	for _, name := range []string{"index", "privacy", "support", "success", "fail"} {
		pageTemplates[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
}

type pageData struct {
	Title       string
	ClientID    string
	RedirectURI string
}

// GetIndex handles GET /.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, "index", "/weather: weather in slack")
}

// GetPrivacy handles GET /privacy.
func (h *Handler) GetPrivacy(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, "privacy", "/weather privacy policy")
}

// GetSupport handles GET /support.
func (h *Handler) GetSupport(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, "support", "/weather support")
}

// GetAuth handles GET /auth, the "Add to Slack" OAuth redirect target.
func (h *Handler) GetAuth(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" || h.opts.OAuth == nil {
		h.renderPage(w, r, http.StatusOK, "fail", "Auth failed!")
		return
	}

	logger := observability.LoggerFromContext(r.Context())
	res, err := h.opts.OAuth.Exchange(r.Context(), code, h.redirectURI(r))
	if err != nil {
		logger.Warn("oauth exchange failed", zap.Error(err))
		h.renderPage(w, r, http.StatusOK, "fail", "Auth failed!")
		return
	}
	if !res.OK {
		logger.Info("oauth exchange rejected", zap.String("slack_error", res.Error))
		h.renderPage(w, r, http.StatusOK, "fail", "Auth failed!")
		return
	}
	logger.Info("app installed", zap.String("team_id", res.Team.ID), zap.String("team_name", res.Team.Name))
	h.renderPage(w, r, http.StatusOK, "success", "Success!")
}

// redirectURI is the OAuth redirect registered with Slack. It must match
// between the authorize link and the code exchange.
func (h *Handler) redirectURI(r *http.Request) string {
	if h.opts.PublicURL != "" {
		return strings.TrimRight(h.opts.PublicURL, "/") + "/auth"
	}
	return requestBaseURL(r) + "/auth"
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name, title string) {
	data := pageData{
		Title:       title,
		ClientID:    h.opts.SlackClientID,
		RedirectURI: h.redirectURI(r),
	}
	var buf bytes.Buffer
	if err := pageTemplates[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		observability.LoggerFromContext(r.Context()).Error("render page", zap.String("page", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
