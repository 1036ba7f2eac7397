package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/slack-weather/internal/client"
	"github.com/kjstillabower/slack-weather/internal/lifecycle"
	"github.com/kjstillabower/slack-weather/internal/observability"
	"github.com/kjstillabower/slack-weather/internal/traffic"
)

const testToken = "verif-token"

type respondCall struct {
	text, imageBaseURL string
}

type mockResponder struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls []respondCall
}

func (m *mockResponder) Respond(ctx context.Context, text, imageBaseURL string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, respondCall{text, imageBaseURL})
	return m.body, m.err
}

type mockOAuth struct {
	result client.OAuthResult
	err    error
	code   string
	uri    string
}

func (m *mockOAuth) Exchange(ctx context.Context, code, redirectURI string) (client.OAuthResult, error) {
	m.code, m.uri = code, redirectURI
	return m.result, m.err
}

func slashRequest(token, text string) *http.Request {
	form := url.Values{"token": {token}, "text": {text}, "team_domain": {"acme"}}
	req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "weather.example.com"
	return req
}

func TestHandler_PostWeather_Success(t *testing.T) {
	traffic.Reset()
	responder := &mockResponder{body: []byte(`{"response_type":"in_channel"}`)}
	handler := NewHandler(responder, Options{VerificationToken: testToken}, zap.NewNop())

	w := httptest.NewRecorder()
	handler.PostWeather(w, slashRequest(testToken, "in Paris in celsius"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != `{"response_type":"in_channel"}` {
		t.Errorf("body = %s, want responder body unchanged", w.Body.String())
	}
	if len(responder.calls) != 1 {
		t.Fatalf("Respond calls = %d, want 1", len(responder.calls))
	}
	if got := responder.calls[0]; got != (respondCall{"in Paris in celsius", "http://weather.example.com"}) {
		t.Errorf("Respond(%+v)", got)
	}
	if errs, total := traffic.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("traffic = %d/%d, want 0/1", errs, total)
	}
}

func TestHandler_PostWeather_Unauthorized(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
	}{
		{"wrong token", testToken, "nope"},
		{"missing token", testToken, ""},
		{"no token configured", "", "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			responder := &mockResponder{}
			handler := NewHandler(responder, Options{VerificationToken: tt.configured}, zap.NewNop())

			req := slashRequest(tt.sent, "Paris")
			req = req.WithContext(observability.WithLogger(req.Context(), zap.New(core)))
			w := httptest.NewRecorder()
			handler.PostWeather(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if w.Body.String() != "Unauthorized" {
				t.Errorf("body = %q, want Unauthorized", w.Body.String())
			}
			if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
				t.Errorf("Content-Type = %q, want text/plain", w.Header().Get("Content-Type"))
			}
			if len(responder.calls) != 0 {
				t.Error("responder called for unauthorized request")
			}
			if logs.FilterMessage("slash command rejected").Len() != 1 {
				t.Errorf("logs = %v, want one rejection entry", logs.All())
			}
		})
	}
}

func rawSlashRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandler_PostWeather_MalformedBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
	}{
		{"bad token bad escape", "token=wrong&text=%zz", http.StatusUnauthorized, "Unauthorized"},
		{"bad escape before token", "text=%zz&token=wrong", http.StatusUnauthorized, "Unauthorized"},
		{"no token bad escape", "text=%zz", http.StatusUnauthorized, "Unauthorized"},
		{"valid token bad escape", "token=" + testToken + "&text=%zz", http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responder := &mockResponder{}
			handler := NewHandler(responder, Options{VerificationToken: testToken}, zap.NewNop())

			w := httptest.NewRecorder()
			handler.PostWeather(w, rawSlashRequest(tt.body))

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", w.Body.String(), tt.wantBody)
			}
			if len(responder.calls) != 0 {
				t.Error("responder called for rejected request")
			}
		})
	}
}

func TestHandler_SlashCommand_LimitAfterToken(t *testing.T) {
	responder := &mockResponder{body: []byte(`{}`)}
	handler := NewHandler(responder, Options{VerificationToken: testToken}, zap.NewNop())
	var limited int
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited++
			next.ServeHTTP(w, r)
		})
	}
	h := handler.SlashCommand(limit)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, slashRequest("wrong", "Paris"))
	if w.Code != http.StatusUnauthorized || limited != 0 {
		t.Errorf("bad token: status = %d, limiter calls = %d, want 401 and 0", w.Code, limited)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, slashRequest(testToken, "Paris"))
	if w.Code != http.StatusOK || limited != 1 {
		t.Errorf("good token: status = %d, limiter calls = %d, want 200 and 1", w.Code, limited)
	}
}

func TestHandler_PostWeather_UpstreamError(t *testing.T) {
	traffic.Reset()
	core, logs := observer.New(zapcore.WarnLevel)
	responder := &mockResponder{err: errors.New("forecast: " + client.ErrUpstreamFailure.Error())}
	handler := NewHandler(responder, Options{VerificationToken: testToken}, zap.NewNop())

	req := slashRequest(testToken, "Paris")
	ctx := observability.WithCorrelationID(req.Context(), "corr-42")
	req = req.WithContext(observability.WithLogger(ctx, zap.New(core)))
	w := httptest.NewRecorder()
	handler.PostWeather(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body.Error.Code != "UPSTREAM_UNAVAILABLE" || body.Error.RequestID != "corr-42" {
		t.Errorf("error = %+v", body.Error)
	}
	if logs.FilterMessage("upstream error").Len() != 1 {
		t.Errorf("logs = %v, want upstream error entry", logs.All())
	}
	if errs, _ := traffic.ErrorRate(time.Minute); errs != 1 {
		t.Errorf("traffic errors = %d, want 1", errs)
	}
}

func TestRequestBaseURL(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"plain", "", "http://weather.example.com:8080"},
		{"forwarded https", "https", "https://weather.example.com:8080"},
		{"forwarded list", "HTTPS, http", "https://weather.example.com:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "weather.example.com:8080"
			if tt.header != "" {
				req.Header.Set("X-Forwarded-Proto", tt.header)
			}
			if got := requestBaseURL(req); got != tt.want {
				t.Errorf("requestBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return resp
}

func TestHandler_GetHealth(t *testing.T) {
	traffic.Reset()
	lifecycle.SetShuttingDown(false)
	handler := NewHandler(&mockResponder{}, Options{}, zap.NewNop())

	w := httptest.NewRecorder()
	handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp["status"] != "healthy" || resp["service"] != "slack-weather" {
		t.Errorf("resp = %v", resp)
	}
	if _, ok := resp["checks"].(map[string]interface{})["cache"]; ok {
		t.Error("cache check reported without CachePing")
	}
}

func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	lifecycle.SetShuttingDown(true)
	t.Cleanup(func() { lifecycle.SetShuttingDown(false) })
	handler := NewHandler(&mockResponder{}, Options{}, zap.NewNop())

	w := httptest.NewRecorder()
	handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if resp := decodeHealth(t, w); resp["status"] != "shutting-down" {
		t.Errorf("status = %v, want shutting-down", resp["status"])
	}
}

func TestHandler_GetHealth_ErrorRate(t *testing.T) {
	tests := []struct {
		name       string
		successes  int
		errors     int
		wantStatus string
		wantCode   int
	}{
		{"no traffic", 0, 0, "healthy", http.StatusOK},
		{"below threshold", 9, 1, "healthy", http.StatusOK},
		{"at threshold", 4, 1, "degraded", http.StatusServiceUnavailable},
		{"all errors", 0, 3, "degraded", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traffic.Reset()
			t.Cleanup(traffic.Reset)
			for i := 0; i < tt.successes; i++ {
				traffic.RecordSuccess()
			}
			for i := 0; i < tt.errors; i++ {
				traffic.RecordError()
			}
			for i := 0; i < 10; i++ {
				traffic.RecordDenied()
			}
			handler := NewHandler(&mockResponder{}, Options{
				Health: &HealthConfig{Window: time.Minute, DegradedErrorPct: 20},
			}, zap.NewNop())

			w := httptest.NewRecorder()
			handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if resp := decodeHealth(t, w); resp["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", resp["status"], tt.wantStatus)
			}
		})
	}
}

func TestHandler_GetHealth_CachePing(t *testing.T) {
	traffic.Reset()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"reachable", nil, "healthy"},
		{"unreachable", errors.New("dial tcp: connection refused"), "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(&mockResponder{}, Options{
				Health: &HealthConfig{CachePing: func() error { return tt.err }},
			}, zap.NewNop())

			w := httptest.NewRecorder()
			handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != http.StatusOK {
				t.Errorf("status code = %d, want 200 (cache failure degrades to miss)", w.Code)
			}
			checks := decodeHealth(t, w)["checks"].(map[string]interface{})
			if checks["cache"] != tt.want {
				t.Errorf("checks.cache = %v, want %s", checks["cache"], tt.want)
			}
		})
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	traffic.Reset()
	t.Cleanup(func() { lifecycle.SetShuttingDown(false) })
	core, logs := observer.New(zapcore.InfoLevel)
	handler := NewHandler(&mockResponder{}, Options{}, zap.New(core))

	handler.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	lifecycle.SetShuttingDown(true)
	handler.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "shutting-down" {
		t.Errorf("fields = %v", fields)
	}
}
