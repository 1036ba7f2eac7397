package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kjstillabower/slack-weather/internal/client"
)

func TestHandler_StaticPages(t *testing.T) {
	handler := NewHandler(&mockResponder{}, Options{SlackClientID: "123.456"}, zap.NewNop())
	tests := []struct {
		name    string
		serve   http.HandlerFunc
		title   string
		content string
	}{
		{"index", handler.GetIndex, "<title>/weather: weather in slack</title>", "client_id=123.456"},
		{"privacy", handler.GetPrivacy, "<title>/weather privacy policy</title>", "Privacy policy"},
		{"support", handler.GetSupport, "<title>/weather support</title>", "/weather help"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.serve(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
				t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.title) || !strings.Contains(body, tt.content) {
				t.Errorf("body missing %q or %q:\n%s", tt.title, tt.content, body)
			}
		})
	}
}

func TestHandler_GetIndex_NoClientID(t *testing.T) {
	handler := NewHandler(&mockResponder{}, Options{}, zap.NewNop())
	w := httptest.NewRecorder()
	handler.GetIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(w.Body.String(), "Add to Slack") {
		t.Error("Add to Slack button rendered without a client id")
	}
}

func TestHandler_GetAuth(t *testing.T) {
	okResult := client.OAuthResult{OK: true}
	okResult.Team.Name = "Acme"

	tests := []struct {
		name      string
		query     string
		oauth     *mockOAuth
		wantTitle string
	}{
		{"success", "?code=abc", &mockOAuth{result: okResult}, "Success!"},
		{"slack rejects", "?code=abc", &mockOAuth{result: client.OAuthResult{Error: "invalid_code"}}, "Auth failed!"},
		{"exchange error", "?code=abc", &mockOAuth{err: errors.New("boom")}, "Auth failed!"},
		{"missing code", "", &mockOAuth{result: okResult}, "Auth failed!"},
		{"not configured", "?code=abc", nil, "Auth failed!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{}
			if tt.oauth != nil {
				opts.OAuth = tt.oauth
			}
			handler := NewHandler(&mockResponder{}, opts, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/auth"+tt.query, nil)
			req.Host = "weather.example.com"
			req.Header.Set("X-Forwarded-Proto", "https")
			w := httptest.NewRecorder()
			handler.GetAuth(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if !strings.Contains(w.Body.String(), "<title>"+tt.wantTitle+"</title>") {
				t.Errorf("body does not have title %q", tt.wantTitle)
			}
			if tt.oauth != nil && tt.query != "" {
				if tt.oauth.code != "abc" || tt.oauth.uri != "https://weather.example.com/auth" {
					t.Errorf("Exchange(%q, %q)", tt.oauth.code, tt.oauth.uri)
				}
			}
		})
	}
}

func TestHandler_OAuthRedirect_PublicURL(t *testing.T) {
	oauth := &mockOAuth{result: client.OAuthResult{OK: true}}
	handler := NewHandler(&mockResponder{}, Options{
		SlackClientID: "123.456",
		OAuth:         oauth,
		PublicURL:     "https://weather.example.com/",
	}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/auth?code=abc", nil)
	req.Host = "10.0.0.7:8080"
	handler.GetAuth(httptest.NewRecorder(), req)
	if oauth.uri != "https://weather.example.com/auth" {
		t.Errorf("Exchange redirect = %q, want public URL", oauth.uri)
	}

	w := httptest.NewRecorder()
	index := httptest.NewRequest(http.MethodGet, "/", nil)
	index.Host = "10.0.0.7:8080"
	handler.GetIndex(w, index)
	body := w.Body.String()
	if !strings.Contains(body, "weather.example.com") || strings.Contains(body, "10.0.0.7") {
		t.Errorf("index redirect_uri not built from public URL:\n%s", body)
	}
}
