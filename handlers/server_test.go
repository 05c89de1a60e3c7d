package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"veo3.app/license/internal/testutil"
	"veo3.app/license/license"
)

func newTestServer(t *testing.T, opts Options) (*Server, *license.Registry) {
	t.Helper()

	store := testutil.TestStorage()
	if err := testutil.SetupTestData(store); err != nil {
		t.Fatalf("failed to set up test data: %v", err)
	}
	registry := testutil.TestRegistry(store)
	return NewHttpServer(registry, opts), registry
}

func TestNewHttpServer(t *testing.T) {
	server, registry := newTestServer(t, Options{})

	if server.Router == nil {
		t.Fatal("expected router to be initialized")
	}
	if server.Registry != registry {
		t.Error("expected registry to be assigned")
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, Options{})

	w := testutil.DoJSON(t, server, http.MethodGet, "/api/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	body := testutil.DecodeBody(t, w)
	testutil.AssertKeys(t, body, "status", "service", "privacy")
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["service"] != "VEO3 License API" {
		t.Errorf("unexpected service %v", body["service"])
	}
	if body["privacy"] != "No tracking, no analytics, no user data collection" {
		t.Errorf("unexpected privacy statement %v", body["privacy"])
	}
}

func TestServer_Routing(t *testing.T) {
	server, _ := newTestServer(t, Options{})

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"health GET", http.MethodGet, "/api/health", http.StatusOK},
		{"health POST", http.MethodPost, "/api/health", http.StatusMethodNotAllowed},
		{"verify GET", http.MethodGet, "/api/verify-license", http.StatusMethodNotAllowed},
		{"activate GET", http.MethodGet, "/api/verify-license/activate", http.StatusMethodNotAllowed},
		{"create GET", http.MethodGet, "/api/admin/create-license", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/unknown", http.StatusNotFound},
		{"stripe disabled", http.MethodPost, "/api/webhooks/stripe", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.DoJSON(t, server, tt.method, tt.path, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestServer_CORS(t *testing.T) {
	tests := []struct {
		name           string
		allowed        []string
		origin         string
		expectedHeader string
	}{
		{"default allows any origin", nil, "https://example.com", "*"},
		{"configured origin", []string{"https://veo3.app"}, "https://veo3.app", "https://veo3.app"},
		{"other origin rejected", []string{"https://veo3.app"}, "https://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, Options{AllowedOrigins: tt.allowed})

			req := httptest.NewRequest(http.MethodOptions, "/api/verify-license", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.expectedHeader {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.expectedHeader, got)
			}
		})
	}
}

func TestServer_RecoversFromPanics(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	server.Router.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	w := testutil.DoJSON(t, server, http.MethodGet, "/panic", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}
