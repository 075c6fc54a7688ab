package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddlewareDisabled(t *testing.T) {
	auth := NewAuth(&AuthConfig{
		Enabled: false,
	})

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/admin/status", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 when auth disabled, got %d", rec.Code)
	}
}

func TestAuthMiddlewareMissingKey(t *testing.T) {
	auth := NewAuth(&AuthConfig{
		Enabled:    true,
		APIKeys:    map[string]string{"valid-key": "ops-east"},
		HeaderName: "X-API-Key",
	})

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/admin/status", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for missing key, got %d", rec.Code)
	}
}

func TestAuthMiddlewareInvalidKey(t *testing.T) {
	auth := NewAuth(&AuthConfig{
		Enabled:    true,
		APIKeys:    map[string]string{"valid-key": "ops-east"},
		HeaderName: "X-API-Key",
	})

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/admin/status", nil)
	req.Header.Set("X-API-Key", "invalid-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for invalid key, got %d", rec.Code)
	}
}

func TestAuthMiddlewareValidKey(t *testing.T) {
	auth := NewAuth(&AuthConfig{
		Enabled:    true,
		APIKeys:    map[string]string{"valid-key": "ops-east"},
		HeaderName: "X-API-Key",
	})

	var gotOperatorID string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOperatorID = r.Header.Get("X-Operator-ID")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/admin/status", nil)
	req.Header.Set("X-API-Key", "valid-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for valid key, got %d", rec.Code)
	}

	if gotOperatorID != "ops-east" {
		t.Errorf("expected operator ID 'ops-east', got '%s'", gotOperatorID)
	}
}

func TestAuthMiddlewareBearerToken(t *testing.T) {
	auth := NewAuth(&AuthConfig{
		Enabled:    true,
		APIKeys:    map[string]string{"bearer-token": "ops-west"},
		HeaderName: "X-API-Key",
	})

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/admin/status", nil)
	req.Header.Set("Authorization", "Bearer bearer-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for Bearer token, got %d", rec.Code)
	}
}

func TestAuthMiddlewareBypassPaths(t *testing.T) {
	auth := NewAuth(&AuthConfig{
		Enabled:     true,
		APIKeys:     map[string]string{"key": "ops-east"},
		HeaderName:  "X-API-Key",
		BypassPaths: []string{"/health", "/metrics"},
	})

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/health", http.StatusOK},
		{"/health/live", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/admin/auctions", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tt.wantCode {
			t.Errorf("path %s: expected %d, got %d", tt.path, tt.wantCode, rec.Code)
		}
	}
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		input    string
		expected map[string]string
	}{
		{"", map[string]string{}},
		{"key1:ops-east", map[string]string{"key1": "ops-east"}},
		{"key1:ops-east,key2:ops-west", map[string]string{"key1": "ops-east", "key2": "ops-west"}},
		{"key1", map[string]string{"key1": "default"}},
		{" key1 : ops-east , key2 : ops-west ", map[string]string{"key1": "ops-east", "key2": "ops-west"}},
	}

	for _, tt := range tests {
		result := parseAPIKeys(tt.input)
		if len(result) != len(tt.expected) {
			t.Errorf("input %q: expected %d keys, got %d", tt.input, len(tt.expected), len(result))
			continue
		}
		for k, v := range tt.expected {
			if result[k] != v {
				t.Errorf("input %q: expected %s=%s, got %s", tt.input, k, v, result[k])
			}
		}
	}
}
