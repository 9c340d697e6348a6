package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func runCORS(t *testing.T, allowed []string, method, origin string) *http.Response {
	t.Helper()
	handler := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(method, "/api/sessions", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Result()
}

func TestCORSAllowedOrigin(t *testing.T) {
	resp := runCORS(t, []string{"https://app.example.com"}, http.MethodGet, "https://app.example.com")

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q, want the request origin", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q, want GET, POST, OPTIONS", got)
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "" {
		t.Error("Allow-Credentials set on a cookie-free API")
	}
}

func TestCORSRejectedOrigin(t *testing.T) {
	resp := runCORS(t, []string{"https://app.example.com"}, http.MethodGet, "https://evil.example.com")

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for a rejected origin, want empty", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	resp := runCORS(t, []string{"*"}, http.MethodOptions, "https://anywhere.example.com")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://anywhere.example.com" {
		t.Errorf("Allow-Origin = %q, want the request origin under wildcard", got)
	}
}
