package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173", "https://reports.example.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	tests := []struct {
		name          string
		method        string
		origin        string
		requestMethod string
		wantOrigin    string
	}{
		{"snapshot read", http.MethodGet, "http://localhost:5173", "", "http://localhost:5173"},
		{"second origin", http.MethodGet, "https://reports.example.com", "", "https://reports.example.com"},
		{"foreign origin", http.MethodGet, "http://evil.example", "", ""},
		{"preflight filters update", http.MethodOptions, "http://localhost:5173", http.MethodPut, "http://localhost:5173"},
		{"preflight delete", http.MethodOptions, "http://localhost:5173", http.MethodDelete, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/filters", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.requestMethod != "" {
				req.Header.Set("Access-Control-Request-Method", tt.requestMethod)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestCORSExposesSnapshotHeaders(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="cdr.xlsx"`)
		w.Header().Set("X-Generation", "3")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/export.xlsx", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	for _, name := range []string{"Content-Disposition", "X-Dataset-Id", "X-Generation"} {
		if !strings.Contains(exposed, name) {
			t.Errorf("expected %s exposed, got %q", name, exposed)
		}
	}
}
