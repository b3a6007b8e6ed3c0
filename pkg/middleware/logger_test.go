package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{"ok", http.StatusOK, `{"generation":1}`, "info"},
		{"implicit ok", 0, "", "info"},
		{"not found", http.StatusNotFound, `{"error":"no dataset loaded"}`, "info"},
		{"bad gateway", http.StatusBadGateway, `{"error":"remote query failed"}`, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := chimiddleware.RequestID(Logger(zerolog.New(&buf))(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if tt.status != 0 {
						w.WriteHeader(tt.status)
					}
					w.Write([]byte(tt.body))
				}),
			))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse log entry %q: %v", buf.String(), err)
			}

			want := tt.status
			if want == 0 {
				want = http.StatusOK
			}
			if entry["status"] != float64(want) {
				t.Errorf("status = %v, want %d", entry["status"], want)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["method"] != "GET" || entry["path"] != "/api/snapshot" {
				t.Errorf("unexpected request fields %v %v", entry["method"], entry["path"])
			}
			if entry["bytes"] != float64(len(tt.body)) {
				t.Errorf("bytes = %v, want %d", entry["bytes"], len(tt.body))
			}
			if id, _ := entry["request_id"].(string); id == "" {
				t.Error("expected request id")
			}
			if _, ok := entry["trace_id"]; ok {
				t.Error("untraced request must not log a trace id")
			}
			if entry["message"] != "request completed" {
				t.Errorf("message = %v", entry["message"])
			}
		})
	}
}
