package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{"https://tickets.example.com", " https://admin.example.com/ "}, next)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"preflight allowed origin", http.MethodOptions, "https://tickets.example.com", http.StatusNoContent, "https://tickets.example.com"},
		{"preflight trimmed origin", http.MethodOptions, "https://admin.example.com", http.StatusNoContent, "https://admin.example.com"},
		{"preflight unknown origin", http.MethodOptions, "https://evil.example.com", http.StatusNoContent, ""},
		{"request allowed origin", http.MethodGet, "https://tickets.example.com", http.StatusOK, "https://tickets.example.com"},
		{"request unknown origin", http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://test/bookings", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			require.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.method == http.MethodOptions && tt.wantOrigin != "" {
				require.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}
