package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCSRFMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		wantCalled  bool
		wantStatus  int
	}{
		{"GET without content type", http.MethodGet, "", true, http.StatusOK},
		{"OPTIONS passes", http.MethodOptions, "", true, http.StatusOK},
		{"POST with JSON", http.MethodPost, "application/json", true, http.StatusOK},
		{"POST with JSON charset", http.MethodPost, "application/json; charset=utf-8", true, http.StatusOK},
		{"PATCH with JSON", http.MethodPatch, "application/json", true, http.StatusOK},
		{"POST form", http.MethodPost, "application/x-www-form-urlencoded", false, http.StatusUnsupportedMediaType},
		{"POST text/plain", http.MethodPost, "text/plain", false, http.StatusUnsupportedMediaType},
		{"POST without content type", http.MethodPost, "", false, http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewCSRFMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/auth/signout", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if called != tt.wantCalled {
				t.Errorf("called = %v, want %v", called, tt.wantCalled)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
