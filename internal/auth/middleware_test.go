package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticVerifier string

func (s staticVerifier) Verify(key string) error {
	if key != string(s) {
		return ErrInvalidKey
	}
	return nil
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid key", header: "Bearer valid-key", want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer valid-key", want: http.StatusOK},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", want: http.StatusUnauthorized},
		{name: "empty key", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer other-key", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := BearerAuth(staticVerifier("valid-key"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/emails", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("next handler called = %v", called)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("Content-Type") != "application/json" {
				t.Error("expected JSON error response")
			}
		})
	}
}
