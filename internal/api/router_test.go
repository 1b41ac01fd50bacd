package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailbridge/internal/webhook"
)

func testRouter(store *fakeRecordStore) http.Handler {
	return NewRouter(Deps{
		DB:          mockPinger{},
		Emails:      &mockEmailStore{},
		Events:      webhook.NewReconciler(store, zerolog.Nop()),
		WebhookPath: "/webhooks/mailersend",
		Webhook:     WebhookConfig{SigningSecret: testSecret},
		Log:         zerolog.Nop(),
	})
}

func TestRouter_Routes(t *testing.T) {
	router := testRouter(newFakeRecordStore(pendingRecord("rec-1", "MSG1")))

	tests := []struct {
		method   string
		path     string
		body     string
		wantCode int
	}{
		{method: http.MethodGet, path: "/healthz", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/readyz", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/metrics", wantCode: http.StatusOK},
		{method: http.MethodPost, path: "/api/v1/emails", body: `{"to":[{"email":"a@x.com"}]}`, wantCode: http.StatusCreated},
		{method: http.MethodGet, path: "/api/v1/emails/unknown", wantCode: http.StatusNotFound},
		{method: http.MethodPost, path: "/webhooks/mailersend", body: `{}`, wantCode: http.StatusInternalServerError},
		{method: http.MethodGet, path: "/webhooks/mailersend", wantCode: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if rec.Header().Get("X-Correlation-ID") == "" {
				t.Error("expected X-Correlation-ID header")
			}
		})
	}
}

func TestRouter_SignedWebhookUpdatesRecord(t *testing.T) {
	store := newFakeRecordStore(pendingRecord("rec-1", "MSG1"))
	body := webhookBody("activity.delivered", "MSG1", "sent")

	rec := postWebhook(testRouter(store), body, webhook.Sign([]byte(body), testSecret))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if _, ok := store.updates["rec-1"]; !ok {
		t.Error("expected record update through router")
	}
}

type keyVerifier string

func (k keyVerifier) Verify(key string) error {
	if key != string(k) {
		return errors.New("invalid key")
	}
	return nil
}

func TestRouter_IntakeAuth(t *testing.T) {
	router := NewRouter(Deps{
		DB:          mockPinger{},
		Emails:      &mockEmailStore{},
		Events:      webhook.NewReconciler(newFakeRecordStore(), zerolog.Nop()),
		IntakeAuth:  keyVerifier("intake-key"),
		WebhookPath: "/webhooks/mailersend",
		Log:         zerolog.Nop(),
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no key", want: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid key", header: "Bearer intake-key", want: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/emails", strings.NewReader(`{"to":[{"email":"a@x.com"}]}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected health endpoint to stay open, got %d", rec.Code)
	}
}
