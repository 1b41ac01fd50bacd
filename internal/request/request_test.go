package request

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEmailRequest_UnmarshalSendAt(t *testing.T) {
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		body    string
		want    *time.Time
		wantErr string
	}{
		{name: "absent", body: `{"to":[{"email":"a@x.com"}]}`},
		{name: "null", body: `{"send_at":null}`},
		{name: "rfc3339", body: `{"send_at":"2025-01-01T00:00:00Z"}`, want: &want},
		{name: "unix seconds", body: `{"send_at":1735689600}`, want: &want},
		{name: "fractional", body: `{"send_at":1.5}`, wantErr: "unix seconds"},
		{name: "bad string", body: `{"send_at":"tomorrow"}`, wantErr: "send_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req EmailRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			switch {
			case tt.want == nil && req.SendAt != nil:
				t.Errorf("expected no send_at, got %v", req.SendAt)
			case tt.want != nil && (req.SendAt == nil || !req.SendAt.Equal(*tt.want)):
				t.Errorf("expected send_at %v, got %v", tt.want, req.SendAt)
			}
		})
	}
}

func TestEmailRequest_UnmarshalKeepsOtherFields(t *testing.T) {
	var req EmailRequest
	body := `{"to":[{"email":"a@x.com","name":"A"}],"subject":"Hi","tags":["t"],"variables":[{"k":"v"}],"send_at":1735689600}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(req.To) != 1 || req.To[0].Name != "A" || req.Subject != "Hi" || len(req.Tags) != 1 {
		t.Errorf("unexpected request %+v", req)
	}
	if string(req.Variables) != `[{"k":"v"}]` {
		t.Errorf("expected variables passed through, got %s", req.Variables)
	}
}
