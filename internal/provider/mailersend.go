package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sungwon/mailbridge/internal/request"
)

const (
	providerName    = "mailersend"
	defaultEndpoint = "https://api.mailersend.com"
	mailersendEmail = "/v1/email"
	mailersendQuota = "/v1/api-quota"
	messageIDHeader = "X-Message-Id"
)

// MailerSend sends email through the MailerSend v1 API.
type MailerSend struct {
	apiKey   string
	endpoint string
	client   HTTPClient
}

// NewMailerSend creates a MailerSend client from the given configuration.
func NewMailerSend(cfg Config, client HTTPClient) *MailerSend {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &MailerSend{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   client,
	}
}

// Dispatch sends one prepared request and classifies the response.
// It never retries.
func (m *MailerSend) Dispatch(ctx context.Context, req *request.EmailRequest) Outcome {
	body, err := json.Marshal(BuildPayload(req))
	if err != nil {
		return ClassifyTransportError(fmt.Errorf("mailersend: marshal request: %w", err))
	}

	resp, err := m.client.Do(ctx, &HTTPRequest{
		Method: http.MethodPost,
		URL:    m.endpoint + mailersendEmail,
		Headers: map[string]string{
			"Authorization": "Bearer " + m.apiKey,
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		Body: body,
	})
	if err != nil {
		return ClassifyTransportError(fmt.Errorf("mailersend: send request: %w", err))
	}

	return ClassifyResponse(resp)
}

// HealthCheck verifies API connectivity and credentials via the quota endpoint.
func (m *MailerSend) HealthCheck(ctx context.Context) error {
	resp, err := m.client.Do(ctx, &HTTPRequest{
		Method: http.MethodGet,
		URL:    m.endpoint + mailersendQuota,
		Headers: map[string]string{
			"Authorization": "Bearer " + m.apiKey,
			"Accept":        "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("mailersend: health check request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailersend: health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Payload matches the MailerSend v1 email JSON schema. Optional fields are
// omitted from the encoded body when unset, since the API treats a present
// field as intent.
type Payload struct {
	From            *Recipient      `json:"from,omitempty"`
	To              []Recipient     `json:"to"`
	CC              []Recipient     `json:"cc,omitempty"`
	BCC             []Recipient     `json:"bcc,omitempty"`
	ReplyTo         *Recipient      `json:"reply_to,omitempty"`
	Subject         string          `json:"subject,omitempty"`
	HTML            string          `json:"html,omitempty"`
	Text            string          `json:"text,omitempty"`
	TemplateID      string          `json:"template_id,omitempty"`
	Variables       json.RawMessage `json:"variables,omitempty"`
	Personalization json.RawMessage `json:"personalization,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	SendAt          *int64          `json:"send_at,omitempty"`
}

// Recipient is an address entry in the MailerSend payload.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// BuildPayload copies only the fields present in req into a provider payload.
func BuildPayload(req *request.EmailRequest) Payload {
	p := Payload{
		To:         toRecipients(req.To),
		Subject:    req.Subject,
		HTML:       req.HTML,
		Text:       req.Text,
		TemplateID: req.TemplateID,
	}

	if len(req.CC) > 0 {
		p.CC = toRecipients(req.CC)
	}
	if len(req.BCC) > 0 {
		p.BCC = toRecipients(req.BCC)
	}
	if req.From != nil && req.From.Email != "" {
		p.From = &Recipient{Email: req.From.Email, Name: req.From.Name}
	}
	if req.ReplyTo != nil && req.ReplyTo.Email != "" {
		p.ReplyTo = &Recipient{Email: req.ReplyTo.Email, Name: req.ReplyTo.Name}
	}
	if request.HasRaw(req.Variables) {
		p.Variables = req.Variables
	}
	if request.HasRaw(req.Personalization) {
		p.Personalization = req.Personalization
	}
	if len(req.Tags) > 0 {
		p.Tags = req.Tags
	}
	if req.SendAt != nil && !req.SendAt.IsZero() {
		sendAt := req.SendAt.Unix()
		p.SendAt = &sendAt
	}

	return p
}

func toRecipients(addrs []request.Address) []Recipient {
	out := make([]Recipient, len(addrs))
	for i, a := range addrs {
		out[i] = Recipient{Email: a.Email, Name: a.Name}
	}
	return out
}
