// Package provider sends prepared email requests through the MailerSend API
// and classifies the response into a small set of outcomes.
package provider

import (
	"context"
	"strings"
)

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from the provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Header returns the value of a response header, matched case-insensitively.
func (r *HTTPResponse) Header(name string) string {
	if r == nil {
		return ""
	}
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// OutcomeKind names the category of a provider call result.
type OutcomeKind string

const (
	OutcomeAccepted    OutcomeKind = "accepted"
	OutcomeRejected    OutcomeKind = "rejected"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeFailed      OutcomeKind = "failed"
)

// Outcome is the classified result of one send attempt.
type Outcome struct {
	Kind OutcomeKind
	// MessageID is the provider-issued id; set only for accepted sends and
	// may be empty when the provider omitted it.
	MessageID string
	// StatusCode is the HTTP status, or 0 when the request never completed.
	StatusCode int
	// Message is the provider's error text, empty if none was returned.
	Message string
	// Cause holds the transport error for failed calls, if any.
	Cause error
}

// Accepted reports whether the provider queued the message.
func (o Outcome) Accepted() bool { return o.Kind == OutcomeAccepted }

// Err converts a non-accepted outcome into a *ProviderError.
func (o Outcome) Err() error {
	if o.Accepted() {
		return nil
	}
	return &ProviderError{
		Provider:   providerName,
		Kind:       o.Kind,
		StatusCode: o.StatusCode,
		Message:    o.Message,
		Permanent:  isPermanent(o),
		Cause:      o.Cause,
	}
}
