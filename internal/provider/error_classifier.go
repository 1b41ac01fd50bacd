package provider

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ProviderError wraps a non-accepted provider response with classification metadata.
type ProviderError struct {
	// Provider is the name of the ESP that returned the error.
	Provider string
	// Kind is the outcome category.
	Kind OutcomeKind
	// StatusCode is the HTTP status code from the ESP API.
	StatusCode int
	// Message is the error description from the ESP API.
	Message string
	// Permanent indicates the same request will not succeed if sent again.
	Permanent bool
	// Cause is the underlying transport error, if any.
	Cause error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	return e.Provider + ": " + msg
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsPermanent returns true if err is a provider error that would fail again
// on resubmission.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return false
}

// ClassifyResponse maps a completed HTTP exchange onto an Outcome.
// Only 202 counts as accepted; any other 2xx is a failure.
func ClassifyResponse(resp *HTTPResponse) Outcome {
	switch resp.StatusCode {
	case http.StatusAccepted:
		return Outcome{
			Kind:       OutcomeAccepted,
			StatusCode: resp.StatusCode,
			MessageID:  resp.Header(messageIDHeader),
		}
	case http.StatusUnprocessableEntity:
		return Outcome{
			Kind:       OutcomeRejected,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(resp.Body),
		}
	case http.StatusTooManyRequests:
		return Outcome{
			Kind:       OutcomeRateLimited,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(resp.Body),
		}
	default:
		return Outcome{
			Kind:       OutcomeFailed,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(resp.Body),
		}
	}
}

// ClassifyTransportError builds the outcome for a request that never
// produced a response.
func ClassifyTransportError(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Cause: err}
}

// extractMessage returns the "message" field of a JSON error body, falling
// back to the raw body text.
func extractMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}

func isPermanent(o Outcome) bool {
	switch o.Kind {
	case OutcomeRejected:
		return true
	case OutcomeRateLimited:
		return false
	}
	// Unauthorized, forbidden and other client errors will not change on resend.
	return o.StatusCode >= 400 && o.StatusCode < 500
}
