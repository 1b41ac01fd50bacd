package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sungwon/mailbridge/internal/logger"
	"github.com/sungwon/mailbridge/internal/metrics"
	"github.com/sungwon/mailbridge/internal/webhook"
)

// Archiver stores verified webhook bodies.
type Archiver interface {
	Store(ctx context.Context, kind string, body []byte) (string, error)
}

// EventHandler applies a parsed webhook event.
type EventHandler interface {
	Handle(ctx context.Context, ev webhook.Event) (webhook.Result, error)
}

// WebhookConfig configures signature checking for the webhook endpoint.
type WebhookConfig struct {
	SigningSecret   string
	SignatureHeader string
	MaxBodyBytes    int64
}

const (
	msgMissing          = "Something is missing"
	msgInvalidSignature = "Invalid signature"
	kindMalformed       = "malformed"
)

// WebhookHandler handles POST on the configured webhook path. The body is
// verified against the signing secret before anything else happens to it.
// archive may be nil.
func WebhookHandler(cfg WebhookConfig, archive Archiver, events EventHandler) http.HandlerFunc {
	header := cfg.SignatureHeader
	if header == "" {
		header = webhook.DefaultSignatureHeader
	}

	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		body, err := readBody(w, r, cfg.MaxBodyBytes)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				metrics.WebhookEventsTotal.WithLabelValues("too_large").Inc()
				respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			log.Warn().Err(err).Msg("webhook: failed to read body")
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		signature := r.Header.Get(header)
		if cfg.SigningSecret == "" || signature == "" || len(body) == 0 {
			log.Error().
				Bool("secret_configured", cfg.SigningSecret != "").
				Bool("signature_present", signature != "").
				Int("body_bytes", len(body)).
				Msg("webhook: signature prerequisites missing")
			metrics.WebhookEventsTotal.WithLabelValues("missing_prerequisites").Inc()
			respondText(w, http.StatusInternalServerError, msgMissing)
			return
		}

		if !webhook.Verify(body, cfg.SigningSecret, signature) {
			log.Warn().Msg("webhook: invalid signature")
			metrics.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
			respondText(w, http.StatusForbidden, msgInvalidSignature)
			return
		}

		log.Debug().RawJSON("body", rawOrQuoted(body)).Msg("webhook: verified body")

		ev, parseErr := webhook.ParseEvent(body)
		kind := ev.Type
		if parseErr != nil || kind == "" {
			kind = kindMalformed
		}
		if archive != nil {
			if key, err := archive.Store(r.Context(), kind, body); err != nil {
				log.Error().Err(err).Str("kind", kind).Msg("webhook: archive failed")
			} else if key != "" {
				log.Debug().Str("archive_key", key).Msg("webhook: body archived")
			}
		}

		if parseErr != nil {
			log.Warn().Err(parseErr).Msg("webhook: malformed event")
			metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
			respondError(w, http.StatusBadRequest, parseErr.Error())
			return
		}

		result, err := events.Handle(r.Context(), ev)
		switch {
		case err == nil:
		case errors.Is(err, webhook.ErrMalformedWebhook):
			respondError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, webhook.ErrRecordNotFound):
			log.Warn().Str("message_id", ev.MessageID()).Msg("webhook: no record for message id")
			respondError(w, http.StatusNotFound, err.Error())
			return
		default:
			log.Error().Err(err).Str("message_id", ev.MessageID()).Msg("webhook: reconcile failed")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		log.Info().
			Str("message_id", ev.MessageID()).
			Str("event_type", ev.Type).
			Str("result", string(result)).
			Msg("webhook processed")
		respondText(w, http.StatusOK, "OK")
	}
}

// readBody reads the full request body, limited to maxBytes when positive.
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	defer body.Close()
	return io.ReadAll(body)
}

// rawOrQuoted returns body when it is valid JSON, otherwise body encoded as
// a JSON string.
func rawOrQuoted(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
