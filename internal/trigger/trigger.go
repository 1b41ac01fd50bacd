// Package trigger delivers "record created" events to the send orchestrator.
// Each Source consumes events sequentially and hands the record id to a
// Handler exactly once per received event. Failed events are not retried.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailbridge/internal/logger"
	"github.com/sungwon/mailbridge/internal/metrics"
)

// ErrInvalidEvent is returned when an event payload carries no record id.
var ErrInvalidEvent = errors.New("trigger: invalid event payload")

// Handler processes one created record.
type Handler interface {
	HandleCreated(ctx context.Context, id string) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, id string) error

// HandleCreated implements Handler.
func (f HandlerFunc) HandleCreated(ctx context.Context, id string) error {
	return f(ctx, id)
}

// Source consumes record-created events until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// Event is the message body published for a created record.
type Event struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ParseEvent extracts the record id from a payload. JSON objects are decoded
// as Event; anything else is treated as a bare id.
func ParseEvent(payload string) (Event, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		ev.ID = strings.TrimSpace(ev.ID)
		if ev.ID == "" {
			return Event{}, fmt.Errorf("%w: missing id", ErrInvalidEvent)
		}
		return ev, nil
	}
	if payload == "" {
		return Event{}, fmt.Errorf("%w: empty payload", ErrInvalidEvent)
	}
	return Event{ID: payload}, nil
}

// deliver parses payload and invokes h. It returns the metrics status label.
func deliver(ctx context.Context, source string, h Handler, payload string, log zerolog.Logger) string {
	ev, err := ParseEvent(payload)
	if err != nil {
		log.Error().Err(err).Str("payload", payload).Msg("dropping malformed trigger event")
		metrics.TriggerEventsTotal.WithLabelValues(source, "invalid").Inc()
		return "invalid"
	}

	ctx = logger.WithCorrelationID(ctx, logger.NewCorrelationID())
	ctx = logger.WithLogger(ctx, log)
	evLog := logger.FromContext(ctx).With().Str("record_id", ev.ID).Logger()

	status := "handled"
	if err := h.HandleCreated(ctx, ev.ID); err != nil {
		evLog.Error().Err(err).Msg("trigger event handling failed")
		status = "failed"
	}
	metrics.TriggerEventsTotal.WithLabelValues(source, status).Inc()
	return status
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
