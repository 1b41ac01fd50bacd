package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailbridge/internal/logger"
	"github.com/sungwon/mailbridge/internal/metrics"
	"github.com/sungwon/mailbridge/internal/storage"
)

var (
	// ErrMalformedWebhook means the body is not a usable activity event.
	ErrMalformedWebhook = errors.New("malformed webhook")
	// ErrRecordNotFound means no record carries the event's message id.
	ErrRecordNotFound = errors.New("record not found")
)

// statusSent is the only email status that counts as delivered.
const statusSent = "sent"

const unknownReason = "Unknown error"

// Result is the outcome of handling one event.
type Result string

const (
	Updated          Result = "updated"
	AlreadyProcessed Result = "already_processed"
)

// Store is the record access the reconciler needs.
type Store interface {
	FindBySentMessageID(ctx context.Context, messageID string) (*storage.Record, error)
	Update(ctx context.Context, id string, p storage.Patch) error
}

// ProcessedFunc decides whether a record's delivery status is already final.
type ProcessedFunc func(storage.DeliveryStatus) bool

// DeliveryResolved treats any delivery state other than PENDING (or unset)
// as final.
func DeliveryResolved(d storage.DeliveryStatus) bool {
	return d.State != "" && d.State != storage.StatePending
}

// Reconciler applies delivery events to records.
type Reconciler struct {
	store     Store
	processed ProcessedFunc
	log       zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithProcessedFunc replaces the already-processed check.
func WithProcessedFunc(fn ProcessedFunc) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.processed = fn
		}
	}
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store Store, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     store,
		processed: DeliveryResolved,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle looks up the record for ev and writes its delivery outcome. A
// record whose delivery is already resolved is left unchanged.
func (r *Reconciler) Handle(ctx context.Context, ev Event) (Result, error) {
	if err := ev.validate(); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return "", err
	}

	messageID := ev.MessageID()
	log := logger.FromContextOr(ctx, r.log).With().
		Str("message_id", messageID).
		Str("event_type", ev.Type).
		Logger()

	rec, err := r.store.FindBySentMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.WebhookEventsTotal.WithLabelValues("not_found").Inc()
			log.Warn().Msg("no record for webhook message id")
			return "", fmt.Errorf("%w: message %s", ErrRecordNotFound, messageID)
		}
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("find record for message %s: %w", messageID, err)
	}

	if r.processed(rec.Delivery) {
		metrics.WebhookEventsTotal.WithLabelValues(string(AlreadyProcessed)).Inc()
		log.Info().
			Str("record_id", rec.ID).
			Str("delivery_state", string(rec.Delivery.State)).
			Msg("delivery already resolved, ignoring event")
		return AlreadyProcessed, nil
	}

	patch := DeliveryPatch(ev)
	if err := r.store.Update(ctx, rec.ID, patch); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("update record %s: %w", rec.ID, err)
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(Updated)).Inc()
	log.Info().
		Str("record_id", rec.ID).
		Stringer("patch", patch).
		Msg("delivery status reconciled")
	return Updated, nil
}

// DeliveryPatch maps an event onto the delivery fields of a record.
func DeliveryPatch(ev Event) storage.Patch {
	p := storage.Patch{
		storage.FieldDeliveryState: storage.StateSuccess,
		storage.FieldDeliveryError: nil,
		storage.FieldMessageID:     ev.MessageID(),
	}
	if ev.Data.Email.Status == statusSent {
		return p
	}

	reason := ev.Reason()
	if reason == "" {
		reason = unknownReason
	}
	p[storage.FieldDeliveryState] = storage.StateError
	p[storage.FieldDeliveryError] = fmt.Sprintf("[%s] %s", ev.Kind(), reason)
	return p
}
