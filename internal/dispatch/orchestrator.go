// Package dispatch turns a newly created email request record into one
// provider send and writes the outcome back onto the record.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailbridge/internal/logger"
	"github.com/sungwon/mailbridge/internal/metrics"
	"github.com/sungwon/mailbridge/internal/provider"
	"github.com/sungwon/mailbridge/internal/request"
	"github.com/sungwon/mailbridge/internal/storage"
)

// Snapshot is the record view handed to the orchestrator by a trigger.
type Snapshot interface {
	ID() string
	Data() request.EmailRequest
	// PayloadErr is non-nil when the stored document could not be decoded.
	PayloadErr() error
	Update(ctx context.Context, p storage.Patch) error
}

// Loader resolves a record id into a Snapshot.
type Loader interface {
	Load(ctx context.Context, id string) (Snapshot, error)
}

// Preparer normalizes and validates a stored request.
type Preparer interface {
	Prepare(raw request.EmailRequest) (*request.EmailRequest, error)
}

// Sender submits a prepared request to the provider.
type Sender interface {
	Dispatch(ctx context.Context, req *request.EmailRequest) provider.Outcome
}

// Orchestrator runs prepare and dispatch for created records.
type Orchestrator struct {
	preparer Preparer
	sender   Sender
	loader   Loader
	log      zerolog.Logger
}

// NewOrchestrator creates an Orchestrator. loader may be nil when only
// OnRequestCreated is used.
func NewOrchestrator(preparer Preparer, sender Sender, loader Loader, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		preparer: preparer,
		sender:   sender,
		loader:   loader,
		log:      log,
	}
}

// initialPatch is the status shape every processed record starts from.
func initialPatch() storage.Patch {
	return storage.Patch{
		storage.FieldSentState:         storage.StatePending,
		storage.FieldSentError:         nil,
		storage.FieldSentMessageID:     nil,
		storage.FieldDeliveryState:     storage.StatePending,
		storage.FieldDeliveryError:     nil,
		storage.FieldDeliveryMessageID: "",
	}
}

// OnRequestCreated prepares and sends the request held by snap and writes
// exactly one status patch back. It never returns an error and never
// panics; failures end up in sent.state = ERROR.
func (o *Orchestrator) OnRequestCreated(ctx context.Context, snap Snapshot) {
	log := logger.FromContextOr(ctx, o.log).With().Str("record_id", snap.ID()).Logger()
	defer func() {
		if r := recover(); r != nil {
			metrics.StatusWriteFailuresTotal.Inc()
			log.Error().Interface("panic", r).Msg("recovered panic while writing send status")
		}
	}()

	start := time.Now()
	patch, outcome := o.process(ctx, snap, log)
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	metrics.SendOutcomesTotal.WithLabelValues(outcome).Inc()

	if err := snap.Update(ctx, patch); err != nil {
		metrics.StatusWriteFailuresTotal.Inc()
		log.Error().Err(err).
			Stringer("patch", patch).
			Msg("failed to write send status")
		return
	}

	log.Info().
		Str("outcome", outcome).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("send status written")
}

// process builds the status patch. The returned label is used for metrics.
func (o *Orchestrator) process(ctx context.Context, snap Snapshot, log zerolog.Logger) (patch storage.Patch, label string) {
	patch = initialPatch()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Msg("recovered panic while sending request")
			patch = initialPatch()
			patch[storage.FieldSentState] = storage.StateError
			patch[storage.FieldSentError] = fmt.Sprintf("unexpected failure: %v", r)
			label = "panic"
		}
	}()

	if err := snap.PayloadErr(); err != nil {
		log.Warn().Err(err).Msg("stored request could not be decoded")
		patch[storage.FieldSentState] = storage.StateError
		patch[storage.FieldSentError] = err.Error()
		return patch, "invalid"
	}

	prepared, err := o.preparer.Prepare(snap.Data())
	if err != nil {
		var verr *request.ValidationError
		if errors.As(err, &verr) {
			log.Warn().Str("reason", verr.Reason.Error()).Msg("request rejected before send")
		} else {
			log.Error().Err(err).Msg("request preparation failed")
		}
		patch[storage.FieldSentState] = storage.StateError
		patch[storage.FieldSentError] = err.Error()
		return patch, "invalid"
	}

	outcome := o.sender.Dispatch(ctx, prepared)
	if outcome.Accepted() {
		patch[storage.FieldSentState] = storage.StateSuccess
		patch[storage.FieldSentMessageID] = outcome.MessageID
		patch[storage.FieldDeliveryMessageID] = outcome.MessageID
		log.Info().Str("message_id", outcome.MessageID).Msg("provider accepted request")
		return patch, string(outcome.Kind)
	}

	sendErr := outcome.Err()
	log.Error().Err(sendErr).
		Str("outcome", string(outcome.Kind)).
		Int("status_code", outcome.StatusCode).
		Bool("permanent", provider.IsPermanent(sendErr)).
		Msg("provider did not accept request")

	patch[storage.FieldSentState] = storage.StateError
	patch[storage.FieldSentError] = outcome.Message
	return patch, string(outcome.Kind)
}

// HandleCreated loads the record and runs OnRequestCreated on it. A missing
// record is logged and acknowledged. Only load failures are returned.
func (o *Orchestrator) HandleCreated(ctx context.Context, id string) error {
	if o.loader == nil {
		return errors.New("dispatch: no record loader configured")
	}

	snap, err := o.loader.Load(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log := logger.FromContextOr(ctx, o.log)
			log.Warn().
				Str("record_id", id).
				Msg("created record not found, acknowledging")
			return nil
		}
		return fmt.Errorf("load record %s: %w", id, err)
	}

	o.OnRequestCreated(ctx, snap)
	return nil
}

// RecordsLoader loads snapshots from a storage.Records repository.
type RecordsLoader struct {
	Records *storage.Records
}

// Load implements Loader.
func (l RecordsLoader) Load(ctx context.Context, id string) (Snapshot, error) {
	snap, err := l.Records.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
