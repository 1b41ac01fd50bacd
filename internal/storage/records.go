package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/mailbridge/internal/metrics"
	"github.com/sungwon/mailbridge/internal/request"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("storage: record not found")
	// ErrInvalidPayload marks a stored request document that does not decode
	// into a request. The record itself is still returned.
	ErrInvalidPayload = errors.New("invalid request payload")
)

// DefaultCollection is the table created by the bundled migrations.
const DefaultCollection = "email_requests"

// notifyFunction is the trigger function created by the bundled migrations.
const notifyFunction = "notify_email_request_created"

// dbtx is the subset of pgxpool.Pool used by Records.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SendStatus is the submission outcome stored under "sent".
type SendStatus struct {
	State     State   `json:"state"`
	Error     *string `json:"error"`
	MessageID *string `json:"message_id"`
}

// DeliveryStatus is the final delivery outcome stored under "delivery".
type DeliveryStatus struct {
	State     State   `json:"state"`
	Error     *string `json:"error"`
	MessageID *string `json:"message_id"`
}

// Record is one stored email request together with its status fields.
type Record struct {
	ID        string               `json:"id"`
	Request   request.EmailRequest `json:"request"`
	Sent      SendStatus           `json:"sent"`
	Delivery  DeliveryStatus       `json:"delivery"`
	MessageID *string              `json:"message_id"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`

	// PayloadErr wraps ErrInvalidPayload when the stored document could not
	// be decoded. Request is left zero in that case.
	PayloadErr error `json:"-"`
}

// Records reads and patches email request records in one collection table.
type Records struct {
	db         dbtx
	collection string
	table      string
}

// NewRecords creates a Records repository over the given collection table.
// An empty collection selects DefaultCollection.
func NewRecords(db dbtx, collection string) *Records {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Records{
		db:         db,
		collection: collection,
		table:      pgx.Identifier{collection}.Sanitize(),
	}
}

func (r *Records) selectColumns() string {
	return "SELECT id::text, payload, sent_state, sent_error, sent_message_id, " +
		"delivery_state, delivery_error, delivery_message_id, message_id, created_at, updated_at FROM " + r.table
}

// Create inserts a new request document and returns its id.
func (r *Records) Create(ctx context.Context, req request.EmailRequest) (string, error) {
	defer observe("create")()

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var id string
	err = r.db.QueryRow(ctx, "INSERT INTO "+r.table+" (payload) VALUES ($1) RETURNING id::text", string(payload)).Scan(&id)
	if err != nil {
		metrics.DBErrorsTotal.WithLabelValues("create").Inc()
		return "", fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

// Get loads one record by id.
func (r *Records) Get(ctx context.Context, id string) (*Record, error) {
	defer observe("get")()

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	rec, err := scanRecord(r.db.QueryRow(ctx, r.selectColumns()+" WHERE id = $1", id))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			metrics.DBErrorsTotal.WithLabelValues("get").Inc()
		}
		return nil, err
	}
	return rec, nil
}

// FindBySentMessageID returns the first record whose sent.message_id matches.
func (r *Records) FindBySentMessageID(ctx context.Context, messageID string) (*Record, error) {
	defer observe("find_by_sent_message_id")()

	if messageID == "" {
		return nil, ErrNotFound
	}
	rec, err := scanRecord(r.db.QueryRow(ctx, r.selectColumns()+" WHERE sent_message_id = $1 LIMIT 1", messageID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			metrics.DBErrorsTotal.WithLabelValues("find_by_sent_message_id").Inc()
		}
		return nil, err
	}
	return rec, nil
}

// Update applies a partial patch to one record. Fields absent from the
// patch keep their stored values.
func (r *Records) Update(ctx context.Context, id string, p Patch) error {
	defer observe("update")()

	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	sql, args, err := buildUpdate(r.table, id, p)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		metrics.DBErrorsTotal.WithLabelValues("update").Inc()
		return fmt.Errorf("update record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureNotifyTrigger installs (or replaces) the insert trigger that
// publishes new record ids on channel, so the LISTEN side and the table
// agree whatever collection and channel are configured.
func (r *Records) EnsureNotifyTrigger(ctx context.Context, channel string) error {
	defer observe("ensure_notify_trigger")()

	sql := fmt.Sprintf("CREATE OR REPLACE TRIGGER %s AFTER INSERT ON %s FOR EACH ROW EXECUTE FUNCTION %s(%s)",
		pgx.Identifier{r.collection + "_created"}.Sanitize(), r.table, notifyFunction, quoteLiteral(channel))
	if _, err := r.db.Exec(ctx, sql); err != nil {
		metrics.DBErrorsTotal.WithLabelValues("ensure_notify_trigger").Inc()
		return fmt.Errorf("install notify trigger on %s: %w", r.table, err)
	}
	return nil
}

// Snapshot loads a record and binds it to this repository for updates.
func (r *Records) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{records: r, record: rec}, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec                                  Record
		payload                              []byte
		sentState, sentError, sentMessageID  pgtype.Text
		delivState, delivError, delivMessage pgtype.Text
		messageID                            pgtype.Text
	)

	err := row.Scan(
		&rec.ID, &payload,
		&sentState, &sentError, &sentMessageID,
		&delivState, &delivError, &delivMessage,
		&messageID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Request); err != nil {
			rec.Request = request.EmailRequest{}
			rec.PayloadErr = fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	rec.Sent = SendStatus{
		State:     State(sentState.String),
		Error:     textPtr(sentError),
		MessageID: textPtr(sentMessageID),
	}
	rec.Delivery = DeliveryStatus{
		State:     State(delivState.String),
		Error:     textPtr(delivError),
		MessageID: textPtr(delivMessage),
	}
	rec.MessageID = textPtr(messageID)
	return &rec, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// textPtr converts a nullable text column to a *string.
func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func observe(query string) func() {
	start := time.Now()
	return func() {
		metrics.DBQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	}
}
