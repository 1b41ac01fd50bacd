package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// State is the lifecycle value of a send or delivery status.
type State string

const (
	StatePending State = "PENDING"
	StateSuccess State = "SUCCESS"
	StateError   State = "ERROR"
)

// Field names a patchable record field using the document's dotted path.
type Field string

const (
	FieldSentState         Field = "sent.state"
	FieldSentError         Field = "sent.error"
	FieldSentMessageID     Field = "sent.message_id"
	FieldDeliveryState     Field = "delivery.state"
	FieldDeliveryError     Field = "delivery.error"
	FieldDeliveryMessageID Field = "delivery.message_id"
	FieldMessageID         Field = "message_id"
)

var fieldColumns = map[Field]string{
	FieldSentState:         "sent_state",
	FieldSentError:         "sent_error",
	FieldSentMessageID:     "sent_message_id",
	FieldDeliveryState:     "delivery_state",
	FieldDeliveryError:     "delivery_error",
	FieldDeliveryMessageID: "delivery_message_id",
	FieldMessageID:         "message_id",
}

// ErrEmptyPatch is returned when an update carries no fields.
var ErrEmptyPatch = errors.New("storage: empty patch")

// Patch is a partial update of a record's status fields. Fields not in the
// patch are left untouched. A nil value (or nil *string) clears the field.
type Patch map[Field]any

// Clone returns a shallow copy of p.
func (p Patch) Clone() Patch {
	c := make(Patch, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// String renders the patch with sorted keys, for logs.
func (p Patch) String() string {
	keys := p.fields()
	parts := make([]string, 0, len(keys))
	for _, f := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", f, displayValue(p[f])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (p Patch) fields() []Field {
	keys := make([]Field, 0, len(p))
	for f := range p {
		keys = append(keys, f)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// buildUpdate renders an UPDATE statement for the patch against table.
// The table name must already be sanitized.
func buildUpdate(table, id string, p Patch) (string, []any, error) {
	if len(p) == 0 {
		return "", nil, ErrEmptyPatch
	}

	fields := p.fields()
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		col, ok := fieldColumns[f]
		if !ok {
			return "", nil, fmt.Errorf("storage: unknown patch field %q", f)
		}
		v, err := columnValue(p[f])
		if err != nil {
			return "", nil, fmt.Errorf("storage: field %q: %w", f, err)
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	return sql, args, nil
}

// columnValue normalizes a patch value to something pgx encodes as text or NULL.
func columnValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case State:
		return string(val), nil
	case string:
		return val, nil
	case *string:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func displayValue(v any) any {
	switch val := v.(type) {
	case nil:
		return "null"
	case *string:
		if val == nil {
			return "null"
		}
		return *val
	default:
		return val
	}
}
