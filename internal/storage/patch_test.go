package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func strPtr(s string) *string { return &s }

func TestBuildUpdate(t *testing.T) {
	p := Patch{
		FieldSentState:     StateSuccess,
		FieldSentError:     nil,
		FieldSentMessageID: "MSG1",
		FieldMessageID:     strPtr("MSG1"),
	}

	sql, args, err := buildUpdate(`"email_requests"`, "id-1", p)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := `UPDATE "email_requests" SET message_id = $1, sent_error = $2, sent_message_id = $3, sent_state = $4, updated_at = now() WHERE id = $5`
	if sql != want {
		t.Errorf("unexpected sql:\n got: %s\nwant: %s", sql, want)
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	if args[0] != "MSG1" || args[1] != nil || args[2] != "MSG1" || args[3] != "SUCCESS" || args[4] != "id-1" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestBuildUpdate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		patch Patch
		want  string
	}{
		{name: "empty", patch: Patch{}, want: "empty patch"},
		{name: "unknown field", patch: Patch{"sent.whatever": "x"}, want: "unknown patch field"},
		{name: "unsupported value", patch: Patch{FieldSentState: 42}, want: "unsupported value type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildUpdate(`"t"`, "id", tt.patch)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestPatch_String(t *testing.T) {
	p := Patch{
		FieldDeliveryState:     StatePending,
		FieldDeliveryError:     nil,
		FieldDeliveryMessageID: "",
	}

	got := p.String()
	want := "{delivery.error=null, delivery.message_id=, delivery.state=PENDING}"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	c := p.Clone()
	c[FieldSentState] = StateError
	if _, ok := p[FieldSentState]; ok {
		t.Error("expected clone to be independent of original")
	}
}

// mockDB implements dbtx for unit tests.
type mockDB struct {
	execSQL  string
	execArgs []any
	tag      pgconn.CommandTag
	execErr  error
	row      pgx.Row
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = sql
	m.execArgs = args
	return m.tag, m.execErr
}

func (m *mockDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return m.row
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

const validID = "7d4f3c1e-2b8a-4c55-9e0f-1a2b3c4d5e6f"

func TestRecords_Update(t *testing.T) {
	db := &mockDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	r := NewRecords(db, "")

	err := r.Update(context.Background(), validID, Patch{FieldDeliveryState: StateSuccess})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(db.execSQL, `UPDATE "email_requests" SET delivery_state = $1`) {
		t.Errorf("unexpected sql %s", db.execSQL)
	}
}

func TestRecords_Update_NotFound(t *testing.T) {
	db := &mockDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	r := NewRecords(db, "custom")

	err := r.Update(context.Background(), validID, Patch{FieldDeliveryState: StateSuccess})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !strings.HasPrefix(db.execSQL, `UPDATE "custom"`) {
		t.Errorf("expected custom collection table, got %s", db.execSQL)
	}
}

func TestRecords_Update_InvalidID(t *testing.T) {
	db := &mockDB{}
	r := NewRecords(db, "")

	if err := r.Update(context.Background(), "not-a-uuid", Patch{FieldSentState: StateError}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if db.execSQL != "" {
		t.Error("expected no query for invalid id")
	}
}

func TestRecords_Update_ExecError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewRecords(&mockDB{execErr: boom}, "")

	err := r.Update(context.Background(), validID, Patch{FieldSentState: StateError})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped exec error, got %v", err)
	}
}

func TestRecords_Get_NoRows(t *testing.T) {
	r := NewRecords(&mockDB{row: errRow{err: pgx.ErrNoRows}}, "")

	if _, err := r.Get(context.Background(), validID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecords_FindBySentMessageID_Empty(t *testing.T) {
	r := NewRecords(&mockDB{}, "")

	if _, err := r.FindBySentMessageID(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty message id, got %v", err)
	}
}

func TestNewRecords_SanitizesCollection(t *testing.T) {
	r := NewRecords(&mockDB{}, `bad"name`)
	if r.table != `"bad""name"` {
		t.Errorf("expected quoted identifier, got %s", r.table)
	}
}
