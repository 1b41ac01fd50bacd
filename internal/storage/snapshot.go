package storage

import (
	"context"

	"github.com/sungwon/mailbridge/internal/request"
)

// Snapshot is a record as read at one point in time, bound to the
// repository it came from so callers can patch it.
type Snapshot struct {
	records *Records
	record  *Record
}

// ID returns the record id.
func (s *Snapshot) ID() string { return s.record.ID }

// Data returns a copy of the stored request document.
func (s *Snapshot) Data() request.EmailRequest { return s.record.Request.Clone() }

// PayloadErr reports why the stored document could not be decoded, or nil.
func (s *Snapshot) PayloadErr() error { return s.record.PayloadErr }

// Record returns the full record as it was read.
func (s *Snapshot) Record() *Record { return s.record }

// Update applies a partial patch to the underlying record.
func (s *Snapshot) Update(ctx context.Context, p Patch) error {
	return s.records.Update(ctx, s.record.ID, p)
}
