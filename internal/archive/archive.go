// Package archive keeps a permanent copy of every verified webhook body.
package archive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailbridge/internal/metrics"
)

// ErrNotFound is returned when a requested archive entry does not exist.
var ErrNotFound = errors.New("archive: entry not found")

// Backend stores archive entries by key.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config holds configuration for creating an Archive.
type Config struct {
	Type       string // "local", "s3" or "none"
	Path       string // base directory for local archive
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
	S3Region   string
}

// Archive writes webhook bodies under "<kind>/<timestamp>-<uuid>.json".
type Archive struct {
	backend Backend
	name    string
	now     func() time.Time
}

// NewArchive wraps a backend. name labels metrics.
func NewArchive(backend Backend, name string) *Archive {
	return &Archive{backend: backend, name: name, now: time.Now}
}

// New creates an Archive for cfg.Type. An empty type or "none" disables
// archiving. Unknown types fall back to local storage with a warning.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Archive, error) {
	switch cfg.Type {
	case "", "none":
		return NewArchive(Nop{}, "none"), nil
	case "local":
		b, err := NewLocalBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewArchive(b, "local"), nil
	case "s3":
		b, err := NewS3BackendFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewArchive(b, "s3"), nil
	default:
		log.Warn().
			Str("type", cfg.Type).
			Msg("unsupported archive type, defaulting to local")
		b, err := NewLocalBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewArchive(b, "local"), nil
	}
}

// Enabled reports whether entries are actually persisted.
func (a *Archive) Enabled() bool {
	_, nop := a.backend.(Nop)
	return !nop
}

// Store writes body under a fresh key derived from kind and returns the key.
func (a *Archive) Store(ctx context.Context, kind string, body []byte) (string, error) {
	key := fmt.Sprintf("%s/%s-%s.json",
		sanitizeKind(kind),
		a.now().UTC().Format("20060102T150405.000000000Z"),
		uuid.NewString(),
	)
	if err := a.backend.Put(ctx, key, body); err != nil {
		metrics.ArchiveWritesTotal.WithLabelValues(a.name, "error").Inc()
		return "", err
	}
	metrics.ArchiveWritesTotal.WithLabelValues(a.name, "ok").Inc()
	return key, nil
}

// Load returns the entry stored under key.
func (a *Archive) Load(ctx context.Context, key string) ([]byte, error) {
	return a.backend.Get(ctx, key)
}

var unsafeKindChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeKind(kind string) string {
	k := unsafeKindChars.ReplaceAllString(kind, "_")
	if k == "" || k == "." || k == ".." {
		return "unknown"
	}
	return k
}

// Nop discards writes.
type Nop struct{}

// Put implements Backend.
func (Nop) Put(context.Context, string, []byte) error { return nil }

// Get implements Backend.
func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }
