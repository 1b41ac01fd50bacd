package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sourceStream = "stream"

// StreamClient is the subset of the go-redis client used by the stream
// source and publisher.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamConfig names the stream and consumer group to read from.
type StreamConfig struct {
	Stream       string
	Group        string
	Consumer     string
	BlockTimeout time.Duration
}

// StreamSource consumes created-record events from a Redis Stream through a
// consumer group. Every entry is acknowledged once handled, whatever the
// outcome.
type StreamSource struct {
	client StreamClient
	cfg    StreamConfig
	log    zerolog.Logger
}

// NewStreamSource creates a StreamSource. An empty consumer name defaults
// to "bridge".
func NewStreamSource(client StreamClient, cfg StreamConfig, log zerolog.Logger) *StreamSource {
	if cfg.Consumer == "" {
		cfg.Consumer = "bridge"
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	return &StreamSource{
		client: client,
		cfg:    cfg,
		log: log.With().
			Str("source", sourceStream).
			Str("stream", cfg.Stream).
			Str("consumer", cfg.Consumer).
			Logger(),
	}
}

// Name implements Source.
func (s *StreamSource) Name() string { return sourceStream }

// createGroup creates the consumer group, creating the stream if needed.
// An existing group is not an error.
func (s *StreamSource) createGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on stream %s: %w", s.cfg.Group, s.cfg.Stream, err)
	}
	return nil
}

// Run reads the stream until ctx is cancelled.
func (s *StreamSource) Run(ctx context.Context, h Handler) error {
	if err := s.createGroup(ctx); err != nil {
		return err
	}

	s.log.Info().Str("group", s.cfg.Group).Msg("stream source started")

	for {
		if ctx.Err() != nil {
			s.log.Info().Msg("stream source stopped")
			return nil
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			Streams:  []string{s.cfg.Stream, ">"},
			Count:    1,
			Block:    s.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.log.Error().Err(err).Msg("xreadgroup error")
			sleepCtx(ctx, time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				s.processMessage(ctx, h, msg)
			}
		}
	}
}

func (s *StreamSource) processMessage(ctx context.Context, h Handler, msg redis.XMessage) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		s.log.Error().Str("entry_id", msg.ID).Msg("invalid message data type")
		data = ""
	}

	deliver(ctx, sourceStream, h, data, s.log.With().Str("entry_id", msg.ID).Logger())

	if err := s.client.XAck(context.WithoutCancel(ctx), s.cfg.Stream, s.cfg.Group, msg.ID).Err(); err != nil {
		s.log.Error().Err(err).Str("entry_id", msg.ID).Msg("failed to acknowledge entry")
	}
}

// StreamPublisher appends created-record events to a Redis Stream.
type StreamPublisher struct {
	client StreamClient
	stream string
	now    func() time.Time
}

// NewStreamPublisher creates a StreamPublisher for stream.
func NewStreamPublisher(client StreamClient, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, now: time.Now}
}

// Publish appends an event for record id and returns the stream entry id.
func (p *StreamPublisher) Publish(ctx context.Context, id string) (string, error) {
	data, err := json.Marshal(Event{ID: id, CreatedAt: p.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	entryID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"data": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd to %s: %w", p.stream, err)
	}
	return entryID, nil
}
