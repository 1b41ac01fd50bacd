package trigger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailbridge/internal/storage"
)

const sourceNotify = "notify"

// listener is the subset of storage.Listener used by NotifySource.
type listener interface {
	Wait(ctx context.Context) (*pgconn.Notification, error)
	Close()
}

type listenFunc func(ctx context.Context, channel string) (listener, error)

// NotifySource receives record ids from Postgres NOTIFY on a single channel.
// A lost connection is re-established after ReconnectDelay. Notifications
// sent while disconnected are not replayed.
type NotifySource struct {
	listen         listenFunc
	channel        string
	log            zerolog.Logger
	ReconnectDelay time.Duration
}

// NewNotifySource creates a NotifySource listening on channel through db.
func NewNotifySource(db *storage.DB, channel string, log zerolog.Logger) *NotifySource {
	return newNotifySource(func(ctx context.Context, ch string) (listener, error) {
		l, err := db.Listen(ctx, ch)
		if err != nil {
			return nil, err
		}
		return l, nil
	}, channel, log)
}

func newNotifySource(listen listenFunc, channel string, log zerolog.Logger) *NotifySource {
	return &NotifySource{
		listen:         listen,
		channel:        channel,
		log:            log.With().Str("source", sourceNotify).Str("channel", channel).Logger(),
		ReconnectDelay: 2 * time.Second,
	}
}

// Name implements Source.
func (s *NotifySource) Name() string { return sourceNotify }

// Run listens until ctx is cancelled. It returns nil on cancellation.
func (s *NotifySource) Run(ctx context.Context, h Handler) error {
	s.log.Info().Msg("notify source started")

	for {
		l, err := s.listen(ctx, s.channel)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.Error().Err(err).Dur("retry_in", s.ReconnectDelay).Msg("listen failed")
			if !sleepCtx(ctx, s.ReconnectDelay) {
				break
			}
			continue
		}

		err = s.consume(ctx, l, h)
		l.Close()
		if ctx.Err() != nil {
			break
		}
		s.log.Error().Err(err).Dur("retry_in", s.ReconnectDelay).Msg("notify connection lost")
		if !sleepCtx(ctx, s.ReconnectDelay) {
			break
		}
	}

	s.log.Info().Msg("notify source stopped")
	return nil
}

// consume handles notifications until Wait fails.
func (s *NotifySource) consume(ctx context.Context, l listener, h Handler) error {
	for {
		n, err := l.Wait(ctx)
		if err != nil {
			return err
		}
		deliver(ctx, sourceNotify, h, n.Payload, s.log)
	}
}
