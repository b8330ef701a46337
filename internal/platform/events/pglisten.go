package events

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var channelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PGListener receives payloads sent with pg_notify on one channel. The
// listening connection is taken out of the pool for the listener's lifetime.
type PGListener struct {
	pool    *pgxpool.Pool
	channel string
	retry   time.Duration
	logger  zerolog.Logger
}

func NewPGListener(pool *pgxpool.Pool, channel string, logger zerolog.Logger) (*PGListener, error) {
	if !channelPattern.MatchString(channel) {
		return nil, fmt.Errorf("invalid notification channel %q", channel)
	}
	return &PGListener{
		pool:    pool,
		channel: channel,
		retry:   5 * time.Second,
		logger:  logger.With().Str("component", "pg_listener").Str("channel", channel).Logger(),
	}, nil
}

func (l *PGListener) Name() string { return "postgres" }

// Run listens until ctx is done, reconnecting after connection failures.
func (l *PGListener) Run(ctx context.Context, deliver func(ctx context.Context, payload []byte)) error {
	for {
		err := l.listen(ctx, deliver)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn().Err(err).Dur("retry_in", l.retry).Msg("listen interrupted")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retry):
		}
	}
}

func (l *PGListener) listen(ctx context.Context, deliver func(ctx context.Context, payload []byte)) error {
	pc, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	conn := pc.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Info().Msg("listening for slot events")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		deliver(ctx, []byte(n.Payload))
	}
}
