package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaSource reads slot events from a topic as part of a consumer group.
// Offsets are committed after each message is handed to the relay.
type KafkaSource struct {
	reader *kafka.Reader
	logger zerolog.Logger
}

func NewKafkaSource(cfg KafkaConfig, logger zerolog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}

	l := logger.With().Str("component", "kafka_source").Str("topic", cfg.Topic).Logger()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			l.Error().Msgf(msg, args...)
		}),
	})
	return &KafkaSource{reader: reader, logger: l}, nil
}

func (k *KafkaSource) Name() string { return "kafka" }

func (k *KafkaSource) Run(ctx context.Context, deliver func(ctx context.Context, payload []byte)) error {
	defer k.reader.Close()

	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			k.logger.Warn().Err(err).Msg("fetch message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		deliver(ctx, msg.Value)

		if err := k.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("commit offset")
		}
	}
}
