package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/model-output-consolidator/internal/config"
	"github.com/couchcryptid/model-output-consolidator/internal/domain"
)

// Publisher announces consolidated series on a Kafka topic.
// It implements pipeline.Notifier.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured series topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: cfg.KafkaBatchTimeout,
	}
	return &Publisher{writer: w, logger: logger}
}

// Notify publishes one SeriesConsolidated event keyed by the variable, so
// events for one variable land on one partition.
func (p *Publisher) Notify(ctx context.Context, event domain.SeriesConsolidated) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish series event: %w", err)
	}
	p.logger.Debug("series event published", "variable", event.Variable, "code", event.Code, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a SeriesConsolidated event into a Kafka message.
func serializeToMessage(event domain.SeriesConsolidated) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize series event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Identity().Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "variable_code", Value: []byte(event.Code)},
			{Key: "consolidated_at", Value: []byte(event.ConsolidatedAt.Format(time.RFC3339))},
		},
	}, nil
}
