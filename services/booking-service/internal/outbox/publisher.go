package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/salonbook/salonbook/libs/kafkax"
	otelx "github.com/salonbook/salonbook/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Source is implemented by every calendar store. Relay hands up to limit
// unpublished records to fn; when fn succeeds they are marked published in
// the same storage transaction, otherwise they stay pending.
type Source interface {
	Relay(ctx context.Context, limit int, fn func(context.Context, []Record) error) (int, error)
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

// Publisher relays outbox rows to Kafka. Delivery is at least once:
// consumers dedupe on the event_id header.
type Publisher struct {
	src       Source
	writer    MessageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

func NewPublisher(src Source, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		src:       src,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// NewKafkaWriter builds the writer used in production; keys hash to
// partitions so events of one appointment stay ordered.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Run polls until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				n, err := p.PublishOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						p.logger.Error("outbox publish failed", "err", err)
					}
					break
				}
				// Drain a backlog without waiting for the next tick.
				if n < p.batchSize {
					break
				}
			}
		}
	}
}

// PublishOnce relays one batch and returns how many records were published.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	return p.src.Relay(ctx, p.batchSize, func(ctx context.Context, records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
			msgs = append(msgs, kafka.Message{
				Topic:   r.Event.EventType,
				Key:     []byte(r.Event.AggregateID),
				Value:   r.Event.Payload,
				Headers: kafkax.InjectTraceHeaders(msgCtx, kafkax.EventHeaders(r.EventID, r.Event.EventType)),
			})
		}
		return p.writer.WriteMessages(ctx, msgs...)
	})
}
