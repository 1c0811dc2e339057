package kafka

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopmicro/orderflow/pkg/tracing"
)

type Processor interface {
	Process(ctx context.Context, payload []byte) error
}

type DedupStore interface {
	MessageKey(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Consumer reads one topic of domain events and feeds them to the event
// processor. Kafka delivery is at-least-once, so each message is checked
// against the Redis dedup store before processing; the processor's handlers
// are additionally idempotent on their own.
type Consumer struct {
	log       *slog.Logger
	reader    *kafka.Reader
	processor Processor
	idem      DedupStore
	tracer    trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, processor Processor, idem DedupStore) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:       log,
		reader:    r,
		processor: processor,
		idem:      idem,
		tracer:    otel.Tracer("order-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		if c.handle(ctx, msg) {
			_ = c.reader.CommitMessages(ctx, msg)
		}
	}
}

// handle processes one fetched message and reports whether its offset may be
// committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	key := c.idem.MessageKey(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		// A dedup outage must not skip the message: handlers tolerate a
		// duplicate, a dropped event is unrecoverable.
		c.log.Error("idempotency check failed, processing anyway", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return true
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeDomainEvent")
	defer span.End()

	if err := c.processor.Process(msgCtx, msg.Value); err != nil {
		// Release the dedup key and leave the offset uncommitted so a
		// redelivery gets processed again.
		c.log.Error("event processing failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		if ferr := c.idem.Forget(ctx, key); ferr != nil {
			c.log.Error("idempotency release failed", "key", key, "err", ferr)
		}
		return false
	}
	return true
}
