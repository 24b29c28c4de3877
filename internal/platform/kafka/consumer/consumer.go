// Package consumer runs a poll loop over a franz-go group client and hands
// each record to a Handler.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a consumed record, decoupled from the client library.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes one message. Returning an error means the message should
// be retried; returning nil commits it.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Client is the subset of *kgo.Client the loop needs.
type Client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

// ErrRetriesExhausted is returned by Run when a message keeps failing.
var ErrRetriesExhausted = errors.New("message handling retries exhausted")

type Consumer struct {
	client      Client
	handler     Handler
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration

	mu      sync.Mutex
	stopErr error
}

type Option func(*Consumer)

// WithRetry sets how many times a failing message is attempted and the base
// delay between attempts, which doubles each time.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Consumer) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

func New(client Client, handler Handler, logger *slog.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		client:      client,
		handler:     handler,
		logger:      logger,
		maxAttempts: 5,
		backoff:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is cancelled or the client is closed. Records are
// committed after their batch is handled. If a message still fails after all
// attempts, Run commits what succeeded before it and returns, so the failing
// message is redelivered on restart. Run is not restarted in process: the
// client's fetch position has already moved past the failed record.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.run(ctx)
	c.mu.Lock()
	c.stopErr = err
	c.mu.Unlock()
	return err
}

// Err reports the error that stopped Run, or nil while it is running or after
// a clean stop. Readiness checks use it to surface a dead loop.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopErr
}

func (c *Consumer) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var done []*kgo.Record
		var handleErr error
		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			if err := c.handle(ctx, rec); err != nil {
				handleErr = err
				break
			}
			done = append(done, rec)
		}

		if len(done) > 0 {
			if err := c.client.CommitRecords(ctx, done...); err != nil {
				c.logger.ErrorContext(ctx, "kafka commit failed", "error", err, "records", len(done))
			}
		}
		if handleErr != nil {
			return handleErr
		}
	}
}

func (c *Consumer) handle(ctx context.Context, rec *kgo.Record) error {
	msg := toMessage(rec)
	delay := c.backoff
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		c.logger.WarnContext(ctx, "message handling failed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"error", err,
		)
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w: topic %s partition %d offset %d: %w",
		ErrRetriesExhausted, msg.Topic, msg.Partition, msg.Offset, err)
}

func toMessage(rec *kgo.Record) *Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Timestamp: rec.Timestamp,
	}
}
