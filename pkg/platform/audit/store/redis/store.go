package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	audit "lendaudit/pkg/platform/audit"
)

const (
	DefaultStream = "audit:records"
	DefaultMaxLen = 100_000
)

// Store appends audit records to a capped Redis stream. It is a short
// retention hot copy for collectors, not the system of record.
type Store struct {
	client redis.Cmdable
	stream string
	maxLen int64
	now    func() time.Time
}

type Option func(*Store)

func WithStream(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.stream = name
		}
	}
}

// WithMaxLen caps the stream approximately at n entries.
func WithMaxLen(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		stream: DefaultStream,
		maxLen: DefaultMaxLen,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Insert(ctx context.Context, rec audit.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	payload, err := audit.MarshalRecord(rec)
	if err != nil {
		return err
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":       rec.ID,
			"resource": rec.Resource,
			"level":    string(rec.Level),
			"record":   payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd audit record %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to count records, newest first.
func (s *Store) Recent(ctx context.Context, count int64) ([]audit.Record, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit stream: %w", err)
	}
	records := make([]audit.Record, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["record"].(string)
		if !ok {
			continue
		}
		rec, err := audit.UnmarshalRecord([]byte(raw))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
