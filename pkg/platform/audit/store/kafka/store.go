package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "lendaudit/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client the store needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store publishes audit records to a Kafka topic. The message key is the
// record id, so consumers can materialise records idempotently.
type Store struct {
	producer Producer
	topic    string
	now      func() time.Time
}

func New(producer Producer, topic string) *Store {
	return &Store{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

func (s *Store) Insert(ctx context.Context, rec audit.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	value, err := audit.MarshalRecord(rec)
	if err != nil {
		return err
	}

	msg := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(rec.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "resource", Value: []byte(rec.Resource)},
			{Key: "level", Value: []byte(rec.Level)},
		},
	}
	if err := s.producer.ProduceSync(ctx, msg).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record %s: %w", rec.ID, err)
	}
	return nil
}
