// Package consumer materialises audit records published to Kafka into the
// queryable audit_logs table.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"lendaudit/internal/platform/kafka/consumer"
	audit "lendaudit/pkg/platform/audit"
)

// RecordStore inserts a record under a caller-chosen id. Implementations must
// ignore duplicates so redelivered messages are harmless.
type RecordStore interface {
	InsertWithID(ctx context.Context, id uuid.UUID, rec audit.Record) error
}

type Handler struct {
	store  RecordStore
	logger *slog.Logger
}

func NewHandler(store RecordStore, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Handle decodes and stores one record. Malformed messages are logged and
// committed; store failures are returned so the message is retried.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	id, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to parse audit record id",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	rec, err := audit.UnmarshalRecord(msg.Value)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to decode audit record",
			"record_id", id,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = msg.Timestamp
	}

	if err := h.store.InsertWithID(ctx, id, rec); err != nil {
		h.logger.ErrorContext(ctx, "failed to store audit record",
			"record_id", id,
			"action", string(rec.Action),
			"resource", rec.Resource,
			"error", err,
		)
		return fmt.Errorf("store audit record %s: %w", id, err)
	}

	h.logger.DebugContext(ctx, "stored audit record",
		"record_id", id,
		"action", string(rec.Action),
		"user_id", rec.UserID,
	)
	return nil
}
