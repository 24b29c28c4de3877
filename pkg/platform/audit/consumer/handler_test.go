package consumer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendaudit/internal/platform/kafka/consumer"
	audit "lendaudit/pkg/platform/audit"
)

type recordingStore struct {
	ids     []uuid.UUID
	records []audit.Record
	err     error
}

func (s *recordingStore) InsertWithID(_ context.Context, id uuid.UUID, rec audit.Record) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, id)
	s.records = append(s.records, rec)
	return nil
}

func newHandler(store RecordStore) (*Handler, *bytes.Buffer) {
	logs := &bytes.Buffer{}
	return NewHandler(store, slog.New(slog.NewJSONHandler(logs, nil))), logs
}

func validMessage(t *testing.T, id uuid.UUID) *consumer.Message {
	t.Helper()
	value, err := audit.MarshalRecord(audit.Record{
		ID:         id.String(),
		UserID:     "u1",
		UserEmail:  "a@b.com",
		Action:     audit.ActionCreate,
		Resource:   "deal",
		Status:     audit.StatusSuccess,
		Compliance: []string{audit.ComplianceGLBA, audit.ComplianceOFAC},
	})
	require.NoError(t, err)
	return &consumer.Message{
		Topic:     "audit.records",
		Key:       []byte(id.String()),
		Value:     value,
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestHandle_StoresRecord(t *testing.T) {
	store := &recordingStore{}
	h, _ := newHandler(store)
	id := uuid.New()

	require.NoError(t, h.Handle(context.Background(), validMessage(t, id)))

	require.Len(t, store.records, 1)
	assert.Equal(t, id, store.ids[0])
	assert.Equal(t, "deal", store.records[0].Resource)
	assert.Equal(t, []string{audit.ComplianceGLBA, audit.ComplianceOFAC}, store.records[0].Compliance)
	assert.False(t, store.records[0].Timestamp.IsZero(), "falls back to the message timestamp")
}

func TestHandle_MalformedMessagesAreCommitted(t *testing.T) {
	tests := map[string]*consumer.Message{
		"bad key":     {Key: []byte("not-a-uuid"), Value: []byte(`{}`)},
		"bad payload": {Key: []byte(uuid.NewString()), Value: []byte(`{`)},
		"no actor":    {Key: []byte(uuid.NewString()), Value: []byte(`{"action":"create","resource":"deal"}`)},
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			store := &recordingStore{}
			h, logs := newHandler(store)

			assert.NoError(t, h.Handle(context.Background(), msg))
			assert.Empty(t, store.records)
			assert.Contains(t, logs.String(), `"level":"ERROR"`)
		})
	}
}

func TestHandle_StoreErrorIsRetried(t *testing.T) {
	dbDown := errors.New("db down")
	h, _ := newHandler(&recordingStore{err: dbDown})

	err := h.Handle(context.Background(), validMessage(t, uuid.New()))
	assert.ErrorIs(t, err, dbDown)
}
