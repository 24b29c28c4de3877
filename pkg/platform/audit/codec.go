package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireRecord is the JSON shape records take on Kafka and Redis streams.
type wireRecord struct {
	ID           string    `json:"id"`
	Timestamp    string    `json:"timestamp"`
	UserID       string    `json:"userId"`
	UserEmail    string    `json:"userEmail"`
	Action       string    `json:"action"`
	Resource     string    `json:"resource"`
	ResourceID   string    `json:"resourceId,omitempty"`
	BuyerID      string    `json:"buyerId,omitempty"`
	VehicleID    string    `json:"vehicleId,omitempty"`
	DealID       string    `json:"dealId,omitempty"`
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	Status       string    `json:"status"`
	DurationMS   int64     `json:"duration"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	ErrorCode    int       `json:"errorCode,omitempty"`
	Level        string    `json:"level"`
	PII          bool      `json:"pii"`
	Compliance   []string  `json:"compliance"`
	RequestID    string    `json:"requestId,omitempty"`
	TraceID      string    `json:"traceId,omitempty"`
	Metadata     Sanitized `json:"metadata"`
}

// MarshalRecord encodes rec for transport.
func MarshalRecord(rec Record) ([]byte, error) {
	compliance := rec.Compliance
	if compliance == nil {
		compliance = []string{}
	}
	w := wireRecord{
		ID:           rec.ID,
		UserID:       rec.UserID,
		UserEmail:    rec.UserEmail,
		Action:       string(rec.Action),
		Resource:     rec.Resource,
		ResourceID:   rec.ResourceID,
		BuyerID:      rec.BuyerID,
		VehicleID:    rec.VehicleID,
		DealID:       rec.DealID,
		Method:       rec.Method,
		URL:          rec.URL,
		IPAddress:    rec.IPAddress,
		UserAgent:    rec.UserAgent,
		Status:       string(rec.Status),
		DurationMS:   rec.DurationMS,
		ErrorMessage: rec.ErrorMessage,
		ErrorCode:    rec.ErrorCode,
		Level:        string(rec.Level),
		PII:          rec.PII,
		Compliance:   compliance,
		RequestID:    rec.RequestID,
		TraceID:      rec.TraceID,
		Metadata:     rec.Metadata,
	}
	if !rec.Timestamp.IsZero() {
		w.Timestamp = rec.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal audit record: %w", err)
	}
	return b, nil
}

// UnmarshalRecord decodes a record produced by MarshalRecord. Records missing
// an actor, action or resource are rejected.
func UnmarshalRecord(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("unmarshal audit record: %w", err)
	}
	if w.UserID == "" || w.Action == "" || w.Resource == "" {
		return Record{}, fmt.Errorf("%w: record missing userId, action or resource", ErrInvalidMetadata)
	}

	rec := Record{
		ID:           w.ID,
		UserID:       w.UserID,
		UserEmail:    w.UserEmail,
		Action:       Action(w.Action),
		Resource:     w.Resource,
		ResourceID:   w.ResourceID,
		BuyerID:      w.BuyerID,
		VehicleID:    w.VehicleID,
		DealID:       w.DealID,
		Method:       w.Method,
		URL:          w.URL,
		IPAddress:    w.IPAddress,
		UserAgent:    w.UserAgent,
		Status:       Status(w.Status),
		DurationMS:   w.DurationMS,
		ErrorMessage: w.ErrorMessage,
		ErrorCode:    w.ErrorCode,
		Level:        Level(w.Level),
		PII:          w.PII,
		Compliance:   w.Compliance,
		RequestID:    w.RequestID,
		TraceID:      w.TraceID,
		Metadata:     w.Metadata,
	}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return Record{}, fmt.Errorf("parse audit timestamp: %w", err)
		}
		rec.Timestamp = ts
	}
	return rec, nil
}
