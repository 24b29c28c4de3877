package audit

import "context"

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

// Store persists audit records. Implementations assign the record ID and
// timestamp; the interceptor never reads, updates or deletes records.
type Store interface {
	Insert(ctx context.Context, rec Record) error
}
