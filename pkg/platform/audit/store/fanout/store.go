package fanout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	audit "lendaudit/pkg/platform/audit"
)

// ErrNoPrimary is returned by Insert when the store was built without a
// system of record.
var ErrNoPrimary = errors.New("fanout: no primary audit store")

// Store writes each record to a primary store and to any number of secondary
// copies, concurrently. Only the primary's outcome is returned: a failing
// copy is logged and counted but never fails the write, so it cannot trip the
// interceptor's breaker while the system of record is healthy.
type Store struct {
	primary     namedStore
	secondaries []namedStore
	logger      *slog.Logger
	copyErrors  *prometheus.CounterVec
}

type namedStore struct {
	name  string
	store audit.Store
}

type Option func(*Store)

// WithLogger sets the logger used for failed secondary copies.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics registers the secondary copy failure counter with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) {
		s.copyErrors = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lendaudit_audit_copy_failures_total",
			Help: "Total number of audit record copies a secondary sink failed to write",
		}, []string{"sink"})
	}
}

// New builds a fanout around primary, the system of record.
func New(name string, primary audit.Store, opts ...Option) *Store {
	s := &Store{
		primary: namedStore{name: name, store: primary},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a secondary copy. Nil stores are ignored so optional sinks can
// be passed straight from configuration.
func (s *Store) Add(name string, store audit.Store) *Store {
	if store != nil {
		s.secondaries = append(s.secondaries, namedStore{name: name, store: store})
	}
	return s
}

// Len counts the primary and every secondary.
func (s *Store) Len() int {
	n := len(s.secondaries)
	if s.primary.store != nil {
		n++
	}
	return n
}

func (s *Store) Insert(ctx context.Context, rec audit.Record) error {
	if s.primary.store == nil {
		return ErrNoPrimary
	}
	// Every target sees the same id so copies can be correlated.
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	var g errgroup.Group
	for _, t := range s.secondaries {
		g.Go(func() error {
			if err := t.store.Insert(ctx, rec); err != nil {
				s.copyFailed(ctx, t.name, rec, err)
			}
			return nil
		})
	}
	err := s.primary.store.Insert(ctx, rec)
	_ = g.Wait()
	if err != nil {
		return fmt.Errorf("%s: %w", s.primary.name, err)
	}
	return nil
}

func (s *Store) copyFailed(ctx context.Context, sink string, rec audit.Record, err error) {
	if s.copyErrors != nil {
		s.copyErrors.WithLabelValues(sink).Inc()
	}
	s.logger.WarnContext(ctx, "audit copy failed",
		"sink", sink,
		"record_id", rec.ID,
		"action", string(rec.Action),
		"resource", rec.Resource,
		"error", err,
	)
}
