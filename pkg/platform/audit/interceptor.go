// Package audit records who did what to which lending resource, when, and
// with what outcome.
//
// Operations opt in by declaring Metadata in a Registry. The Interceptor wraps
// every invocation: undeclared operations pass straight through, declared ones
// produce exactly one Record whether they succeed or fail. Records are written
// on a detached goroutine and persistence failures are only logged, so
// auditing never changes what the caller of an operation observes.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendaudit/pkg/platform/circuit"
)

const defaultWriteTimeout = 5 * time.Second

// Interceptor wraps audited operations and persists one Record per invocation.
type Interceptor struct {
	store        Store
	registry     *Registry
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	breaker      *circuit.Breaker
	now          func() time.Time
	writeTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Option configures the Interceptor.
type Option func(*Interceptor)

// WithLogger sets the logger used for trace lines and write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(i *Interceptor) {
		i.metrics = m
	}
}

// WithTracer sets the tracer used for the persist span.
func WithTracer(t trace.Tracer) Option {
	return func(i *Interceptor) {
		if t != nil {
			i.tracer = t
		}
	}
}

// WithBreaker drops records without attempting a write while the breaker is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(i *Interceptor) {
		i.breaker = b
	}
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) {
		if now != nil {
			i.now = now
		}
	}
}

// WithWriteTimeout bounds a single store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(i *Interceptor) {
		if d > 0 {
			i.writeTimeout = d
		}
	}
}

func New(store Store, registry *Registry, opts ...Option) (*Interceptor, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if registry == nil {
		return nil, errors.New("audit registry is required")
	}
	i := &Interceptor{
		store:        store,
		registry:     registry,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:       otel.Tracer("lendaudit/pkg/platform/audit"),
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Intercept runs next and, when key has declared metadata, records its outcome.
// The returned error is always exactly the one returned by next.
func (i *Interceptor) Intercept(ctx context.Context, key string, inv Invocation, next func(context.Context) error) error {
	meta, ok := i.registry.Lookup(key)
	if !ok {
		return next(ctx)
	}

	start := i.now()
	rec := i.newRecord(ctx, meta, inv)

	i.logger.InfoContext(ctx, "audit",
		"action", meta.Action.Upper(),
		"resource", meta.Resource,
		"user_email", rec.UserEmail,
		"user_id", rec.UserID,
		"ip", rec.IPAddress,
		"request_id", rec.RequestID,
	)

	// A panicking operation is recorded as a failure and the panic continues
	// up the stack untouched.
	defer func() {
		if p := recover(); p != nil {
			rec.DurationMS = i.elapsedMS(start)
			rec.Status = StatusFailure
			rec.ErrorMessage = fmt.Sprintf("panic: %v", p)
			rec.ErrorCode = DefaultErrorCode
			i.persist(ctx, rec)
			panic(p)
		}
	}()

	err := next(ctx)

	rec.DurationMS = i.elapsedMS(start)
	if err == nil {
		rec.Status = StatusSuccess
	} else {
		rec.Status = StatusFailure
		rec.ErrorMessage = err.Error()
		rec.ErrorCode = ErrorCode(err)
	}
	i.persist(ctx, rec)

	return err
}

// Call is Intercept for operations that return a value.
func Call[T any](ctx context.Context, i *Interceptor, key string, inv Invocation, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := i.Intercept(ctx, key, inv, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}

// Close stops accepting record writes and drains those in flight. Invocations
// after Close still run; their records are dropped and counted as skipped.
func (i *Interceptor) Close(ctx context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	return i.Drain(ctx)
}

// Drain waits for in-flight record writes. It returns ctx.Err() if ctx is done
// first. Drain alone does not stop new writes; use Close at shutdown.
func (i *Interceptor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		i.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Interceptor) newRecord(ctx context.Context, meta Metadata, inv Invocation) Record {
	userID, email := inv.actor()
	ids := inv.resourceIDs()

	rec := Record{
		UserID:     userID,
		UserEmail:  email,
		Action:     meta.Action,
		Resource:   meta.Resource,
		ResourceID: ids.resource,
		BuyerID:    ids.buyer,
		VehicleID:  ids.vehicle,
		DealID:     ids.deal,
		Method:     inv.Method,
		URL:        inv.URL,
		IPAddress:  inv.ClientIP,
		UserAgent:  inv.userAgent(),
		Level:      meta.Level,
		PII:        meta.PII,
		Compliance: append([]string{}, meta.Compliance...),
		RequestID:  inv.RequestID,
		Metadata:   inv.sanitized(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		rec.TraceID = sc.TraceID().String()
	}
	return rec
}

func (i *Interceptor) elapsedMS(start time.Time) int64 {
	ms := i.now().Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// persist hands rec to a detached goroutine. The caller never waits for the
// write and never sees its outcome.
func (i *Interceptor) persist(ctx context.Context, rec Record) {
	if i.breaker != nil && !i.breaker.Allow() {
		i.metrics.incSkipped()
		i.logger.WarnContext(ctx, "audit store unavailable, record dropped", rec.logAttrs()...)
		return
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		i.metrics.incSkipped()
		i.logger.WarnContext(ctx, "audit interceptor closed, record dropped", rec.logAttrs()...)
		return
	}
	i.inflight.Add(1)
	i.mu.Unlock()

	i.metrics.addInflight(1)
	go func() {
		defer i.inflight.Done()
		defer i.metrics.addInflight(-1)
		i.write(context.WithoutCancel(ctx), rec)
	}()
}

func (i *Interceptor) write(ctx context.Context, rec Record) {
	ctx, cancel := context.WithTimeout(ctx, i.writeTimeout)
	defer cancel()

	ctx, span := i.tracer.Start(ctx, "audit.persist", trace.WithAttributes(
		attribute.String("audit.action", string(rec.Action)),
		attribute.String("audit.resource", rec.Resource),
		attribute.String("audit.status", string(rec.Status)),
	))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			i.recordFailure()
			span.SetStatus(codes.Error, "audit store panicked")
			i.logger.ErrorContext(ctx, "failed to create audit log",
				append(rec.logAttrs(), "panic", fmt.Sprint(p), "stack", string(debug.Stack()))...)
		}
	}()

	start := time.Now()
	err := i.store.Insert(ctx, rec)
	i.metrics.observeWrite(time.Since(start).Seconds())

	if err != nil {
		i.recordFailure()
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		i.logger.ErrorContext(ctx, "failed to create audit log",
			append(rec.logAttrs(), "error", err)...)
		return
	}

	if i.breaker != nil {
		i.breaker.RecordSuccess()
	}
	i.metrics.incRecord(rec.Status)

	if rec.Critical() {
		i.metrics.incCritical()
		i.logger.WarnContext(ctx, "critical audit event",
			"action", rec.Action.Upper(),
			"resource", rec.Resource,
			"user_email", rec.UserEmail,
			"user_id", rec.UserID,
			"resource_id", rec.ResourceID,
			"status", string(rec.Status),
			"pii", rec.PII,
			"compliance", strings.Join(rec.Compliance, ", "),
		)
	}
}

func (i *Interceptor) recordFailure() {
	i.metrics.incWriteFailure()
	if i.breaker != nil {
		i.breaker.RecordFailure()
	}
}

func (r Record) logAttrs() []any {
	return []any{
		"action", string(r.Action),
		"resource", r.Resource,
		"resource_id", r.ResourceID,
		"user_id", r.UserID,
		"status", string(r.Status),
		"request_id", r.RequestID,
	}
}
