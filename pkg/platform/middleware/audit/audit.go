// Package audit mounts chi handlers behind the audit interceptor.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"lendaudit/pkg/platform/audit"
	"lendaudit/pkg/platform/httputil"
	"lendaudit/pkg/platform/middleware/metadata"
	"lendaudit/pkg/requestcontext"
)

// MaxCapturedBody is the largest body inspected for key names. Larger bodies
// still reach the handler intact but contribute no keys.
const MaxCapturedBody = 1 << 20

// Middleware declares audited routes and wraps their handlers.
type Middleware struct {
	interceptor *audit.Interceptor
	registry    *audit.Registry
	logger      *slog.Logger
}

func New(interceptor *audit.Interceptor, registry *audit.Registry, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Middleware{
		interceptor: interceptor,
		registry:    registry,
		logger:      logger,
	}
}

// Handle declares meta for method+pattern and mounts h on r. A nil meta mounts
// the route unaudited. Errors returned by h are rendered with httputil.WriteError
// after the interceptor has seen them.
func (m *Middleware) Handle(r chi.Router, method, pattern string, meta *audit.Metadata, h httputil.HandlerFunc) error {
	key := audit.RouteKey(method, pattern)
	if meta != nil {
		if err := m.registry.Declare(key, *meta); err != nil {
			return err
		}
	}
	r.Method(method, pattern, m.wrap(key, h))
	return nil
}

func (m *Middleware) wrap(key string, h httputil.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var inv audit.Invocation
		if _, declared := m.registry.Lookup(key); declared {
			inv = m.invocation(r)
		}
		err := m.interceptor.Intercept(r.Context(), key, inv, func(ctx context.Context) error {
			return h(w, r.WithContext(ctx))
		})
		if err != nil {
			httputil.WriteError(w, err)
		}
	}
}

func (m *Middleware) invocation(r *http.Request) audit.Invocation {
	ctx := r.Context()

	clientIP := requestcontext.ClientIP(ctx)
	if clientIP == "" {
		clientIP = metadata.ClientIPFromRequest(r)
	}
	userAgent := requestcontext.UserAgent(ctx)
	if userAgent == "" {
		userAgent = r.UserAgent()
	}

	inv := audit.Invocation{
		Method:     r.Method,
		URL:        r.URL.RequestURI(),
		ClientIP:   clientIP,
		UserAgent:  userAgent,
		RequestID:  requestcontext.RequestID(ctx),
		PathParams: pathParams(r),
		Query:      r.URL.Query(),
		Body:       m.captureBody(r),
	}
	if userID := requestcontext.UserID(ctx); userID != "" {
		inv.User = &audit.User{ID: userID, Email: requestcontext.UserEmail(ctx)}
	}
	return inv
}

func pathParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if k == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		params[k] = rctx.URLParams.Values[i]
	}
	return params
}

// captureBody decodes the top-level body fields and restores r.Body so the
// handler reads the same bytes. Unparseable bodies yield nil.
func (m *Middleware) captureBody(r *http.Request) map[string]any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, MaxCapturedBody+1))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	if err != nil {
		m.logger.WarnContext(r.Context(), "audit body capture failed", "error", err)
		return nil
	}
	if len(buf) == 0 || len(buf) > MaxCapturedBody {
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(buf))
		if err != nil {
			return nil
		}
		body := make(map[string]any, len(values))
		for k := range values {
			body[k] = values.Get(k)
		}
		return body
	default:
		dec := json.NewDecoder(bytes.NewReader(buf))
		dec.UseNumber()
		var body map[string]any
		if err := dec.Decode(&body); err != nil {
			return nil
		}
		return body
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
