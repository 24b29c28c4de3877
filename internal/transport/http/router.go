package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	lendinghandler "lendaudit/internal/lending/handler"
	"lendaudit/internal/platform/metrics"
	"lendaudit/pkg/platform/httputil"
	auditmw "lendaudit/pkg/platform/middleware/audit"
	"lendaudit/pkg/platform/middleware/auth"
	"lendaudit/pkg/platform/middleware/metadata"
	"lendaudit/pkg/platform/middleware/request"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	Logger    *slog.Logger
	Lending   *lendinghandler.Handler
	Audit     *auditmw.Middleware
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Validator auth.JWTValidator
	// Checks are run by /readyz; any error reports the service unavailable.
	Checks map[string]func(context.Context) error
}

// NewRouter wires all public endpoints. The audit adapter is applied per route
// at registration, so every lending route goes through the same interceptor.
func NewRouter(d Deps) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	if d.Validator != nil {
		r.Use(auth.Identify(d.Validator, d.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(d.Checks))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	if err := d.Lending.Register(r, d.Audit); err != nil {
		return nil, err
	}
	return r, nil
}

func readiness(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
