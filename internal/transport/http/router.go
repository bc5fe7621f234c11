package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"claimguard/internal/platform/metrics"
	"claimguard/internal/session/models"
	"claimguard/pkg/platform/httputil"
	authmw "claimguard/pkg/platform/middleware/auth"
	request "claimguard/pkg/platform/middleware/request"
	"claimguard/pkg/platform/middleware/requesttime"
)

// HealthChecker reports infrastructure status for /healthz.
type HealthChecker interface {
	Status(ctx context.Context) models.InfrastructureStatus
}

// RouterDeps are the collaborators NewRouter wires around the handler.
type RouterDeps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Health         HealthChecker
	Validator      authmw.JWTValidator
	OnAuthFailure  authmw.FailureRecorder
	RequestTimeout time.Duration
}

// NewRouter wires the public endpoints. Everything under /v1 requires a
// bearer token; /healthz and /metrics do not.
func NewRouter(h *Handler, deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.Middleware)
	r.Use(requesttime.Middleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	if deps.Health != nil {
		r.Get("/healthz", healthz(deps.Health))
	}
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.Validator, deps.Logger, deps.OnAuthFailure))
		// The stream is long-lived and must not inherit the request timeout.
		h.RegisterStream(r)
		r.Group(func(r chi.Router) {
			if deps.RequestTimeout > 0 {
				r.Use(chimw.Timeout(deps.RequestTimeout))
			}
			h.Register(r)
		})
	})
	return r
}

func healthz(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Status(r.Context())
		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	}
}
