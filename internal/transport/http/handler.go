// Package httptransport exposes the session service over HTTP for the
// executive dashboard.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"claimguard/internal/claims/intake"
	claims "claimguard/internal/claims/models"
	"claimguard/internal/session"
	"claimguard/internal/session/models"
	"claimguard/pkg/platform/audit"
	"claimguard/pkg/platform/httputil"
	request "claimguard/pkg/platform/middleware/request"
)

// Service is the subset of the session service the handlers call.
type Service interface {
	StartSession(ctx context.Context) (models.DemonstrationSession, error)
	Session(ctx context.Context, sessionID models.SessionID) (models.DemonstrationSession, error)
	SubmitClaim(ctx context.Context, sessionID models.SessionID, in intake.ClaimInput) (*session.ClaimOutcome, error)
	SubmitBatch(ctx context.Context, sessionID models.SessionID, inputs []intake.ClaimInput) ([]session.BatchItem, error)
	CloseSession(ctx context.Context, sessionID models.SessionID) (models.DemonstrationSession, error)
	Summary(ctx context.Context, sessionID models.SessionID) (models.Summary, error)
	Claim(ctx context.Context, sessionID models.SessionID, claimID claims.ClaimID) (*claims.Claim, error)
	Result(ctx context.Context, sessionID models.SessionID, claimID claims.ClaimID) (*claims.ValidationResult, error)
	AuditTrail(ctx context.Context, sessionID models.SessionID) ([]audit.Event, error)
	Subscribe(ctx context.Context, sessionID models.SessionID, buffer int) (<-chan models.DemonstrationSession, func(), error)
}

// Handler serves the /sessions routes.
type Handler struct {
	svc          Service
	logger       *slog.Logger
	streamBuffer int
	pingInterval time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStreamBuffer sets how many snapshots a slow websocket client may lag.
func WithStreamBuffer(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.streamBuffer = n
		}
	}
}

// WithPingInterval sets the websocket keepalive interval.
func WithPingInterval(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func New(svc Service, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:          svc,
		logger:       logger,
		streamBuffer: 16,
		pingInterval: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the request/response session routes on r. Authentication
// is the caller's responsibility.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.handleStartSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Post("/sessions/{sessionID}/close", h.handleCloseSession)
	r.Get("/sessions/{sessionID}/summary", h.handleSummary)
	r.Get("/sessions/{sessionID}/audit", h.handleAuditTrail)
	r.Post("/sessions/{sessionID}/claims", h.handleSubmitClaim)
	r.Post("/sessions/{sessionID}/claims/batch", h.handleSubmitBatch)
	r.Get("/sessions/{sessionID}/claims/{claimID}", h.handleGetClaim)
	r.Get("/sessions/{sessionID}/claims/{claimID}/result", h.handleGetResult)
}

// RegisterStream mounts the websocket snapshot stream.
func (h *Handler) RegisterStream(r chi.Router) {
	r.Get("/sessions/{sessionID}/stream", h.handleStream)
}

func sessionIDParam(r *http.Request) models.SessionID {
	return models.SessionID(chi.URLParam(r, "sessionID"))
}

func claimIDParam(r *http.Request) claims.ClaimID {
	return claims.ClaimID(chi.URLParam(r, "claimID"))
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.svc.StartSession(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to start session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.svc.Session(ctx, sessionIDParam(r))
	if err != nil {
		h.fail(ctx, w, "failed to load session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.svc.CloseSession(ctx, sessionIDParam(r))
	if err != nil {
		h.fail(ctx, w, "failed to close session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.svc.Summary(ctx, sessionIDParam(r))
	if err != nil {
		h.fail(ctx, w, "failed to summarize session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.svc.AuditTrail(ctx, sessionIDParam(r))
	if err != nil {
		h.fail(ctx, w, "failed to list audit trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auditTrailResponse{Events: events})
}

func (h *Handler) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[submitClaimRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	out, err := h.svc.SubmitClaim(ctx, sessionIDParam(r), req.ClaimInput)
	if err != nil {
		h.fail(ctx, w, "claim rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOutcomeResponse(out))
}

func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[batchRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	items, err := h.svc.SubmitBatch(ctx, sessionIDParam(r), req.Claims)
	if err != nil {
		h.fail(ctx, w, "batch rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBatchResponse(items))
}

func (h *Handler) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claim, err := h.svc.Claim(ctx, sessionIDParam(r), claimIDParam(r))
	if err != nil {
		h.fail(ctx, w, "failed to load claim", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.svc.Result(ctx, sessionIDParam(r), claimIDParam(r))
	if err != nil {
		h.fail(ctx, w, "failed to load result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// fail logs err at a level matching its status and writes the error envelope.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", request.GetRequestID(ctx),
		"error", err,
	}
	if status := errorStatus(err); status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
