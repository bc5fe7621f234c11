package session

import (
	"context"
	"log/slog"

	"claimguard/pkg/attrs"
	"claimguard/pkg/platform/audit"
	"claimguard/pkg/requestcontext"
)

// AuditPublisher receives audit events for sessions and claims.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// logAudit logs an audit event and emits it to the publisher. The session,
// claim, patient hash, decision, reason and amount are lifted from attrList.
func logAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.AuditEvent, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}

	args := append(attrList, "event", string(event), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}
	err := publisher.Emit(ctx, audit.Event{
		Category:       event.Category(),
		Timestamp:      requestcontext.Now(ctx),
		SessionID:      attrs.ExtractString(attrList, "session_id"),
		ExecutiveID:    executiveOf(ctx, attrList),
		Action:         string(event),
		ClaimID:        attrs.ExtractString(attrList, "claim_id"),
		PatientRefHash: attrs.ExtractString(attrList, "patient_ref_hash"),
		Decision:       attrs.ExtractString(attrList, "decision"),
		Reason:         attrs.ExtractString(attrList, "reason"),
		AmountUSD:      attrs.ExtractFloat64(attrList, "amount_usd"),
		RequestID:      requestID,
	})
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "audit emit failed", "event", string(event), "error", err)
	}
}

func executiveOf(ctx context.Context, attrList []any) string {
	if id := attrs.ExtractString(attrList, "executive_id"); id != "" {
		return id
	}
	return requestcontext.ExecutiveID(ctx)
}
