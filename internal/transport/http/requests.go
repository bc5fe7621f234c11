package httptransport

import (
	"fmt"

	"claimguard/internal/claims/intake"
	claims "claimguard/internal/claims/models"
	"claimguard/internal/session"
	"claimguard/internal/session/models"
	dErrors "claimguard/pkg/domain-errors"
	"claimguard/pkg/platform/audit"
)

// maxBatchSize bounds a single batch submission.
const maxBatchSize = 50

type submitClaimRequest struct {
	intake.ClaimInput
}

// Validate only checks the envelope. Field rules run in the intake validator
// so rejections are recorded against the session.
func (r *submitClaimRequest) Validate() error {
	return nil
}

type batchRequest struct {
	Claims []intake.ClaimInput `json:"claims"`
}

func (r *batchRequest) Validate() error {
	if len(r.Claims) == 0 {
		return dErrors.New(dErrors.CodeValidation, "claims must not be empty")
	}
	if len(r.Claims) > maxBatchSize {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d claims per batch", maxBatchSize))
	}
	return nil
}

type causeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type outcomeResponse struct {
	Claim   *claims.Claim               `json:"claim"`
	Result  *claims.ValidationResult    `json:"result,omitempty"`
	Session models.DemonstrationSession `json:"session"`
	Cause   *causeResponse              `json:"cause,omitempty"`
}

func toCause(err error) *causeResponse {
	if err == nil {
		return nil
	}
	c := &causeResponse{Code: string(dErrors.CodeOf(err)), Message: err.Error()}
	if de, ok := dErrors.As(err); ok {
		c.Message = de.Message
	}
	return c
}

func toOutcomeResponse(out *session.ClaimOutcome) outcomeResponse {
	return outcomeResponse{
		Claim:   out.Claim,
		Result:  out.Result,
		Session: out.Session,
		Cause:   toCause(out.Cause),
	}
}

type batchItemResponse struct {
	Index   int              `json:"index"`
	Outcome *outcomeResponse `json:"outcome,omitempty"`
	Error   *causeResponse   `json:"error,omitempty"`
}

type batchResponse struct {
	Items    []batchItemResponse `json:"items"`
	Accepted int                 `json:"accepted"`
	Rejected int                 `json:"rejected"`
}

func toBatchResponse(items []session.BatchItem) batchResponse {
	resp := batchResponse{Items: make([]batchItemResponse, 0, len(items))}
	for _, it := range items {
		ir := batchItemResponse{Index: it.Index}
		if it.Err != nil {
			ir.Error = toCause(it.Err)
			resp.Rejected++
		} else {
			o := toOutcomeResponse(it.Outcome)
			ir.Outcome = &o
			resp.Accepted++
		}
		resp.Items = append(resp.Items, ir)
	}
	return resp
}

type auditTrailResponse struct {
	Events []audit.Event `json:"events"`
}

func errorStatus(err error) int {
	return dErrors.ToHTTPStatus(dErrors.CodeOf(err))
}
