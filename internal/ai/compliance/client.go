// Package compliance is an HTTP client for the regulatory compliance service.
package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"claimguard/internal/claims/models"
	"claimguard/internal/orchestrator"
)

const (
	checksPath = "/v1/compliance/checks"
	healthPath = "/v1/health"
)

// Client implements orchestrator.ComplianceService.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Per-call deadlines come from ctx.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("compliance service URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type checkRequest struct {
	ClaimID         string   `json:"claim_id"`
	PatientRef      string   `json:"patient_ref"`
	ProviderRef     string   `json:"provider_ref"`
	ProcedureCode   string   `json:"procedure_code"`
	DiagnosisCode   string   `json:"diagnosis_code"`
	RequestedAmount float64  `json:"requested_amount"`
	MedicalContext  string   `json:"medical_context,omitempty"`
	Documents       []string `json:"supporting_documents,omitempty"`
}

type checkResponse struct {
	Checks  []models.ComplianceCheck `json:"checks"`
	CostUSD float64                  `json:"cost_usd"`
}

type errorResponse struct {
	Error   string  `json:"error"`
	CostUSD float64 `json:"cost_usd"`
}

// Check posts the claim and returns the reported checks.
func (c *Client) Check(ctx context.Context, req orchestrator.ComplianceRequest) (*orchestrator.ComplianceResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(checkRequest{
		ClaimID:         string(req.ClaimID),
		PatientRef:      req.PatientRef,
		ProviderRef:     req.ProviderRef,
		ProcedureCode:   req.ProcedureCode,
		DiagnosisCode:   req.DiagnosisCode,
		RequestedAmount: req.RequestedAmount,
		MedicalContext:  req.MedicalContext,
		Documents:       req.Documents,
	})
	if err != nil {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorInternal, orchestrator.ServiceCompliance, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+checksPath, bytes.NewReader(body))
	if err != nil {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorInternal, orchestrator.ServiceCompliance, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, orchestrator.NewServiceError(orchestrator.ErrorOutage, orchestrator.ServiceCompliance, "http request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorOutage, orchestrator.ServiceCompliance, "read response", err)
	}
	if resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, data)
	}

	var out checkResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, orchestrator.NewServiceError(orchestrator.ErrorBadData, orchestrator.ServiceCompliance, "decode response", err)
	}
	return &orchestrator.ComplianceResponse{
		Checks:  out.Checks,
		CostUSD: out.CostUSD,
		Latency: time.Since(start),
	}, nil
}

func statusError(status int, body []byte) *orchestrator.ServiceError {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	msg := fmt.Sprintf("status %d", status)
	if er.Error != "" {
		msg += ": " + er.Error
	}

	category := orchestrator.ErrorRejected
	switch {
	case status == http.StatusTooManyRequests:
		category = orchestrator.ErrorRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = orchestrator.ErrorAuthentication
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		category = orchestrator.ErrorTimeout
	case status >= 500:
		category = orchestrator.ErrorOutage
	}
	return orchestrator.NewServiceError(category, orchestrator.ServiceCompliance, msg, nil).WithCost(er.CostUSD)
}

// Ping calls the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("compliance health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("compliance health: status %d", resp.StatusCode)
	}
	return nil
}
