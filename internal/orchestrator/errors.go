package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for AI calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the attempt exceeded its deadline
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorOutage indicates a 5xx-equivalent failure
	ErrorOutage ErrorCategory = "service_outage"

	// ErrorRateLimited indicates the service asked us to slow down
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorBadData indicates a response that cannot be used
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorRejected indicates a definitive refusal from the model
	ErrorRejected ErrorCategory = "rejected"

	// ErrorAuthentication indicates credential problems
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorCancelled indicates the session stopped the call
	ErrorCancelled ErrorCategory = "cancelled"

	ErrorInternal ErrorCategory = "internal"
)

// ServiceError wraps an AI call failure with a normalized category. CostUSD is
// the metered cost of the failed attempt when the service reports one.
type ServiceError struct {
	Category   ErrorCategory
	Service    string
	Message    string
	Underlying error
	Retryable  bool
	CostUSD    float64
}

func (e *ServiceError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Service, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Service, e.Category, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Underlying
}

// NewServiceError creates a categorized error. Timeouts, outages and rate
// limits are retryable; everything else is final.
func NewServiceError(category ErrorCategory, service, message string, underlying error) *ServiceError {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited

	return &ServiceError{
		Category:   category,
		Service:    service,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// WithCost records the metered cost of the failed attempt.
func (e *ServiceError) WithCost(usd float64) *ServiceError {
	e.CostUSD = usd
	return e
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// GetCategory extracts the category from err.
func GetCategory(err error) ErrorCategory {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Category
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCancelled
	}
	return ErrorInternal
}

// classify normalizes an adapter error so the retry loop only sees ServiceErrors.
func classify(service string, err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		if se.Service == "" {
			se.Service = service
		}
		return se
	}
	return NewServiceError(GetCategory(err), service, "call failed", err)
}
