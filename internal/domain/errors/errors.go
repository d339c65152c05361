package errors

import (
	"errors"
	"net/http"
)

// Sentinel errors shared across usecases
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrPaymentRequired     = errors.New("payment required")
	ErrPaymentReplay       = errors.New("payment already used")
	ErrVerificationFailed  = errors.New("payment verification failed")
	ErrFacilitatorDown     = errors.New("verification service unavailable")
	ErrCircuitOpen         = errors.New("capability temporarily unavailable")
	ErrBlockedEndpoint     = errors.New("endpoint blocked")
	ErrOverBudget          = errors.New("cost exceeds budget")
	ErrBackendUnavailable  = errors.New("backend unreachable")
	ErrBackendTimeout      = errors.New("backend timed out")
	ErrOrchestrationFailed = errors.New("orchestration failed")
)

// Machine-readable error codes surfaced to callers
const (
	CodeMissingTask            = "missing_task"
	CodeMissingParams          = "missing_params"
	CodeUnknownCapability      = "unknown_capability"
	CodeNoMatchingCapability   = "no_matching_capability"
	CodeOverBudget             = "over_budget"
	CodePaymentRequired        = "payment_required"
	CodeInvalidPayment         = "invalid_payment"
	CodePaymentReplay          = "payment_replay"
	CodeVerificationUnavail    = "verification_unavailable"
	CodeBackendError           = "backend_error"
	CodeBackendPaymentRequired = "backend_payment_required"
	CodeBackendUnavailable     = "backend_unavailable"
	CodeCircuitOpen            = "circuit_open"
	CodeRateLimited            = "rate_limited"
	CodeOrchestrationFailed    = "orchestration_failed"
	CodeStepFailed             = "step_failed"
	CodeStepTimeout            = "step_timeout"
	CodeTotalTimeout           = "total_timeout"
	CodeBlockedEndpoint        = "blocked_endpoint"
	CodeInternal               = "internal_error"
)

// AppError represents an application error with an HTTP status and a
// machine-readable code.
type AppError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail attaches structured detail fields to the error.
func (e *AppError) WithDetail(detail map[string]any) *AppError {
	e.Detail = detail
	return e
}

// Common error constructors
func BadRequest(code, message string) *AppError {
	return NewAppError(http.StatusBadRequest, code, message, ErrInvalidInput)
}

func NotFound(code, message string) *AppError {
	return NewAppError(http.StatusNotFound, code, message, ErrNotFound)
}

func PaymentError(code, message string) *AppError {
	return NewAppError(http.StatusPaymentRequired, code, message, ErrPaymentRequired)
}

func CircuitOpen(capabilityID string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeCircuitOpen,
		capabilityID+" is temporarily unavailable, retry later", ErrCircuitOpen)
}

func RateLimited() *AppError {
	return NewAppError(http.StatusTooManyRequests, CodeRateLimited,
		"rate limit exceeded, slow down", nil)
}

func BadGateway(code, message string) *AppError {
	return NewAppError(http.StatusBadGateway, code, message, ErrBackendUnavailable)
}

func GatewayTimeout(code, message string) *AppError {
	return NewAppError(http.StatusGatewayTimeout, code, message, ErrBackendTimeout)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternal, "internal server error", err)
}
