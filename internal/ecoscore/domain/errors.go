package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedTelemetry = errors.New("malformed telemetry")
	ErrLoanNotFound       = errors.New("loan not found")
	ErrPersistence        = errors.New("persistence failure")
	ErrModelInference     = errors.New("model inference failure")
	ErrLedgerDispatch     = errors.New("ledger dispatch failure")
)

// PipelineError ties a failure kind to the loan and underlying cause.
// errors.Is matches both the kind sentinel and the cause.
type PipelineError struct {
	Kind   error
	LoanID string
	Err    error
}

// Fail builds a PipelineError.
func Fail(kind error, loanID string, err error) *PipelineError {
	return &PipelineError{Kind: kind, LoanID: loanID, Err: err}
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (loan_id=%s)", e.Kind, e.LoanID)
	}
	return fmt.Sprintf("%v (loan_id=%s): %v", e.Kind, e.LoanID, e.Err)
}

func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a stable label for the failure kind carried by err.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedTelemetry):
		return "malformed_telemetry"
	case errors.Is(err, ErrLoanNotFound):
		return "loan_not_found"
	case errors.Is(err, ErrModelInference):
		return "model_inference_failure"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	case errors.Is(err, ErrLedgerDispatch):
		return "ledger_dispatch_failure"
	default:
		return "unknown"
	}
}
