package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAdvance(t *testing.T) {
	assert.Equal(t, StatusScored, StatusPending.Advance(StatusScored))
	assert.Equal(t, StatusCertified, StatusScored.Advance(StatusCertified))
	assert.Equal(t, StatusCertified, StatusCertified.Advance(StatusScored))
	assert.Equal(t, StatusCertified, StatusCertified.Advance(StatusPending))
	assert.Equal(t, StatusScored, StatusScored.Advance(StatusPending))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusCertified.Valid())
	assert.False(t, Status("approved").Valid())
}

func TestLedgerAddress(t *testing.T) {
	loan := &Loan{}
	assert.Equal(t, NullAddress, loan.LedgerAddress())

	empty := ""
	loan.BorrowerAddress = &empty
	assert.Equal(t, NullAddress, loan.LedgerAddress())

	addr := "0x1234567890abcdef1234567890abcdef12345678"
	loan.BorrowerAddress = &addr
	assert.Equal(t, addr, loan.LedgerAddress())
}

func TestPipelineError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("run: %w", Fail(ErrPersistence, "X", cause))

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrLoanNotFound))
	assert.Equal(t, "persistence_failure", KindName(err))
	assert.Contains(t, err.Error(), "loan_id=X")

	var pe *PipelineError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "X", pe.LoanID)
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "", KindName(nil))
	assert.Equal(t, "loan_not_found", KindName(Fail(ErrLoanNotFound, "a", nil)))
	assert.Equal(t, "model_inference_failure", KindName(Fail(ErrModelInference, "a", errors.New("nan"))))
	assert.Equal(t, "malformed_telemetry", KindName(ErrMalformedTelemetry))
	assert.Equal(t, "unknown", KindName(errors.New("other")))
}
