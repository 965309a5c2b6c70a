package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
)

// DefaultThreshold is the score a loan must exceed to be certified.
const DefaultThreshold = 80.0

// Request is one certification decision.
type Request struct {
	LoanID          string
	EcoScore        float64
	BorrowerAddress string
	CurrentStatus   domain.Status
}

type DispatcherConfig struct {
	Threshold float64
	// Timeout bounds a single ledger call including the receipt wait.
	Timeout time.Duration
	// Recertify resubmits for loans that are already certified.
	Recertify bool
}

// Dispatcher gates ledger submissions on the certification threshold and
// absorbs every ledger failure into a non-certified outcome.
type Dispatcher struct {
	client    Client
	threshold float64
	timeout   time.Duration
	recertify bool
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil client behaves like Disabled.
func NewDispatcher(client Client, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:    client,
		threshold: cfg.Threshold,
		timeout:   cfg.Timeout,
		recertify: cfg.Recertify,
		logger:    logger,
	}
}

// Threshold returns the configured cutoff.
func (d *Dispatcher) Threshold() float64 {
	return d.threshold
}

// Dispatch never returns an error. Scores at or below the threshold make no
// ledger call.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) domain.CertificationOutcome {
	outcome := domain.CertificationOutcome{LoanID: req.LoanID, EcoScore: req.EcoScore}

	if req.EcoScore <= d.threshold {
		outcome.Reason = domain.ReasonBelowThreshold
		return outcome
	}

	if req.CurrentStatus == domain.StatusCertified && !d.recertify {
		d.logger.Info("loan already certified, skipping ledger submission",
			"loan_id", req.LoanID, "eco_score", req.EcoScore)
		outcome.Reason = domain.ReasonAlreadyCertified
		return outcome
	}

	start := time.Now()
	txID, err := d.certify(ctx, req)
	if err != nil {
		err = domain.Fail(domain.ErrLedgerDispatch, req.LoanID, err)
		d.logger.Error("ledger certification failed",
			"loan_id", req.LoanID,
			"eco_score", req.EcoScore,
			"kind", domain.KindName(err),
			"duration", time.Since(start).Round(time.Millisecond),
			"error", err)
		outcome.Reason = domain.ReasonLedgerFailure
		return outcome
	}

	d.logger.Info("loan certified on ledger",
		"loan_id", req.LoanID,
		"eco_score", req.EcoScore,
		"tx_id", txID,
		"duration", time.Since(start).Round(time.Millisecond))

	outcome.Certified = true
	outcome.TxID = &txID
	return outcome
}

func (d *Dispatcher) certify(ctx context.Context, req Request) (txID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger client panic: %v", r)
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	txID, err = d.client.Certify(ctx, req.LoanID, req.EcoScore, req.BorrowerAddress)
	if err != nil {
		return "", err
	}
	if txID == "" {
		return "", errors.New("ledger returned empty transaction id")
	}
	return txID, nil
}
