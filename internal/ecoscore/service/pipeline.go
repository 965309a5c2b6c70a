// Package service runs the scoring pipeline: load the loan, recompute its
// score, persist it, conditionally certify it on the ledger and broadcast the
// outcome.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/ledger"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/scoring"
	"github.com/google/uuid"
)

// LoanStore is the record store the pipeline reads and writes.
type LoanStore interface {
	GetByID(ctx context.Context, loanID string) (*domain.Loan, error)
	UpdateScore(ctx context.Context, loanID string, ecoScore, carbonReduction float64) error
	MarkCertified(ctx context.Context, loanID, txID string) error
}

// Scorer recomputes a loan's eco-score.
type Scorer interface {
	Recompute(ctx context.Context, loan *domain.Loan, reading scoring.Reading) (scoring.Score, error)
}

// Certifier decides on and performs ledger certification. It never fails.
type Certifier interface {
	Dispatch(ctx context.Context, req ledger.Request) domain.CertificationOutcome
}

// Broadcaster fans outcomes out to live clients.
type Broadcaster interface {
	BroadcastScoreUpdate(domain.IoTUpdate)
	BroadcastCertified(domain.LoanCertified)
}

// Pipeline holds the collaborators shared by every run. It carries no
// per-run state and is safe for concurrent use.
type Pipeline struct {
	store       LoanStore
	scorer      Scorer
	certifier   Certifier
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(store LoanStore, scorer Scorer, certifier Certifier, broadcaster Broadcaster, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:       store,
		scorer:      scorer,
		certifier:   certifier,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Run executes one pipeline run for ev. Returned errors are *domain.PipelineError
// of kind ErrLoanNotFound, ErrModelInference or ErrPersistence. Ledger failures
// are reported through the certification outcome, not as an error.
func (p *Pipeline) Run(ctx context.Context, ev domain.TelemetryEvent) (*domain.RunResult, error) {
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID, "loan_id", ev.LoanID, "trigger", string(ev.Trigger))

	loan, err := p.store.GetByID(ctx, ev.LoanID)
	if err != nil {
		return nil, p.abort(log, storeError(ev.LoanID, err), "loan lookup failed")
	}

	reading := resolveReading(loan, ev)

	score, err := p.scorer.Recompute(ctx, loan, reading)
	if err != nil {
		return nil, p.abort(log, err, "score recompute failed")
	}

	if err := p.store.UpdateScore(ctx, loan.LoanID, score.EcoScore, reading.PredictedCarbonReduction); err != nil {
		return nil, p.abort(log, storeError(loan.LoanID, err), "score update failed")
	}
	log.Info("score updated", "eco_score", score.EcoScore, "raw", score.Raw,
		"predicted_carbon_reduction", reading.PredictedCarbonReduction)

	outcome := p.certifier.Dispatch(ctx, ledger.Request{
		LoanID:          loan.LoanID,
		EcoScore:        score.EcoScore,
		BorrowerAddress: loan.LedgerAddress(),
		CurrentStatus:   loan.Status,
	})

	if outcome.Certified && outcome.TxID != nil {
		if err := p.store.MarkCertified(ctx, loan.LoanID, *outcome.TxID); err != nil {
			log.Error("failed to record certification", "tx_id", *outcome.TxID,
				"kind", domain.KindName(storeError(loan.LoanID, err)), "error", err)
		} else {
			log.Info("loan certified", "tx_id", *outcome.TxID, "eco_score", score.EcoScore)
		}
	}

	p.broadcaster.BroadcastScoreUpdate(domain.IoTUpdate{
		LoanID:          loan.LoanID,
		EcoScore:        score.EcoScore,
		CarbonReduction: reading.PredictedCarbonReduction,
		TxID:            outcome.TxID,
	})
	if outcome.Certified && outcome.TxID != nil {
		p.broadcaster.BroadcastCertified(domain.LoanCertified{
			LoanID:   loan.LoanID,
			EcoScore: score.EcoScore,
			TxID:     *outcome.TxID,
		})
	}

	return &domain.RunResult{
		RunID:                    runID,
		LoanID:                   loan.LoanID,
		EcoScore:                 score.EcoScore,
		PredictedCarbonReduction: reading.PredictedCarbonReduction,
		Certification:            outcome,
	}, nil
}

func (p *Pipeline) abort(log *slog.Logger, err error, msg string) error {
	log.Warn(msg, "kind", domain.KindName(err), "error", err)
	return err
}

// resolveReading fills absent telemetry fields: the predicted reduction falls
// back to the stored value, then 0; the carbon estimate defaults to 0.
func resolveReading(loan *domain.Loan, ev domain.TelemetryEvent) scoring.Reading {
	var r scoring.Reading

	switch {
	case ev.PredictedCarbonReduction != nil:
		r.PredictedCarbonReduction = *ev.PredictedCarbonReduction
	case loan.PredictedCarbonReduction != nil:
		r.PredictedCarbonReduction = *loan.PredictedCarbonReduction
	}
	if ev.CarbonEst != nil {
		r.CarbonEst = *ev.CarbonEst
	}

	return r
}

// storeError keeps not-found and other store failures apart.
func storeError(loanID string, err error) error {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, domain.ErrLoanNotFound) {
		return domain.Fail(domain.ErrLoanNotFound, loanID, nil)
	}
	return domain.Fail(domain.ErrPersistence, loanID, err)
}
