package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ecoscore-finance/ecoscore-backend/internal/api/http/middleware"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/realtime"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/service"
	"github.com/gin-gonic/gin"
)

const defaultRunTimeout = 45 * time.Second

// Recomputer queues a manual pipeline run and waits for the result.
type Recomputer interface {
	Recompute(ctx context.Context, ev domain.TelemetryEvent) (*domain.RunResult, error)
}

// LoanReader loads a single loan.
type LoanReader interface {
	GetByID(ctx context.Context, loanID string) (*domain.Loan, error)
}

// EventSource hands out live broadcast subscriptions.
type EventSource interface {
	Subscribe() *realtime.Subscription
	Unsubscribe(sub *realtime.Subscription)
}

// Handler serves the loan scoring routes
type Handler struct {
	runner     Recomputer
	loans      LoanReader
	events     EventSource
	runTimeout time.Duration
	keepAlive  time.Duration
	logger     *slog.Logger
}

// New creates a new Handler
func New(runner Recomputer, loans LoanReader, events EventSource, runTimeout time.Duration, logger *slog.Logger) *Handler {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runner:     runner,
		loans:      loans,
		events:     events,
		runTimeout: runTimeout,
		keepAlive:  15 * time.Second,
		logger:     logger,
	}
}

type scoreRequest struct {
	PredictedCarbonReduction *float64 `json:"predicted_carbon_reduction"`
	CarbonEst                *float64 `json:"carbon_est"`
}

type scoreResponse struct {
	RunID                    string  `json:"run_id"`
	LoanID                   string  `json:"loan_id"`
	EcoScore                 float64 `json:"eco_score"`
	PredictedCarbonReduction float64 `json:"predicted_carbon_reduction"`
	Certified                bool    `json:"certified"`
	TxID                     *string `json:"tx_id"`
	Reason                   string  `json:"reason,omitempty"`
}

// ScoreLoan triggers a manual recompute for a loan. The run executes on the
// pipeline runner; this handler only waits for its outcome.
func (h *Handler) ScoreLoan(c *gin.Context) {
	loanID := strings.TrimSpace(c.Param("id"))
	if loanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loan ID is required"})
		return
	}

	var body scoreRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.runTimeout)
	defer cancel()

	res, err := h.runner.Recompute(ctx, domain.TelemetryEvent{
		LoanID:                   loanID,
		CarbonEst:                body.CarbonEst,
		PredictedCarbonReduction: body.PredictedCarbonReduction,
		ReceivedAt:               time.Now().UTC(),
		Trigger:                  domain.TriggerManual,
	})
	if err != nil {
		status, msg := errorStatus(err)
		h.logger.Warn("manual recompute failed",
			"request_id", middleware.GetRequestID(c.Request.Context()),
			"loan_id", loanID,
			"status", status,
			"kind", domain.KindName(err),
			"error", err,
		)
		c.JSON(status, gin.H{"error": msg, "kind": domain.KindName(err)})
		return
	}

	c.JSON(http.StatusOK, scoreResponse{
		RunID:                    res.RunID,
		LoanID:                   res.LoanID,
		EcoScore:                 res.EcoScore,
		PredictedCarbonReduction: res.PredictedCarbonReduction,
		Certified:                res.Certification.Certified,
		TxID:                     res.Certification.TxID,
		Reason:                   res.Certification.Reason,
	})
}

// GetLoan returns the stored loan record
func (h *Handler) GetLoan(c *gin.Context) {
	loanID := strings.TrimSpace(c.Param("id"))
	if loanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loan ID is required"})
		return
	}

	loan, err := h.loans.GetByID(c.Request.Context(), loanID)
	if err != nil {
		if errors.Is(err, domain.ErrLoanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "loan not found"})
			return
		}
		h.logger.Error("failed to get loan",
			"request_id", middleware.GetRequestID(c.Request.Context()),
			"loan_id", loanID,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get loan"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"loan": loan})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrLoanNotFound):
		return http.StatusNotFound, "loan not found"
	case errors.Is(err, domain.ErrModelInference):
		return http.StatusUnprocessableEntity, "score could not be computed"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, "failed to update loan"
	case errors.Is(err, service.ErrRunnerStopped),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "scoring pipeline unavailable"
	default:
		return http.StatusInternalServerError, "recompute failed"
	}
}
