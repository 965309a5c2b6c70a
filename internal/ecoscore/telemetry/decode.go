package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
)

// Payload is the inbound message body.
type Payload struct {
	LoanID                   *string  `json:"loan_id"`
	PredictedCarbonReduction *float64 `json:"predicted_carbon_reduction"`
	CarbonEst                *float64 `json:"carbon_est"`
}

// Decode parses one broker message. Failures wrap domain.ErrMalformedTelemetry.
func Decode(payload []byte, receivedAt time.Time) (domain.TelemetryEvent, error) {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.TelemetryEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedTelemetry, err)
	}

	if p.LoanID == nil || strings.TrimSpace(*p.LoanID) == "" {
		return domain.TelemetryEvent{}, fmt.Errorf("%w: missing loan_id", domain.ErrMalformedTelemetry)
	}

	return domain.TelemetryEvent{
		LoanID:                   strings.TrimSpace(*p.LoanID),
		CarbonEst:                p.CarbonEst,
		PredictedCarbonReduction: p.PredictedCarbonReduction,
		ReceivedAt:               receivedAt,
		Trigger:                  domain.TriggerTelemetry,
	}, nil
}
