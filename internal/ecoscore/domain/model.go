package domain

import "time"

// Loan is the financed project record scored by the pipeline.
type Loan struct {
	LoanID                   string    `json:"loan_id"`
	BorrowerName             string    `json:"borrower_name"`
	BorrowerAddress          *string   `json:"borrower_address,omitempty"`
	LoanAmount               float64   `json:"loan_amount"`
	ProjectType              string    `json:"project_type"`
	Description              string    `json:"description"`
	EcoScore                 *float64  `json:"eco_score"`
	PredictedCarbonReduction *float64  `json:"predicted_carbon_reduction"`
	Status                   Status    `json:"status"`
	CertificationTxID        *string   `json:"certification_tx_id,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// NullAddress is submitted to the ledger when a loan carries no borrower address.
const NullAddress = "0x0000000000000000000000000000000000000000"

// LedgerAddress returns the borrower address or NullAddress.
func (l *Loan) LedgerAddress() string {
	if l.BorrowerAddress == nil || *l.BorrowerAddress == "" {
		return NullAddress
	}
	return *l.BorrowerAddress
}

// Status is the loan lifecycle state. It only ever moves forward.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScored    Status = "scored"
	StatusCertified Status = "certified"
)

func (s Status) rank() int {
	switch s {
	case StatusScored:
		return 1
	case StatusCertified:
		return 2
	default:
		return 0
	}
}

// Advance returns the later of s and next in the pending < scored < certified order.
func (s Status) Advance(next Status) Status {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusScored || s == StatusCertified
}

// Trigger identifies what started a pipeline run.
type Trigger string

const (
	TriggerTelemetry Trigger = "telemetry"
	TriggerManual    Trigger = "manual"
)

// TelemetryEvent is one validated measurement update for a loan.
type TelemetryEvent struct {
	LoanID                   string
	CarbonEst                *float64
	PredictedCarbonReduction *float64
	ReceivedAt               time.Time
	Trigger                  Trigger
}

// CertificationOutcome is what the dispatcher reports for one run.
type CertificationOutcome struct {
	LoanID    string  `json:"loan_id"`
	EcoScore  float64 `json:"eco_score"`
	Certified bool    `json:"certified"`
	TxID      *string `json:"tx_id"`
	// Reason is set when no certification happened.
	Reason string `json:"reason,omitempty"`
}

// Reasons reported on non-certified outcomes.
const (
	ReasonBelowThreshold   = "below_threshold"
	ReasonAlreadyCertified = "already_certified"
	ReasonLedgerFailure    = "ledger_failure"
)

// RunResult summarizes one completed pipeline run.
type RunResult struct {
	RunID                    string               `json:"run_id"`
	LoanID                   string               `json:"loan_id"`
	EcoScore                 float64              `json:"eco_score"`
	PredictedCarbonReduction float64              `json:"predicted_carbon_reduction"`
	Certification            CertificationOutcome `json:"certification"`
}

// Broadcast event names.
const (
	EventIoTUpdate     = "iot_update"
	EventLoanCertified = "loan_certified"
)

// IoTUpdate is emitted after every successful recompute and persist.
type IoTUpdate struct {
	LoanID          string  `json:"loan_id"`
	EcoScore        float64 `json:"eco_score"`
	CarbonReduction float64 `json:"carbon_reduction"`
	TxID            *string `json:"tx_id"`
}

// LoanCertified is emitted only after a successful ledger dispatch.
type LoanCertified struct {
	LoanID   string  `json:"loan_id"`
	EcoScore float64 `json:"eco_score"`
	TxID     string  `json:"tx_id"`
}

// Event is one broadcast notification.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}
