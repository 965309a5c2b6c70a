// Package ledger submits certification records to the distributed ledger and
// decides when a recomputed score qualifies for one.
package ledger

import (
	"context"
	"errors"
)

// ErrLedgerDisabled is returned by the Disabled client.
var ErrLedgerDisabled = errors.New("ledger client not configured")

// Client submits one certification transaction and returns its identifier
// once the receipt is available.
type Client interface {
	Certify(ctx context.Context, loanID string, ecoScore float64, borrowerAddress string) (txID string, err error)
}

// Disabled is used when no ledger credentials are configured. Every call fails,
// which the Dispatcher turns into a non-certified outcome.
type Disabled struct{}

func (Disabled) Certify(context.Context, string, float64, string) (string, error) {
	return "", ErrLedgerDisabled
}
