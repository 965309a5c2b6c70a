package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"
)

const certifyFunction = "certifyLoan"

// HederaConfig holds the operator credentials and target contract.
type HederaConfig struct {
	Network     string
	OperatorID  string
	OperatorKey string
	ContractID  string
	Gas         int64
	Timeout     time.Duration
	Logger      *slog.Logger
}

// HederaClient calls EcoLoanCertifier.certifyLoan(string loanId, uint64 scoreBps, address borrower)
// through a single shared SDK client.
type HederaClient struct {
	client     *hedera.Client
	contractID hedera.ContractID
	gas        uint64
	logger     *slog.Logger
}

var _ Client = (*HederaClient)(nil)

// NewHederaClient builds the SDK client and sets the operator.
func NewHederaClient(cfg HederaConfig) (*HederaClient, error) {
	client, err := hedera.ClientForName(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("hedera network %q: %w", cfg.Network, err)
	}

	operatorID, err := hedera.AccountIDFromString(cfg.OperatorID)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("parse operator id: %w", err)
	}

	operatorKey, err := hedera.PrivateKeyFromString(cfg.OperatorKey)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("parse operator key: %w", err)
	}

	contractID, err := hedera.ContractIDFromString(cfg.ContractID)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("parse contract id: %w", err)
	}

	client.SetOperator(operatorID, operatorKey)
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		client.SetRequestTimeout(&timeout)
	}

	gas := cfg.Gas
	if gas <= 0 {
		gas = 300000
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HederaClient{client: client, contractID: contractID, gas: uint64(gas), logger: logger}, nil
}

// Certify executes the contract call and waits for its receipt. The SDK has no
// context support, so the call runs on its own goroutine and ctx bounds the wait.
func (c *HederaClient) Certify(ctx context.Context, loanID string, ecoScore float64, borrowerAddress string) (string, error) {
	params, err := hedera.NewContractFunctionParameters().
		AddString(loanID).
		AddUint64(ScoreBasisPoints(ecoScore)).
		AddAddress(strings.TrimPrefix(borrowerAddress, "0x"))
	if err != nil {
		return "", fmt.Errorf("encode certify params: %w", err)
	}

	return awaitSubmission(ctx, loanID, c.logger, func() (string, error) {
		resp, err := hedera.NewContractExecuteTransaction().
			SetContractID(c.contractID).
			SetGas(c.gas).
			SetFunction(certifyFunction, params).
			Execute(c.client)
		if err != nil {
			return "", fmt.Errorf("execute certify: %w", err)
		}

		if _, err := resp.GetReceipt(c.client); err != nil {
			return "", fmt.Errorf("certify receipt: %w", err)
		}

		return resp.TransactionID.String(), nil
	})
}

// awaitSubmission runs submit on its own goroutine and waits for it or ctx.
// A submission still in flight when ctx ends keeps running; its result is
// logged so a transaction that lands late can be traced.
func awaitSubmission(ctx context.Context, loanID string, logger *slog.Logger, submit func() (string, error)) (string, error) {
	type result struct {
		txID string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		txID, err := submit()
		done <- result{txID: txID, err: err}
	}()

	select {
	case r := <-done:
		return r.txID, r.err
	case <-ctx.Done():
		go func() {
			r := <-done
			if r.err != nil {
				logger.Warn("abandoned ledger submission failed", "loan_id", loanID, "error", r.err)
				return
			}
			logger.Warn("ledger transaction completed after certify timed out, not recorded",
				"loan_id", loanID, "tx_id", r.txID)
		}()
		return "", fmt.Errorf("certify %s: %w", loanID, ctx.Err())
	}
}

// Close releases the SDK connections.
func (c *HederaClient) Close() error {
	return c.client.Close()
}

// ScoreBasisPoints encodes a [0,100] score with two decimals as an integer.
func ScoreBasisPoints(ecoScore float64) uint64 {
	return uint64(math.Round(math.Max(0, math.Min(100, ecoScore)) * 100))
}
