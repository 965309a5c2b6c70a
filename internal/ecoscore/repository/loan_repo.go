package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
)

const loansTable = "loans"

var loanColumns = []string{
	"loan_id",
	"borrower_name",
	"borrower_address",
	"loan_amount",
	"project_type",
	"description",
	"eco_score",
	"predicted_carbon_reduction",
	"status",
	"certification_tx_id",
	"created_at",
	"updated_at",
}

// LoanRepository is the Postgres gateway for loan records.
type LoanRepository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetByID retrieves a loan by its loan_id
func (r *LoanRepository) GetByID(ctx context.Context, loanID string) (*domain.Loan, error) {
	query, args, err := r.psql.
		Select(loanColumns...).
		From(loansTable).
		Where(sq.Eq{"loan_id": loanID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build loan query: %w", err)
	}

	var (
		loan        domain.Loan
		address     sql.NullString
		projectType sql.NullString
		description sql.NullString
		ecoScore    sql.NullFloat64
		carbon      sql.NullFloat64
		status      string
		certTx      sql.NullString
	)

	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&loan.LoanID,
		&loan.BorrowerName,
		&address,
		&loan.LoanAmount,
		&projectType,
		&description,
		&ecoScore,
		&carbon,
		&status,
		&certTx,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	loan.ProjectType = projectType.String
	loan.Description = description.String
	loan.Status = domain.Status(status)
	if !loan.Status.Valid() {
		return nil, fmt.Errorf("loan %s has unknown status %q", loanID, status)
	}
	if address.Valid {
		loan.BorrowerAddress = &address.String
	}
	if ecoScore.Valid {
		loan.EcoScore = &ecoScore.Float64
	}
	if carbon.Valid {
		loan.PredictedCarbonReduction = &carbon.Float64
	}
	if certTx.Valid {
		loan.CertificationTxID = &certTx.String
	}

	return &loan, nil
}

// UpdateScore writes eco_score and predicted_carbon_reduction in one statement and
// moves a pending loan to scored. Other statuses are left alone.
func (r *LoanRepository) UpdateScore(ctx context.Context, loanID string, ecoScore, carbonReduction float64) error {
	query, args, err := r.psql.
		Update(loansTable).
		Set("eco_score", ecoScore).
		Set("predicted_carbon_reduction", carbonReduction).
		Set("status", sq.Expr("CASE WHEN status = ? THEN ? ELSE status END",
			string(domain.StatusPending), string(domain.StatusScored))).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"loan_id": loanID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build score update: %w", err)
	}

	return r.execOne(ctx, "update score", query, args)
}

// MarkCertified records the ledger transaction and sets status to certified.
func (r *LoanRepository) MarkCertified(ctx context.Context, loanID, txID string) error {
	query, args, err := r.psql.
		Update(loansTable).
		Set("status", string(domain.StatusCertified)).
		Set("certification_tx_id", txID).
		Set("certified_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"loan_id": loanID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build certification update: %w", err)
	}

	return r.execOne(ctx, "mark certified", query, args)
}

func (r *LoanRepository) execOne(ctx context.Context, op, query string, args []interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrLoanNotFound
	}

	return nil
}
