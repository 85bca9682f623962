package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"railsync/internal/domain/account"
)

// BalanceRepository implements the account.BalanceRepository interface
// for PostgreSQL. Balance rows are append-only.
type BalanceRepository struct {
	db *DB
}

// NewBalanceRepository creates a new PostgreSQL balance repository.
func NewBalanceRepository(db *DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Insert appends one balance snapshot row.
func (r *BalanceRepository) Insert(ctx context.Context, params account.CreateBalanceParams) (*account.Balance, error) {
	query := `
		INSERT INTO balances (account_id, amount, currency, balance_type, reference_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, account_id, amount, currency, balance_type, reference_date, created_at
	`

	var b account.Balance
	var amount string
	err := r.db.QueryRowContext(
		ctx, query,
		params.AccountID, params.Amount.String(), params.Currency, params.BalanceType, params.ReferenceDate,
	).Scan(&b.ID, &b.AccountID, &amount, &b.Currency, &b.BalanceType, &b.ReferenceDate, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert balance: %w", err)
	}

	if b.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	return &b, nil
}

// LatestByAccountID returns the most recent balance snapshot of an
// account, or nil when none exists.
func (r *BalanceRepository) LatestByAccountID(ctx context.Context, accountID string) (*account.Balance, error) {
	query := `
		SELECT id, account_id, amount, currency, balance_type, reference_date, created_at
		FROM balances
		WHERE account_id = $1
		ORDER BY reference_date DESC, created_at DESC
		LIMIT 1
	`

	var b account.Balance
	var amount string
	err := r.db.QueryRowContext(ctx, query, accountID).
		Scan(&b.ID, &b.AccountID, &amount, &b.Currency, &b.BalanceType, &b.ReferenceDate, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest balance: %w", err)
	}

	if b.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	return &b, nil
}
