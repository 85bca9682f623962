package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"railsync/internal/domain/transaction"
)

// TransactionRepository implements the transaction.Repository interface
// for PostgreSQL. Transaction rows are immutable.
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new PostgreSQL transaction
// repository.
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// InsertBatch appends the given transactions in one statement per row
// inside a single transaction, returning the number of rows written.
func (r *TransactionRepository) InsertBatch(ctx context.Context, txs []transaction.CreateParams) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO transactions (account_id, external_id, booked_at, value_at, amount, currency,
		                          description, counterparty_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for i := range txs {
		p := &txs[i]
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("invalid transaction %s: %w", p.ExternalID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			p.AccountID, p.ExternalID, p.BookedAt, nullTime(p.ValueAt), p.Amount.String(),
			p.Currency, nullString(p.Description), nullString(p.CounterpartyName),
		); err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", p.ExternalID, err)
		}
		written++
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return written, nil
}

// LatestBookingTime returns the booking date-time of the most recent
// stored transaction of an account, or nil when none exists. One page,
// descending by booking date.
func (r *TransactionRepository) LatestBookingTime(ctx context.Context, accountID string) (*time.Time, error) {
	query := `
		SELECT booked_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY booked_at DESC
		LIMIT 1
	`

	var bookedAt time.Time
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&bookedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest booking time: %w", err)
	}
	return &bookedAt, nil
}

// ListByAccountID returns transactions ordered by booking date-time
// descending, paged by limit/offset.
func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, account_id, external_id, booked_at, value_at, amount, currency,
		       description, counterparty_name, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY booked_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []*transaction.Transaction
	for rows.Next() {
		var tx transaction.Transaction
		var valueAt sql.NullTime
		var amount string
		var description, counterparty sql.NullString

		err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.ExternalID, &tx.BookedAt, &valueAt, &amount,
			&tx.Currency, &description, &counterparty, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.ValueAt = timePtr(valueAt)
		if description.Valid {
			tx.Description = description.String
		}
		if counterparty.Valid {
			tx.CounterpartyName = counterparty.String
		}
		if tx.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}

		result = append(result, &tx)
	}
	return result, rows.Err()
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse stored amount '%s': %w", s, err)
	}
	return amount, nil
}
