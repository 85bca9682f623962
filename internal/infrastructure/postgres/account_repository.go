package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"railsync/internal/domain/account"
)

// AccountRepository implements the account.Repository interface for
// PostgreSQL.
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, consent_id, user_id, institution_id, external_id, iban, name,
	       account_type, owner_name, currency, last_polled_at, created_at, updated_at`

// Create persists a newly discovered account.
func (r *AccountRepository) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO accounts (id, consent_id, user_id, institution_id, external_id, iban, name,
		                      account_type, owner_name, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + accountColumns

	row := r.db.QueryRowContext(
		ctx, query,
		params.ID, params.ConsentID, params.UserID, params.InstitutionID, params.ExternalID,
		nullString(params.IBAN), params.Name, nullString(params.AccountType),
		nullString(params.OwnerName), params.Currency,
	)

	acc, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acc, nil
}

// GetByID retrieves an account by its local ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// FindByExternalID returns the account with the given external ID, or nil.
func (r *AccountRepository) FindByExternalID(ctx context.Context, externalID string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by external ID: %w", err)
	}
	return acc, nil
}

// FindByIBAN returns the account with the given IBAN, or nil.
func (r *AccountRepository) FindByIBAN(ctx context.Context, iban string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE iban = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, iban))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by IBAN: %w", err)
	}
	return acc, nil
}

// ListByConsentID returns all accounts discovered through one consent.
func (r *AccountRepository) ListByConsentID(ctx context.Context, consentID string) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE consent_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, consentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by consent: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// Update refreshes the reconciled fields of an existing account.
func (r *AccountRepository) Update(ctx context.Context, params account.UpdateParams) (*account.Account, error) {
	query := `
		UPDATE accounts
		SET consent_id = $1, external_id = $2, iban = $3, name = $4,
		    account_type = $5, owner_name = $6, currency = $7, updated_at = now()
		WHERE id = $8
		RETURNING ` + accountColumns

	row := r.db.QueryRowContext(
		ctx, query,
		params.ConsentID, params.ExternalID, nullString(params.IBAN), params.Name,
		nullString(params.AccountType), nullString(params.OwnerName), params.Currency,
		params.ID,
	)

	acc, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return acc, nil
}

// SetLastPolledAt records the end of one successful sync.
func (r *AccountRepository) SetLastPolledAt(ctx context.Context, id string, polledAt time.Time) error {
	query := `UPDATE accounts SET last_polled_at = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, polledAt, id); err != nil {
		return fmt.Errorf("failed to set last-polled timestamp: %w", err)
	}
	return nil
}

type accountScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row accountScanner) (*account.Account, error) {
	var acc account.Account
	var iban, accountType, ownerName sql.NullString
	var lastPolledAt sql.NullTime

	err := row.Scan(
		&acc.ID, &acc.ConsentID, &acc.UserID, &acc.InstitutionID, &acc.ExternalID,
		&iban, &acc.Name, &accountType, &ownerName, &acc.Currency,
		&lastPolledAt, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if iban.Valid {
		acc.IBAN = iban.String
	}
	if accountType.Valid {
		acc.AccountType = accountType.String
	}
	if ownerName.Valid {
		acc.OwnerName = ownerName.String
	}
	acc.LastPolledAt = timePtr(lastPolledAt)

	return &acc, nil
}
