package account

import (
	"context"
	"time"
)

// Repository defines the interface for account data access.
// This interface is defined in the domain layer, but implemented in the
// infrastructure layer.
type Repository interface {
	// Create persists a newly discovered account.
	Create(ctx context.Context, params CreateParams) (*Account, error)

	// GetByID retrieves an account by its local ID. Returns
	// ErrAccountNotFound when no row exists.
	GetByID(ctx context.Context, id string) (*Account, error)

	// FindByExternalID returns the account with the given external (rail)
	// account ID, or nil when there is none.
	FindByExternalID(ctx context.Context, externalID string) (*Account, error)

	// FindByIBAN returns the account with the given IBAN, or nil when
	// there is none. Used to reconcile accounts whose external ID rotated.
	FindByIBAN(ctx context.Context, iban string) (*Account, error)

	// ListByConsentID returns all accounts discovered through one consent.
	ListByConsentID(ctx context.Context, consentID string) ([]*Account, error)

	// Update refreshes the reconciled fields of an existing account.
	Update(ctx context.Context, params UpdateParams) (*Account, error)

	// SetLastPolledAt records the end of one successful sync.
	SetLastPolledAt(ctx context.Context, id string, polledAt time.Time) error
}

// BalanceRepository defines the interface for balance snapshot access.
type BalanceRepository interface {
	// Insert appends one balance snapshot row. Snapshots are never
	// updated or de-duplicated.
	Insert(ctx context.Context, params CreateBalanceParams) (*Balance, error)

	// LatestByAccountID returns the most recent balance snapshot of an
	// account, or nil when none exists.
	LatestByAccountID(ctx context.Context, accountID string) (*Balance, error)
}
