package rail

import (
	"context"
	"time"
)

// ClientInterface defines the contract for rail provider API operations.
// This allows for mocking in tests and alternative provider implementations.
type ClientInterface interface {
	// CreateAgreement registers a new end-user agreement upstream and
	// returns it together with the authorization link.
	CreateAgreement(ctx context.Context, params CreateAgreementParams) (*Agreement, error)

	// GetAgreement fetches an agreement by its upstream ID.
	// Returns ErrNotFound when the provider does not know the agreement.
	GetAgreement(ctx context.Context, agreementID string) (*Agreement, error)

	// DeleteAgreement removes the upstream authorization. Best-effort:
	// callers are expected to ignore failures.
	DeleteAgreement(ctx context.Context, agreementID string) error

	// GetAccountDetail fetches the metadata of one external account
	// linked through an agreement. Returns ErrNotFound when the provider
	// does not know the account.
	GetAccountDetail(ctx context.Context, agreementID, externalAccountID string) (*AccountDetail, error)

	// ListBalances fetches all current balances of an external account.
	ListBalances(ctx context.Context, externalAccountID string) ([]Balance, error)

	// ListTransactions fetches the transactions of an external account
	// booked in [from, to].
	ListTransactions(ctx context.Context, externalAccountID string, from, to time.Time) ([]Transaction, error)
}
