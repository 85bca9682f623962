package transaction

import (
	"context"
	"time"
)

// Repository defines the interface for transaction data access.
type Repository interface {
	// InsertBatch appends the given transactions and returns the number
	// of rows written. Transactions are immutable; de-duplication against
	// existing rows is the caller's concern via the fetch window.
	InsertBatch(ctx context.Context, txs []CreateParams) (int, error)

	// LatestBookingTime returns the booking date-time of the most recent
	// stored transaction of an account, or nil when none exists.
	LatestBookingTime(ctx context.Context, accountID string) (*time.Time, error)

	// ListByAccountID returns transactions of an account ordered by
	// booking date-time descending, paged by limit/offset.
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error)
}
