// Package transaction holds the immutable financial movements stored
// per account.
package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable financial movement scoped to one account,
// keyed by the provider-assigned transaction ID plus booking date-time.
// Never updated after insert.
type Transaction struct {
	ID               int64           `json:"id"`
	AccountID        string          `json:"accountId"`
	ExternalID       string          `json:"externalId"`
	BookedAt         time.Time       `json:"bookedAt"`
	ValueAt          *time.Time      `json:"valueAt,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description,omitempty"`
	CounterpartyName string          `json:"counterpartyName,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// CreateParams contains the fields for one new transaction row.
type CreateParams struct {
	AccountID        string
	ExternalID       string
	BookedAt         time.Time
	ValueAt          *time.Time
	Amount           decimal.Decimal
	Currency         string
	Description      string
	CounterpartyName string
}

// Validate validates the create parameters.
func (p CreateParams) Validate() error {
	if p.AccountID == "" {
		return errors.New("account ID is required")
	}
	if p.ExternalID == "" {
		return errors.New("external transaction ID is required")
	}
	if p.BookedAt.IsZero() {
		return errors.New("booking date-time is required")
	}
	return nil
}
