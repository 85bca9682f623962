// Package account holds the local projections of external bank
// accounts and their balance snapshots.
package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("account not found")
)

// Account is the local projection of one external bank account, owned
// by the consent that discovered it. UserID and InstitutionID are
// denormalized for query convenience.
type Account struct {
	ID            string     `json:"id"`
	ConsentID     string     `json:"consentId"`
	UserID        int64      `json:"userId"`
	InstitutionID string     `json:"institutionId"`
	ExternalID    string     `json:"externalId"`
	IBAN          string     `json:"iban,omitempty"`
	Name          string     `json:"name"`
	AccountType   string     `json:"accountType,omitempty"`
	OwnerName     string     `json:"ownerName,omitempty"`
	Currency      string     `json:"currency"`
	LastPolledAt  *time.Time `json:"lastPolledAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// CreateParams contains the fields for a newly discovered account.
type CreateParams struct {
	ID            string
	ConsentID     string
	UserID        int64
	InstitutionID string
	ExternalID    string
	IBAN          string
	Name          string
	AccountType   string
	OwnerName     string
	Currency      string
}

// Validate validates the create parameters.
func (p CreateParams) Validate() error {
	if p.ID == "" {
		return errors.New("account ID is required")
	}
	if p.ConsentID == "" {
		return errors.New("consent ID is required")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.ExternalID == "" {
		return errors.New("external account ID is required")
	}
	return nil
}

// UpdateParams contains the fields refreshed on every reconciliation of
// an existing account, including the consent re-link.
type UpdateParams struct {
	ID          string
	ConsentID   string
	ExternalID  string
	IBAN        string
	Name        string
	AccountType string
	OwnerName   string
	Currency    string
}

// Balance is a point-in-time value scoped to one account. Multiple
// balance types coexist for the same reference date. Immutable once
// written; new polls add new rows.
type Balance struct {
	ID            int64           `json:"id"`
	AccountID     string          `json:"accountId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BalanceType   string          `json:"balanceType"`
	ReferenceDate time.Time       `json:"referenceDate"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// CreateBalanceParams contains the fields for one balance snapshot row.
type CreateBalanceParams struct {
	AccountID     string
	Amount        decimal.Decimal
	Currency      string
	BalanceType   string
	ReferenceDate time.Time
}
