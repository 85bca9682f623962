package consent

import (
	"errors"
	"time"
)

// Status is the lifecycle status of a consent.
//
// State machine: INITIATED → WAITING → {GIVEN, DENIED};
// GIVEN → {SUSPENDED, EXPIRED}; any non-terminal status → CANCELLED via
// explicit user action. DENIED, EXPIRED and CANCELLED are terminal and
// never re-entered.
type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusWaiting   Status = "WAITING"
	StatusGiven     Status = "GIVEN"
	StatusDenied    Status = "DENIED"
	StatusExpired   Status = "EXPIRED"
	StatusSuspended Status = "SUSPENDED"
	StatusCancelled Status = "CANCELLED"
)

// Active reports whether the status counts against the
// one-active-consent-per-(user, institution) rule.
func (s Status) Active() bool {
	switch s {
	case StatusInitiated, StatusWaiting, StatusGiven, StatusSuspended:
		return true
	}
	return false
}

// Terminal reports whether the status can never be left again.
func (s Status) Terminal() bool {
	switch s {
	case StatusDenied, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Domain errors
var (
	ErrConsentNotFound     = errors.New("consent not found")
	ErrActiveConsentExists = errors.New("an active consent already exists for this user and institution")
	ErrVersionMismatch     = errors.New("consent was modified concurrently")
	ErrInvalidInput        = errors.New("invalid input")
)

// Consent is one authorization grant by one user to one institution via
// one rail provider. The upstream provider's representation of it is the
// agreement, referenced by AgreementID.
type Consent struct {
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	UserID         int64      `json:"userId"`
	InstitutionID  string     `json:"institutionId"`
	AgreementID    string     `json:"agreementId"`
	Reference      string     `json:"reference"`
	Status         Status     `json:"status"`
	CallbackURI    string     `json:"callbackUri,omitempty"`
	MaxHistoryDays int        `json:"maxHistoryDays"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	ErrorCode      string     `json:"errorCode,omitempty"`
	ErrorDetail    string     `json:"errorDetail,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	GivenAt        *time.Time `json:"givenAt,omitempty"`
	DeniedAt       *time.Time `json:"deniedAt,omitempty"`
	CancelledAt    *time.Time `json:"cancelledAt,omitempty"`

	// Version is bumped on every update; repository updates are rejected
	// on mismatch.
	Version int64 `json:"-"`
}

// RegisterParams contains the caller-supplied fields for a new consent.
type RegisterParams struct {
	Provider      string
	UserID        int64
	InstitutionID string
	CallbackURI   string
}

// Validate validates the register parameters.
func (p RegisterParams) Validate() error {
	if p.Provider == "" {
		return errors.New("provider is required")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.InstitutionID == "" {
		return errors.New("institution ID is required")
	}
	if p.CallbackURI == "" {
		return errors.New("callback URI is required")
	}
	return nil
}

// Registration is the result of registering a consent: the persisted
// record plus the provider's authorization link the user must visit.
type Registration struct {
	Consent *Consent `json:"consent"`
	Link    string   `json:"link"`
}
