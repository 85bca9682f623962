// Package event defines the lifecycle events emitted by the sync core
// and the fire-and-forget publish seam consumed by downstream
// subsystems (notifications, categorization).
package event

import (
	"context"
	"time"
)

// Type identifies one kind of lifecycle event.
type Type string

const (
	TypeConsentInitiated  Type = "consent.initiated"
	TypeConsentGiven      Type = "consent.given"
	TypeConsentDenied     Type = "consent.denied"
	TypeConsentSuspended  Type = "consent.suspended"
	TypeConsentExpired    Type = "consent.expired"
	TypeConsentCancelled  Type = "consent.cancelled"
	TypeAccountRegistered Type = "account.registered"
)

// Event is the payload published on the bus. Delivery is at-least-once;
// ordering across event types for the same consent is not guaranteed.
type Event struct {
	Type          Type      `json:"type"`
	ConsentID     string    `json:"consentId,omitempty"`
	AccountID     string    `json:"accountId,omitempty"`
	UserID        int64     `json:"userId"`
	InstitutionID string    `json:"institutionId,omitempty"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	ErrorDetail   string    `json:"errorDetail,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher is the abstract publish capability. Implementations must not
// block the caller's state transition on delivery problems; publish
// failures are logged by the caller and otherwise ignored.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
