// Package sync implements the consent and account poll logic: tracking
// an upstream agreement through its lifecycle and reconciling external
// accounts, balances and transactions into the local ledger.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"railsync/internal/domain/consent"
	railclient "railsync/internal/infrastructure/rail"
)

// Status is the conclusion of one poll. The task layer maps it to the
// runner's outcome: Done is never retried, Retry is re-enqueued with
// backoff.
type Status int

const (
	// Done means the poll concluded; no retry, even when no useful work
	// was done.
	Done Status = iota
	// Retry means a transient upstream condition; the runner should
	// re-enqueue with backoff.
	Retry
)

// TaskEnqueuer fans one account poll task out per externally linked
// account. Implemented by the task runner layer.
type TaskEnqueuer interface {
	EnqueueAccountPoll(ctx context.Context, consentID, externalAccountID string) error
}

// ConsentPoller re-validates the upstream agreement of one consent and
// fans out account polls when the agreement is linked.
type ConsentPoller struct {
	consents *consent.Service
	client   railclient.ClientInterface
	enqueuer TaskEnqueuer
}

// NewConsentPoller creates a new consent poller.
func NewConsentPoller(consents *consent.Service, client railclient.ClientInterface, enqueuer TaskEnqueuer) *ConsentPoller {
	return &ConsentPoller{
		consents: consents,
		client:   client,
		enqueuer: enqueuer,
	}
}

// Poll runs one consent poll. Absent or non-GIVEN consents conclude
// Done without contacting the provider. An agreement the provider does
// not know yet concludes Retry (the upstream side may still be
// materializing it). Expired or suspended agreements transition the
// consent and conclude Done without polling accounts.
func (p *ConsentPoller) Poll(ctx context.Context, consentID string) (Status, error) {
	c, unlock, err := p.consents.LockConsent(ctx, consentID)
	if err != nil {
		return Done, err
	}
	if c == nil {
		// Deleted concurrently; nothing to do.
		return Done, nil
	}
	defer unlock()

	if c.Status != consent.StatusGiven {
		log.Printf("Consent %s: skipping poll in status %s", c.ID, c.Status)
		return Done, nil
	}

	agreement, err := p.client.GetAgreement(ctx, c.AgreementID)
	if err != nil {
		if errors.Is(err, railclient.ErrNotFound) {
			log.Printf("Consent %s: agreement %s not found upstream yet, retrying later", c.ID, c.AgreementID)
			return Retry, nil
		}
		return Done, fmt.Errorf("failed to fetch agreement %s: %w", c.AgreementID, err)
	}

	switch agreement.Status {
	case railclient.AgreementStatusExpired:
		return Done, p.consents.ConsentExpired(ctx, c.ID)
	case railclient.AgreementStatusSuspended:
		return Done, p.consents.ConsentSuspended(ctx, c.ID)
	case railclient.AgreementStatusLinked:
		// Fall through to the account fan-out below.
	default:
		// Transitional upstream states are not yet actionable.
		log.Printf("Consent %s: agreement in status %s, nothing to poll", c.ID, agreement.Status)
		return Done, nil
	}

	for _, externalAccountID := range agreement.AccountIDs {
		if err := p.enqueuer.EnqueueAccountPoll(ctx, c.ID, externalAccountID); err != nil {
			return Done, fmt.Errorf("failed to enqueue account poll for %s: %w", externalAccountID, err)
		}
	}

	log.Printf("Consent %s: fanned out %d account polls", c.ID, len(agreement.AccountIDs))
	return Done, nil
}
