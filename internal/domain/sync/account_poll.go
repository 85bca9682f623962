package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"railsync/internal/domain/account"
	"railsync/internal/domain/consent"
	"railsync/internal/domain/event"
	"railsync/internal/domain/transaction"
	railclient "railsync/internal/infrastructure/rail"
)

// AccountPoller reconciles one external account against the local
// ledger: resolves it to a possibly pre-existing account record, then
// incrementally syncs balances and transactions.
type AccountPoller struct {
	consents     *consent.Service
	accounts     account.Repository
	balances     account.BalanceRepository
	transactions transaction.Repository
	client       railclient.ClientInterface
	publisher    event.Publisher
	gracePeriod  time.Duration
	now          func() time.Time
}

// NewAccountPoller creates a new account poller. gracePeriod is the
// minimum interval between successive syncs of the same account.
func NewAccountPoller(
	consents *consent.Service,
	accounts account.Repository,
	balances account.BalanceRepository,
	transactions transaction.Repository,
	client railclient.ClientInterface,
	publisher event.Publisher,
	gracePeriod time.Duration,
) *AccountPoller {
	return &AccountPoller{
		consents:     consents,
		accounts:     accounts,
		balances:     balances,
		transactions: transactions,
		client:       client,
		publisher:    publisher,
		gracePeriod:  gracePeriod,
		now:          time.Now,
	}
}

// SetNow overrides the clock. Used by tests.
func (p *AccountPoller) SetNow(now func() time.Time) {
	p.now = now
}

// Poll runs one account poll for (consentID, externalAccountID).
// Not-found conditions conclude Done as successful no-ops; an external
// account still PROCESSING, or in a status outside the recognized set,
// concludes Retry with no local writes. The poll is deterministic and
// idempotent across retries.
func (p *AccountPoller) Poll(ctx context.Context, consentID, externalAccountID string) (Status, error) {
	c, unlock, err := p.consents.LockConsent(ctx, consentID)
	if err != nil {
		return Done, err
	}
	if c == nil {
		return Done, nil
	}
	defer unlock()

	if c.Status != consent.StatusGiven {
		log.Printf("Consent %s: skipping account poll in status %s", c.ID, c.Status)
		return Done, nil
	}

	// Polling throttle: when the account is already known and was synced
	// within the grace period, the whole poll (including all upstream
	// calls and the account write) is bypassed. Redundant triggers in
	// quick succession land here.
	known, err := p.accounts.FindByExternalID(ctx, externalAccountID)
	if err != nil {
		return Done, fmt.Errorf("failed to look up account %s: %w", externalAccountID, err)
	}
	now := p.now()
	if known != nil && known.LastPolledAt != nil && now.Sub(*known.LastPolledAt) < p.gracePeriod {
		log.Printf("Account %s: polled %s ago, within grace period, skipping", known.ID, now.Sub(*known.LastPolledAt).Round(time.Second))
		return Done, nil
	}

	agreement, err := p.client.GetAgreement(ctx, c.AgreementID)
	if err != nil {
		if errors.Is(err, railclient.ErrNotFound) {
			// Agreement disappeared between enqueue and run.
			log.Printf("Consent %s: agreement %s gone upstream, nothing to sync", c.ID, c.AgreementID)
			return Done, nil
		}
		return Done, fmt.Errorf("failed to fetch agreement %s: %w", c.AgreementID, err)
	}

	switch agreement.Status {
	case railclient.AgreementStatusExpired:
		return Done, p.consents.ConsentExpired(ctx, c.ID)
	case railclient.AgreementStatusSuspended:
		return Done, p.consents.ConsentSuspended(ctx, c.ID)
	}

	detail, err := p.client.GetAccountDetail(ctx, c.AgreementID, externalAccountID)
	if err != nil {
		if errors.Is(err, railclient.ErrNotFound) {
			log.Printf("Consent %s: external account %s not found upstream", c.ID, externalAccountID)
			return Done, nil
		}
		return Done, fmt.Errorf("failed to fetch account detail %s: %w", externalAccountID, err)
	}

	switch detail.Status {
	case railclient.AccountStatusProcessing:
		log.Printf("Account %s: still processing upstream, retrying later", externalAccountID)
		return Retry, nil
	case railclient.AccountStatusError:
		// The provider reports the link itself failed.
		return Done, p.consents.ConsentDeniedByID(ctx, c.ID, detail.ErrorCode, detail.ErrorDetail)
	case railclient.AccountStatusExpired:
		return Done, p.consents.ConsentExpired(ctx, c.ID)
	case railclient.AccountStatusSuspended:
		return Done, p.consents.ConsentSuspended(ctx, c.ID)
	case railclient.AccountStatusReady:
		// Fall through to reconciliation.
	default:
		// Unrecognized statuses are treated as transitional rather than
		// fatal. A permanently misconfigured institution ends up here
		// repeatedly; the runner's retry ceiling bounds the damage.
		log.Printf("Account %s: unrecognized upstream status %q, retrying later", externalAccountID, detail.Status)
		return Retry, nil
	}

	acc, created, err := p.resolveAccount(ctx, c, detail, externalAccountID)
	if err != nil {
		return Done, err
	}
	if created {
		p.publish(ctx, event.Event{
			Type:          event.TypeAccountRegistered,
			ConsentID:     c.ID,
			AccountID:     acc.ID,
			UserID:        c.UserID,
			InstitutionID: c.InstitutionID,
			OccurredAt:    now,
		})
	}

	if err := p.syncBalances(ctx, acc, externalAccountID); err != nil {
		return Done, err
	}

	written, err := p.syncTransactions(ctx, c, acc, externalAccountID, now)
	if err != nil {
		return Done, err
	}

	if err := p.accounts.SetLastPolledAt(ctx, acc.ID, now); err != nil {
		return Done, fmt.Errorf("failed to update last-polled timestamp for account %s: %w", acc.ID, err)
	}

	log.Printf("Account %s: sync complete, %d transactions written", acc.ID, written)
	return Done, nil
}

// resolveAccount maps the fetched detail onto a local account: by
// external ID first, then by IBAN (the external ID may have rotated).
// A match is updated in place and re-linked to this consent; otherwise
// a new account is created. Returns created=true only on first
// discovery.
func (p *AccountPoller) resolveAccount(ctx context.Context, c *consent.Consent, detail *railclient.AccountDetail, externalAccountID string) (*account.Account, bool, error) {
	existing, err := p.accounts.FindByExternalID(ctx, externalAccountID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up account by external ID: %w", err)
	}
	if existing == nil && detail.IBAN != "" {
		existing, err = p.accounts.FindByIBAN(ctx, detail.IBAN)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up account by IBAN: %w", err)
		}
	}

	if existing != nil {
		updated, err := p.accounts.Update(ctx, account.UpdateParams{
			ID:          existing.ID,
			ConsentID:   c.ID,
			ExternalID:  externalAccountID,
			IBAN:        detail.IBAN,
			Name:        detail.Name,
			AccountType: detail.AccountType,
			OwnerName:   detail.OwnerName,
			Currency:    detail.Currency,
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to update account %s: %w", existing.ID, err)
		}
		return updated, false, nil
	}

	created, err := p.accounts.Create(ctx, account.CreateParams{
		ID:            uuid.NewString(),
		ConsentID:     c.ID,
		UserID:        c.UserID,
		InstitutionID: c.InstitutionID,
		ExternalID:    externalAccountID,
		IBAN:          detail.IBAN,
		Name:          detail.Name,
		AccountType:   detail.AccountType,
		OwnerName:     detail.OwnerName,
		Currency:      detail.Currency,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create account for %s: %w", externalAccountID, err)
	}

	log.Printf("Account %s registered for consent %s (external %s)", created.ID, c.ID, externalAccountID)
	return created, true, nil
}

// syncBalances writes every balance reported by the provider as a new
// snapshot row. No de-duplication: each poll is a fresh snapshot.
func (p *AccountPoller) syncBalances(ctx context.Context, acc *account.Account, externalAccountID string) error {
	balances, err := p.client.ListBalances(ctx, externalAccountID)
	if err != nil {
		return fmt.Errorf("failed to fetch balances for account %s: %w", acc.ID, err)
	}

	for i := range balances {
		b := &balances[i]
		amount, err := b.GetAmount()
		if err != nil {
			return err
		}
		refDate, err := b.GetReferenceDate()
		if err != nil {
			return err
		}
		params := account.CreateBalanceParams{
			AccountID:   acc.ID,
			Amount:      amount,
			Currency:    b.Currency,
			BalanceType: b.BalanceType,
		}
		if refDate != nil {
			params.ReferenceDate = *refDate
		}
		if _, err := p.balances.Insert(ctx, params); err != nil {
			return fmt.Errorf("failed to insert balance for account %s: %w", acc.ID, err)
		}
	}

	return nil
}

// syncTransactions fetches the incremental window [start, now] and
// appends the returned transactions. The window starts at the booking
// date-time of the most recent stored transaction, or now minus the
// agreement's max history when none exists. The provider widens the
// window to whole days, so fetched rows booked at or before the stored
// boundary are already present and must be filtered out before the
// insert.
func (p *AccountPoller) syncTransactions(ctx context.Context, c *consent.Consent, acc *account.Account, externalAccountID string, now time.Time) (int, error) {
	boundary, err := p.transactions.LatestBookingTime(ctx, acc.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to determine sync window for account %s: %w", acc.ID, err)
	}

	var from time.Time
	if boundary != nil {
		from = *boundary
	} else {
		from = now.AddDate(0, 0, -c.MaxHistoryDays)
	}

	fetched, err := p.client.ListTransactions(ctx, externalAccountID, from, now)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch transactions for account %s: %w", acc.ID, err)
	}
	if len(fetched) == 0 {
		return 0, nil
	}

	rows := make([]transaction.CreateParams, 0, len(fetched))
	for i := range fetched {
		tx := &fetched[i]
		amount, err := tx.GetAmount()
		if err != nil {
			return 0, err
		}
		bookedAt, err := tx.GetBookingTime()
		if err != nil {
			return 0, err
		}
		if bookedAt == nil {
			return 0, fmt.Errorf("transaction %s has no booking date-time", tx.ID)
		}
		if boundary != nil && !bookedAt.After(*boundary) {
			continue
		}
		valueAt, err := tx.GetValueTime()
		if err != nil {
			return 0, err
		}
		rows = append(rows, transaction.CreateParams{
			AccountID:        acc.ID,
			ExternalID:       tx.ID,
			BookedAt:         *bookedAt,
			ValueAt:          valueAt,
			Amount:           amount,
			Currency:         tx.Currency,
			Description:      tx.Description,
			CounterpartyName: tx.CounterpartyName,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	written, err := p.transactions.InsertBatch(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transactions for account %s: %w", acc.ID, err)
	}
	return written, nil
}

func (p *AccountPoller) publish(ctx context.Context, ev event.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		log.Printf("Failed to publish %s event for account %s: %v", ev.Type, ev.AccountID, err)
	}
}
