// Package consent owns the consent lifecycle state machine.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"railsync/internal/domain/event"
	railclient "railsync/internal/infrastructure/rail"
)

// Service contains the business logic for the consent lifecycle.
type Service struct {
	repo      Repository
	locker    Locker
	client    railclient.ClientInterface
	publisher event.Publisher
	enqueuer  PollEnqueuer
	provider  string
	now       func() time.Time
}

// NewService creates a new consent lifecycle service. provider names the
// rail provider the client talks to and is stamped on every consent.
func NewService(repo Repository, locker Locker, client railclient.ClientInterface, publisher event.Publisher, provider string) *Service {
	return &Service{
		repo:      repo,
		locker:    locker,
		client:    client,
		publisher: publisher,
		provider:  provider,
		now:       time.Now,
	}
}

// SetPollEnqueuer wires the task runner adapter. Set after construction
// because the runner itself depends on this service.
func (s *Service) SetPollEnqueuer(e PollEnqueuer) {
	s.enqueuer = e
}

// SetNow overrides the clock. Used by tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Register creates a new consent for (user, institution). Fails with
// ErrActiveConsentExists when an active consent for the pair already
// exists. On success the consent is persisted in WAITING with a fresh
// opaque reference, a "consent initiated" event is emitted and the
// provider's authorization link is returned.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Registration, error) {
	if params.Provider == "" {
		params.Provider = s.provider
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	existing, err := s.repo.FindActive(ctx, params.UserID, params.InstitutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active consent: %w", err)
	}
	if existing != nil {
		return nil, ErrActiveConsentExists
	}

	reference := uuid.NewString()
	agreement, err := s.client.CreateAgreement(ctx, railclient.CreateAgreementParams{
		InstitutionID: params.InstitutionID,
		Reference:     reference,
		RedirectURI:   params.CallbackURI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream agreement: %w", err)
	}

	expiresAt, err := agreement.GetExpiresAt()
	if err != nil {
		return nil, err
	}

	now := s.now()
	created, err := s.repo.Create(ctx, &Consent{
		ID:             uuid.NewString(),
		Provider:       params.Provider,
		UserID:         params.UserID,
		InstitutionID:  params.InstitutionID,
		AgreementID:    agreement.ID,
		Reference:      reference,
		Status:         StatusWaiting,
		CallbackURI:    params.CallbackURI,
		MaxHistoryDays: agreement.MaxHistoryDays,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist consent: %w", err)
	}

	s.publish(ctx, event.Event{
		Type:          event.TypeConsentInitiated,
		ConsentID:     created.ID,
		UserID:        created.UserID,
		InstitutionID: created.InstitutionID,
		OccurredAt:    now,
	})

	log.Printf("Consent %s registered for user %d at institution %s", created.ID, created.UserID, created.InstitutionID)

	return &Registration{Consent: created, Link: agreement.Link}, nil
}

// ConsentGiven transitions a WAITING consent to GIVEN, looked up by its
// opaque reference (the redirect carries only the reference). Clears the
// callback URI, emits the event and enqueues one consent poll. A consent
// that is not in WAITING is returned unchanged.
func (s *Service) ConsentGiven(ctx context.Context, reference string) (*Consent, error) {
	c, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if c.Status != StatusWaiting {
		log.Printf("Consent %s: ignoring given callback in status %s", c.ID, c.Status)
		return c, nil
	}

	now := s.now()
	c.Status = StatusGiven
	c.GivenAt = &now
	c.CallbackURI = ""

	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to update consent %s: %w", c.ID, err)
	}

	s.publish(ctx, event.Event{
		Type:          event.TypeConsentGiven,
		ConsentID:     updated.ID,
		UserID:        updated.UserID,
		InstitutionID: updated.InstitutionID,
		OccurredAt:    now,
	})

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueConsentPoll(ctx, updated.ID); err != nil {
			log.Printf("Consent %s: failed to enqueue poll: %v", updated.ID, err)
		}
	}

	log.Printf("Consent %s given by user %d", updated.ID, updated.UserID)
	return updated, nil
}

// ConsentDenied transitions a WAITING consent to DENIED, looked up by
// its opaque reference. Clears the callback URI and emits the event.
// A consent that is not in WAITING is returned unchanged.
func (s *Service) ConsentDenied(ctx context.Context, reference, errorCode, errorDetail string) (*Consent, error) {
	c, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if c.Status != StatusWaiting {
		log.Printf("Consent %s: ignoring denied callback in status %s", c.ID, c.Status)
		return c, nil
	}

	return s.deny(ctx, c, errorCode, errorDetail)
}

// ConsentDeniedByID marks a consent as DENIED when the provider reports
// that the account link itself failed. Idempotent: no-op when the
// consent is already in a terminal status.
func (s *Service) ConsentDeniedByID(ctx context.Context, id, errorCode, errorDetail string) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return nil
		}
		return err
	}

	if c.Status.Terminal() {
		return nil
	}

	_, err = s.deny(ctx, c, errorCode, errorDetail)
	return err
}

func (s *Service) deny(ctx context.Context, c *Consent, errorCode, errorDetail string) (*Consent, error) {
	now := s.now()
	c.Status = StatusDenied
	c.DeniedAt = &now
	c.CallbackURI = ""
	c.ErrorCode = errorCode
	c.ErrorDetail = errorDetail

	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to update consent %s: %w", c.ID, err)
	}

	s.publish(ctx, event.Event{
		Type:          event.TypeConsentDenied,
		ConsentID:     updated.ID,
		UserID:        updated.UserID,
		InstitutionID: updated.InstitutionID,
		ErrorCode:     errorCode,
		ErrorDetail:   errorDetail,
		OccurredAt:    now,
	})

	log.Printf("Consent %s denied (code=%s)", updated.ID, errorCode)
	return updated, nil
}

// ConsentSuspended marks a consent as SUSPENDED. Idempotent: no-op when
// the consent is already suspended or terminal.
func (s *Service) ConsentSuspended(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusSuspended, event.TypeConsentSuspended)
}

// ConsentExpired marks a consent as EXPIRED. Idempotent: no-op when the
// consent is already expired or terminal.
func (s *Service) ConsentExpired(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusExpired, event.TypeConsentExpired)
}

// ConsentCancelled marks a consent as CANCELLED on explicit user action.
// Idempotent: no-op when the consent is already cancelled or terminal.
func (s *Service) ConsentCancelled(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusCancelled, event.TypeConsentCancelled)
}

// transition applies an idempotent guard rather than strict state
// machine validation: entering an already-equal or terminal status is
// silently ignored. The upstream agreement delete is best-effort; the
// local transition is authoritative regardless of its outcome.
func (s *Service) transition(ctx context.Context, id string, target Status, evType event.Type) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return nil
		}
		return err
	}

	if c.Status == target || c.Status.Terminal() {
		return nil
	}

	s.deleteUpstream(ctx, c)

	now := s.now()
	c.Status = target
	if target == StatusCancelled {
		c.CancelledAt = &now
	}

	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to update consent %s: %w", c.ID, err)
	}

	s.publish(ctx, event.Event{
		Type:          evType,
		ConsentID:     updated.ID,
		UserID:        updated.UserID,
		InstitutionID: updated.InstitutionID,
		OccurredAt:    now,
	})

	log.Printf("Consent %s transitioned to %s", updated.ID, target)
	return nil
}

// LockConsent acquires the poll-scoped exclusive lock for one consent
// and returns the current row. Returns a nil consent (and no lock) when
// the consent no longer exists.
func (s *Service) LockConsent(ctx context.Context, id string) (*Consent, UnlockFunc, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock consent %s: %w", id, err)
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		unlock()
		if errors.Is(err, ErrConsentNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	return c, unlock, nil
}

// GetByID returns one consent.
func (s *Service) GetByID(ctx context.Context, id string) (*Consent, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByReference returns one consent looked up by its opaque reference.
func (s *Service) GetByReference(ctx context.Context, reference string) (*Consent, error) {
	return s.repo.GetByReference(ctx, reference)
}

// ListByStatus returns all consents in the given status.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*Consent, error) {
	return s.repo.ListByStatus(ctx, status)
}

// DeleteAllConsents removes every consent of one user. Active consents
// get their upstream agreement deleted (best-effort) and a cancellation
// event; the row is deleted regardless of status.
func (s *Service) DeleteAllConsents(ctx context.Context, userID int64) error {
	consents, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list consents for user %d: %w", userID, err)
	}

	for _, c := range consents {
		if c.Status.Active() {
			s.deleteUpstream(ctx, c)
			s.publish(ctx, event.Event{
				Type:          event.TypeConsentCancelled,
				ConsentID:     c.ID,
				UserID:        c.UserID,
				InstitutionID: c.InstitutionID,
				OccurredAt:    s.now(),
			})
		}
		if err := s.repo.Delete(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to delete consent %s: %w", c.ID, err)
		}
	}

	log.Printf("Deleted %d consents for user %d", len(consents), userID)
	return nil
}

// deleteUpstream removes the upstream authorization. Failures are
// swallowed: the local state transition must not be blocked by an
// upstream cleanup failure.
func (s *Service) deleteUpstream(ctx context.Context, c *Consent) {
	if c.AgreementID == "" {
		return
	}
	if err := s.client.DeleteAgreement(ctx, c.AgreementID); err != nil {
		log.Printf("Consent %s: failed to delete upstream agreement %s: %v", c.ID, c.AgreementID, err)
	}
}

// publish emits a lifecycle event. Fire-and-forget: failures are logged
// and otherwise ignored.
func (s *Service) publish(ctx context.Context, ev event.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("Failed to publish %s event for consent %s: %v", ev.Type, ev.ConsentID, err)
	}
}
