package consent

import "context"

// Repository defines the interface for consent data access.
// This interface is defined in the domain layer, but implemented in the
// infrastructure layer.
type Repository interface {
	// Create persists a new consent.
	Create(ctx context.Context, c *Consent) (*Consent, error)

	// GetByID retrieves a consent by its ID. Returns ErrConsentNotFound
	// when no row exists.
	GetByID(ctx context.Context, id string) (*Consent, error)

	// GetByReference retrieves a consent by its opaque reference.
	// Returns ErrConsentNotFound when no row exists.
	GetByReference(ctx context.Context, reference string) (*Consent, error)

	// FindActive returns the consent for (user, institution) that is in
	// an active status, or nil when there is none.
	FindActive(ctx context.Context, userID int64, institutionID string) (*Consent, error)

	// ListByStatus returns all consents in the given status.
	ListByStatus(ctx context.Context, status Status) ([]*Consent, error)

	// ListByUserID returns all consents of one user, regardless of status.
	ListByUserID(ctx context.Context, userID int64) ([]*Consent, error)

	// Update persists changed fields. The update is rejected with
	// ErrVersionMismatch when c.Version no longer matches the stored row;
	// on success the returned consent carries the bumped version.
	Update(ctx context.Context, c *Consent) (*Consent, error)

	// Delete removes a consent row.
	Delete(ctx context.Context, id string) error
}

// UnlockFunc releases a consent lock. Safe to call exactly once.
type UnlockFunc func()

// Locker serializes poll tasks for the same consent. Lock blocks until
// the lock for id is available and returns the release function.
type Locker interface {
	Lock(ctx context.Context, id string) (UnlockFunc, error)
}

// PollEnqueuer enqueues a consent poll task after a consent transitions
// to GIVEN. Implemented by the task runner layer.
type PollEnqueuer interface {
	EnqueueConsentPoll(ctx context.Context, consentID string) error
}
