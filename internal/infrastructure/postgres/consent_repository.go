package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"railsync/internal/domain/consent"
)

// ConsentRepository implements the consent.Repository interface for
// PostgreSQL.
type ConsentRepository struct {
	db *DB
}

// NewConsentRepository creates a new PostgreSQL consent repository.
func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `id, provider, user_id, institution_id, agreement_id, reference, status,
	       callback_uri, max_history_days, expires_at, error_code, error_detail,
	       created_at, given_at, denied_at, cancelled_at, version`

// Create persists a new consent.
func (r *ConsentRepository) Create(ctx context.Context, c *consent.Consent) (*consent.Consent, error) {
	query := `
		INSERT INTO consents (id, provider, user_id, institution_id, agreement_id, reference, status,
		                      callback_uri, max_history_days, expires_at, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		RETURNING ` + consentColumns

	row := r.db.QueryRowContext(
		ctx, query,
		c.ID, c.Provider, c.UserID, c.InstitutionID, c.AgreementID, c.Reference, c.Status,
		nullString(c.CallbackURI), c.MaxHistoryDays, nullTime(c.ExpiresAt), c.CreatedAt,
	)

	created, err := scanConsent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create consent: %w", err)
	}
	return created, nil
}

// GetByID retrieves a consent by its ID.
func (r *ConsentRepository) GetByID(ctx context.Context, id string) (*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE id = $1`

	c, err := scanConsent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, consent.ErrConsentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return c, nil
}

// GetByReference retrieves a consent by its opaque reference.
func (r *ConsentRepository) GetByReference(ctx context.Context, reference string) (*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE reference = $1`

	c, err := scanConsent(r.db.QueryRowContext(ctx, query, reference))
	if err == sql.ErrNoRows {
		return nil, consent.ErrConsentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent by reference: %w", err)
	}
	return c, nil
}

// FindActive returns the active consent for (user, institution), or nil.
func (r *ConsentRepository) FindActive(ctx context.Context, userID int64, institutionID string) (*consent.Consent, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE user_id = $1 AND institution_id = $2
		  AND status IN ('INITIATED', 'WAITING', 'GIVEN', 'SUSPENDED')
		LIMIT 1`

	c, err := scanConsent(r.db.QueryRowContext(ctx, query, userID, institutionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active consent: %w", err)
	}
	return c, nil
}

// ListByStatus returns all consents in the given status.
func (r *ConsentRepository) ListByStatus(ctx context.Context, status consent.Status) ([]*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents by status: %w", err)
	}
	defer rows.Close()

	return collectConsents(rows)
}

// ListByUserID returns all consents of one user.
func (r *ConsentRepository) ListByUserID(ctx context.Context, userID int64) ([]*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents by user: %w", err)
	}
	defer rows.Close()

	return collectConsents(rows)
}

// Update persists changed fields, guarded by the optimistic version.
func (r *ConsentRepository) Update(ctx context.Context, c *consent.Consent) (*consent.Consent, error) {
	query := `
		UPDATE consents
		SET status = $1, callback_uri = $2, error_code = $3, error_detail = $4,
		    given_at = $5, denied_at = $6, cancelled_at = $7, expires_at = $8,
		    max_history_days = $9, version = version + 1
		WHERE id = $10 AND version = $11
		RETURNING ` + consentColumns

	row := r.db.QueryRowContext(
		ctx, query,
		c.Status, nullString(c.CallbackURI), nullString(c.ErrorCode), nullString(c.ErrorDetail),
		nullTime(c.GivenAt), nullTime(c.DeniedAt), nullTime(c.CancelledAt), nullTime(c.ExpiresAt),
		c.MaxHistoryDays,
		c.ID, c.Version,
	)

	updated, err := scanConsent(row)
	if err == sql.ErrNoRows {
		// Either the row is gone or the version moved underneath us.
		if _, getErr := r.GetByID(ctx, c.ID); getErr != nil {
			return nil, getErr
		}
		return nil, consent.ErrVersionMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update consent: %w", err)
	}
	return updated, nil
}

// Delete removes a consent row.
func (r *ConsentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM consents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete consent: %w", err)
	}
	return nil
}

type consentScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row consentScanner) (*consent.Consent, error) {
	var c consent.Consent
	var callbackURI, errorCode, errorDetail sql.NullString
	var expiresAt, givenAt, deniedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.Provider, &c.UserID, &c.InstitutionID, &c.AgreementID, &c.Reference, &c.Status,
		&callbackURI, &c.MaxHistoryDays, &expiresAt, &errorCode, &errorDetail,
		&c.CreatedAt, &givenAt, &deniedAt, &cancelledAt, &c.Version,
	)
	if err != nil {
		return nil, err
	}

	if callbackURI.Valid {
		c.CallbackURI = callbackURI.String
	}
	if errorCode.Valid {
		c.ErrorCode = errorCode.String
	}
	if errorDetail.Valid {
		c.ErrorDetail = errorDetail.String
	}
	c.ExpiresAt = timePtr(expiresAt)
	c.GivenAt = timePtr(givenAt)
	c.DeniedAt = timePtr(deniedAt)
	c.CancelledAt = timePtr(cancelledAt)

	return &c, nil
}

func collectConsents(rows *sql.Rows) ([]*consent.Consent, error) {
	var consents []*consent.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		consents = append(consents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return consents, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
