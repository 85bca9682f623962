package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"railsync/internal/domain/notification"
)

// NotificationRepository implements the notification.Repository
// interface for PostgreSQL.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new PostgreSQL notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// UpsertDeviceToken registers a device token, reassigning it if it
// already belongs to another user.
func (r *NotificationRepository) UpsertDeviceToken(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error) {
	query := `
		INSERT INTO device_tokens (id, user_id, token, device_type, is_active, last_used)
		VALUES ($1, $2, $3, $4, true, now())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, device_type = EXCLUDED.device_type,
		    is_active = true, last_used = now()
		RETURNING id, user_id, token, device_type, is_active, created_at, last_used
	`

	var t notification.DeviceToken
	err := r.db.QueryRowContext(
		ctx, query,
		uuid.New().String(), params.UserID, params.Token, params.DeviceType,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.DeviceType, &t.IsActive, &t.CreatedAt, &t.LastUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device token: %w", err)
	}
	return &t, nil
}

// GetActiveTokensByUserID returns the active device tokens of one user.
func (r *NotificationRepository) GetActiveTokensByUserID(ctx context.Context, userID int64) ([]*notification.DeviceToken, error) {
	query := `
		SELECT id, user_id, token, device_type, is_active, created_at, last_used
		FROM device_tokens
		WHERE user_id = $1 AND is_active = true
		ORDER BY last_used DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.DeviceType, &t.IsActive, &t.CreatedAt, &t.LastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// DeactivateToken marks a device token inactive.
func (r *NotificationRepository) DeactivateToken(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE device_tokens SET is_active = false WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notification.ErrDeviceTokenNotFound
	}
	return nil
}

// CreateNotification stores a notification record.
func (r *NotificationRepository) CreateNotification(ctx context.Context, params notification.CreateNotificationParams) (*notification.Notification, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	dataJSON, err := json.Marshal(params.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification data: %w", err)
	}

	query := `
		INSERT INTO notifications (id, user_id, title, message, category, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, title, message, category, data, created_at
	`

	return scanNotificationRow(r.db.QueryRowContext(
		ctx, query,
		uuid.New().String(), params.UserID, params.Title, params.Message, params.Category, dataJSON,
	))
}

// ListByUserID returns one page of a user's notifications, newest
// first, plus the total count.
func (r *NotificationRepository) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `
		SELECT id, user_id, title, message, category, data, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n, err := scanNotificationRow(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	return notifications, total, rows.Err()
}

type notificationScanner interface {
	Scan(dest ...any) error
}

func scanNotificationRow(row notificationScanner) (*notification.Notification, error) {
	var n notification.Notification
	var dataJSON []byte

	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Category, &dataJSON, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification data: %w", err)
		}
	}
	return &n, nil
}
