package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"railsync/internal/domain/event"
)

// EventChannel is the pg_notify channel lifecycle events are published
// on. Listeners in any process attached to the same database receive
// them.
const EventChannel = "railsync_events"

// EventBus implements event.Publisher by broadcasting JSON-encoded
// events over pg_notify. Delivery is at-most-once and fire-and-forget.
type EventBus struct {
	db *DB
}

// NewEventBus creates a new pg_notify event publisher.
func NewEventBus(db *DB) *EventBus {
	return &EventBus{db: db}
}

// Publish broadcasts one event on the shared channel.
func (b *EventBus) Publish(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if _, err := b.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, EventChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
