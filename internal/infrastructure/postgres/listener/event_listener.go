// Package listener consumes lifecycle events broadcast over pg_notify
// and turns them into user-facing push notifications.
package listener

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"

	"railsync/internal/domain/event"
	"railsync/internal/domain/notification"
)

const (
	channelName       = "railsync_events"
	reconnectInterval = 5 * time.Second
)

// EventListener listens for PostgreSQL notifications carrying consent
// lifecycle events and forwards them to the notification service.
type EventListener struct {
	connStr       string
	notifications *notification.Service
	shutdownCh    chan struct{}
	done          chan struct{}
}

// NewEventListener creates a new listener for lifecycle events.
func NewEventListener(connStr string, notifications *notification.Service) *EventListener {
	return &EventListener{
		connStr:       connStr,
		notifications: notifications,
		shutdownCh:    make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *EventListener) Start(ctx context.Context) {
	go l.listen(ctx)
	log.Println("Lifecycle event listener started")
}

// Stop gracefully shuts down the listener
func (l *EventListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	log.Println("Lifecycle event listener stopped")
}

func (l *EventListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		// Wait before reconnecting
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Println("Reconnecting to PostgreSQL for lifecycle events...")
		}
	}
}

func (l *EventListener) connectAndListen(ctx context.Context) {
	// Create a dedicated listener connection
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("Listener error: %v", err)
		}
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			log.Println("Disconnected from PostgreSQL notification channel")
		case pq.ListenerEventReconnected:
			log.Println("Reconnected to PostgreSQL notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Printf("Connection attempt failed: %v", err)
		}
	})

	defer listener.Close()

	err := listener.Listen(channelName)
	if err != nil {
		log.Printf("Failed to listen on channel %s: %v", channelName, err)
		return
	}

	log.Printf("Listening on channel: %s", channelName)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// Connection lost, break to reconnect
				return
			}
			l.handleNotification(n)
		case <-time.After(90 * time.Second):
			// Ping to keep connection alive
			go func() {
				if err := listener.Ping(); err != nil {
					log.Printf("Listener ping failed: %v", err)
				}
			}()
		}
	}
}

func (l *EventListener) handleNotification(n *pq.Notification) {
	var ev event.Event
	if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
		log.Printf("Failed to parse event payload: %v", err)
		return
	}

	// Use background context since parent ctx may be cancelled during shutdown
	go l.notifyUser(context.Background(), ev)
}

func (l *EventListener) notifyUser(ctx context.Context, ev event.Event) {
	if ev.UserID <= 0 {
		return
	}

	title, body, category := renderEvent(ev)
	if title == "" {
		return
	}

	data := map[string]string{"eventType": string(ev.Type)}
	if ev.ConsentID != "" {
		data["consentId"] = ev.ConsentID
	}
	if ev.AccountID != "" {
		data["accountId"] = ev.AccountID
	}

	if err := l.notifications.SendToUser(ctx, ev.UserID, title, body, category, data); err != nil {
		log.Printf("Failed to notify user %d about %s: %v", ev.UserID, ev.Type, err)
	}
}

// renderEvent maps a lifecycle event to a user-facing message. Events
// with no user-facing meaning return an empty title and are dropped.
func renderEvent(ev event.Event) (title, body, category string) {
	switch ev.Type {
	case event.TypeConsentGiven:
		return "Bank connected", "Your bank connection is active and syncing.", notification.CategoryConsents
	case event.TypeConsentDenied:
		body := "The bank connection was not authorized."
		if ev.ErrorDetail != "" {
			body = ev.ErrorDetail
		}
		return "Connection failed", body, notification.CategoryConsents
	case event.TypeConsentExpired:
		return "Connection expired", "Your bank connection has expired. Reconnect to keep syncing.", notification.CategoryConsents
	case event.TypeConsentSuspended:
		return "Connection paused", "Your bank paused this connection. It may need to be renewed.", notification.CategoryConsents
	case event.TypeAccountRegistered:
		return "Account discovered", "A new bank account was added to your profile.", notification.CategoryAccounts
	default:
		return "", "", ""
	}
}
