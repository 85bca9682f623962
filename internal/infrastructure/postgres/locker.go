package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"

	"railsync/internal/domain/consent"
)

// lockNamespace partitions our advisory lock keys from any other
// advisory-lock user on the same database.
const lockNamespace = int32(0x5259) // "RY"

// ConsentLocker implements consent.Locker with PostgreSQL session-level
// advisory locks. Each Lock call pins one connection from the pool and
// holds pg_advisory_lock on it until the returned unlock function runs,
// so the lock survives row updates made through other connections and
// is released by the server if the session dies.
type ConsentLocker struct {
	db *DB
}

// NewConsentLocker creates a new advisory-lock based consent locker.
func NewConsentLocker(db *DB) *ConsentLocker {
	return &ConsentLocker{db: db}
}

// Lock blocks until the per-consent lock is acquired, then returns the
// function that releases it.
func (l *ConsentLocker) Lock(ctx context.Context, consentID string) (consent.UnlockFunc, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get lock connection: %w", err)
	}

	key := lockKey(consentID)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1, $2)`, lockNamespace, key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire consent lock: %w", err)
	}

	unlock := func() {
		// Unlock on the same session that took the lock. Background
		// context: the caller's context may already be cancelled and
		// the lock must still be released.
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1, $2)`, lockNamespace, key); err != nil {
			log.Printf("Failed to release consent lock for %s: %v", consentID, err)
		}
		conn.Close()
	}
	return unlock, nil
}

func lockKey(consentID string) int32 {
	h := fnv.New32a()
	h.Write([]byte(consentID))
	return int32(h.Sum32())
}
