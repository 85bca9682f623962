package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"railsync/internal/domain/consent"
)

// ConsentLister returns the consents eligible for polling.
type ConsentLister interface {
	ListByStatus(ctx context.Context, status consent.Status) ([]*consent.Consent, error)
}

// FanoutDriver periodically enumerates all consents in GIVEN and
// enqueues one poll-consent task per consent. No locking at this level:
// duplicate enqueues are safe because the poll tasks are idempotent and
// locking-protected.
type FanoutDriver struct {
	consents ConsentLister
	runner   *Runner
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFanoutDriver creates a fan-out driver with the given scan period.
func NewFanoutDriver(consents ConsentLister, runner *Runner, interval time.Duration) *FanoutDriver {
	return &FanoutDriver{
		consents: consents,
		runner:   runner,
		interval: interval,
	}
}

// Start launches the periodic scan loop.
func (d *FanoutDriver) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go d.loop(ctx)

	log.Printf("Fan-out driver started with %v interval", d.interval)
}

func (d *FanoutDriver) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Run(ctx)
		}
	}
}

// Run performs one fan-out pass. Exposed for the startup run and the
// admin CLI.
func (d *FanoutDriver) Run(ctx context.Context) {
	consents, err := d.consents.ListByStatus(ctx, consent.StatusGiven)
	if err != nil {
		log.Printf("Fan-out: failed to list consents: %v", err)
		return
	}

	enqueued := 0
	for _, c := range consents {
		payload, err := json.Marshal(ConsentPollPayload{ConsentID: c.ID})
		if err != nil {
			log.Printf("Fan-out: failed to encode payload for consent %s: %v", c.ID, err)
			continue
		}
		if err := d.runner.AddTask(ctx, TaskPollConsent, payload); err != nil {
			log.Printf("Fan-out: failed to enqueue poll for consent %s: %v", c.ID, err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		log.Printf("Fan-out: enqueued %d consent polls", enqueued)
	}
}

// Stop halts the scan loop and waits for it to exit.
func (d *FanoutDriver) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	log.Println("Fan-out driver stopped")
}
