package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"railsync/internal/domain/sync"
)

// Stable task names. These identify payload schemas in the durable
// queue and must not change across releases.
const (
	TaskPollConsent = "poll-consent"
	TaskPollAccount = "poll-account"
)

// ConsentPollPayload is the payload of a poll-consent task.
type ConsentPollPayload struct {
	ConsentID string `json:"consentId"`
}

// AccountPollPayload is the payload of a poll-account task.
type AccountPollPayload struct {
	ConsentID         string `json:"consentId"`
	ExternalAccountID string `json:"externalAccountId"`
}

// ConsentPollTask adapts the consent poller to the runner contract.
type ConsentPollTask struct {
	poller *sync.ConsentPoller
}

// NewConsentPollTask creates the poll-consent task handler.
func NewConsentPollTask(poller *sync.ConsentPoller) *ConsentPollTask {
	return &ConsentPollTask{poller: poller}
}

func (t *ConsentPollTask) Name() string { return TaskPollConsent }

func (t *ConsentPollTask) Execute(ctx context.Context, payload []byte) (Outcome, error) {
	var p ConsentPollPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return OutcomeFatal, fmt.Errorf("invalid %s payload: %w", TaskPollConsent, err)
	}
	if p.ConsentID == "" {
		return OutcomeFatal, fmt.Errorf("%s payload has no consent ID", TaskPollConsent)
	}

	status, err := t.poller.Poll(ctx, p.ConsentID)
	if err != nil {
		return OutcomeFatal, err
	}
	return outcomeFor(status), nil
}

// AccountPollTask adapts the account poller to the runner contract.
type AccountPollTask struct {
	poller *sync.AccountPoller
}

// NewAccountPollTask creates the poll-account task handler.
func NewAccountPollTask(poller *sync.AccountPoller) *AccountPollTask {
	return &AccountPollTask{poller: poller}
}

func (t *AccountPollTask) Name() string { return TaskPollAccount }

func (t *AccountPollTask) Execute(ctx context.Context, payload []byte) (Outcome, error) {
	var p AccountPollPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return OutcomeFatal, fmt.Errorf("invalid %s payload: %w", TaskPollAccount, err)
	}
	if p.ConsentID == "" || p.ExternalAccountID == "" {
		return OutcomeFatal, fmt.Errorf("%s payload is missing identifiers", TaskPollAccount)
	}

	status, err := t.poller.Poll(ctx, p.ConsentID, p.ExternalAccountID)
	if err != nil {
		return OutcomeFatal, err
	}
	return outcomeFor(status), nil
}

func outcomeFor(status sync.Status) Outcome {
	if status == sync.Retry {
		return OutcomeIncomplete
	}
	return OutcomeComplete
}

// Enqueuer bridges the domain layer's enqueue seams onto the runner.
// Consent polls triggered by a one-shot redirect callback go through
// the durable queue; account fan-out inside a retryable poll uses the
// adhoc path.
type Enqueuer struct {
	runner *Runner
}

// NewEnqueuer creates the enqueuer adapter.
func NewEnqueuer(runner *Runner) *Enqueuer {
	return &Enqueuer{runner: runner}
}

// EnqueueConsentPoll implements consent.PollEnqueuer.
func (e *Enqueuer) EnqueueConsentPoll(ctx context.Context, consentID string) error {
	payload, err := json.Marshal(ConsentPollPayload{ConsentID: consentID})
	if err != nil {
		return err
	}
	return e.runner.AddJob(ctx, TaskPollConsent, payload)
}

// EnqueueAccountPoll implements sync.TaskEnqueuer.
func (e *Enqueuer) EnqueueAccountPoll(ctx context.Context, consentID, externalAccountID string) error {
	payload, err := json.Marshal(AccountPollPayload{ConsentID: consentID, ExternalAccountID: externalAccountID})
	if err != nil {
		return err
	}
	return e.runner.AddTask(ctx, TaskPollAccount, payload)
}
