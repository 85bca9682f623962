package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"railsync/internal/domain/consent"
	"railsync/internal/domain/sync"
	"railsync/internal/infrastructure/postgres"
	"railsync/internal/infrastructure/rail"
	"railsync/internal/shared/config"
)

const usage = `Railsync Admin CLI - Management commands for the Railsync API

Usage:
  admin <command> [options]

Commands:
  fanout           Enumerate all GIVEN consents and poll each one synchronously
  poll-consent     Poll a single consent (and its accounts) synchronously
  delete-consents  Delete every consent of one user

Examples:
  # Poll all active consents now instead of waiting for the next cycle
  admin fanout

  # Re-poll one consent after an upstream incident
  admin poll-consent --id=3f8a...

  # Remove a user's consents on account deletion
  admin delete-consents --user-id=42

  # Run with a custom timeout
  admin fanout --timeout=30m`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "fanout":
		runFanout(os.Args[2:])
	case "poll-consent":
		runPollConsent(os.Args[2:])
	case "delete-consents":
		runDeleteConsents(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// adminDeps is the minimal synchronous wiring the admin commands need:
// no runner, no listener, account polls run inline.
type adminDeps struct {
	db             *postgres.DB
	consentService *consent.Service
	consentPoller  *sync.ConsentPoller
	accountPoller  *sync.AccountPoller
}

// inlineEnqueuer runs account polls synchronously instead of handing
// them to a task runner.
type inlineEnqueuer struct {
	poller *sync.AccountPoller
}

func (e *inlineEnqueuer) EnqueueAccountPoll(ctx context.Context, consentID, externalAccountID string) error {
	status, err := e.poller.Poll(ctx, consentID, externalAccountID)
	if err != nil {
		return err
	}
	if status == sync.Retry {
		log.Printf("Account %s: upstream not ready, skipping (re-run later)", externalAccountID)
	}
	return nil
}

func setup() (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	consentRepo := postgres.NewConsentRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	balanceRepo := postgres.NewBalanceRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	locker := postgres.NewConsentLocker(db)
	eventBus := postgres.NewEventBus(db)

	railClient := rail.NewClient(cfg.Rail.BaseURL, cfg.Rail.Token)
	consentService := consent.NewService(consentRepo, locker, railClient, eventBus, cfg.Rail.Provider)

	accountPoller := sync.NewAccountPoller(consentService, accountRepo, balanceRepo, transactionRepo, railClient, eventBus, cfg.Sync.GracePeriod)
	consentPoller := sync.NewConsentPoller(consentService, railClient, &inlineEnqueuer{poller: accountPoller})

	return &adminDeps{
		db:             db,
		consentService: consentService,
		consentPoller:  consentPoller,
		accountPoller:  accountPoller,
	}, nil
}

func runFanout(args []string) {
	fs := flag.NewFlagSet("fanout", flag.ExitOnError)
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")
	fs.Parse(args)

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout: %v", err)
	}

	deps, err := setup()
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer deps.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	consents, err := deps.consentService.ListByStatus(ctx, consent.StatusGiven)
	if err != nil {
		log.Fatalf("Failed to list consents: %v", err)
	}

	log.Printf("Polling %d consents", len(consents))
	failed := 0
	for _, c := range consents {
		if _, err := deps.consentPoller.Poll(ctx, c.ID); err != nil {
			log.Printf("Consent %s: poll failed: %v", c.ID, err)
			failed++
		}
	}

	log.Printf("Fanout complete: %d consents, %d failed", len(consents), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func runPollConsent(args []string) {
	fs := flag.NewFlagSet("poll-consent", flag.ExitOnError)
	id := fs.String("id", "", "Consent ID to poll")
	timeoutStr := fs.String("timeout", "10m", "Timeout for the operation (e.g., 5m, 1h)")
	fs.Parse(args)

	if *id == "" {
		log.Fatal("--id is required")
	}
	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout: %v", err)
	}

	deps, err := setup()
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer deps.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	status, err := deps.consentPoller.Poll(ctx, *id)
	if err != nil {
		log.Fatalf("Poll failed: %v", err)
	}
	if status == sync.Retry {
		log.Printf("Consent %s: upstream not ready, re-run later", *id)
		os.Exit(2)
	}
	log.Printf("Consent %s: poll complete", *id)
}

func runDeleteConsents(args []string) {
	fs := flag.NewFlagSet("delete-consents", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "User whose consents should be deleted")
	timeoutStr := fs.String("timeout", "5m", "Timeout for the operation (e.g., 5m, 1h)")
	fs.Parse(args)

	if *userID <= 0 {
		log.Fatal("--user-id is required")
	}
	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout: %v", err)
	}

	deps, err := setup()
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer deps.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := deps.consentService.DeleteAllConsents(ctx, *userID); err != nil {
		log.Fatalf("Failed to delete consents: %v", err)
	}
	log.Printf("Deleted all consents for user %d", *userID)
}
