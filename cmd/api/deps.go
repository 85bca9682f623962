package main

import (
	"context"
	"log"

	"railsync/internal/domain/consent"
	"railsync/internal/domain/notification"
	"railsync/internal/domain/sync"
	"railsync/internal/infrastructure/firebase"
	"railsync/internal/infrastructure/postgres"
	"railsync/internal/infrastructure/postgres/listener"
	"railsync/internal/infrastructure/rail"
	httphandlers "railsync/internal/interfaces/http"
	"railsync/internal/interfaces/scheduler"
	"railsync/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	ConsentHandler      *httphandlers.ConsentHandler
	AccountHandler      *httphandlers.AccountHandler
	NotificationHandler *httphandlers.NotificationHandler

	// Background workers
	Runner   *scheduler.Runner
	Fanout   *scheduler.FanoutDriver
	Listener *listener.EventListener
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	// Initialize repositories
	consentRepo := postgres.NewConsentRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	balanceRepo := postgres.NewBalanceRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	jobRepo := postgres.NewJobRepository(db)
	locker := postgres.NewConsentLocker(db)
	eventBus := postgres.NewEventBus(db)

	// Initialize rail client
	railClient := rail.NewClient(cfg.Rail.BaseURL, cfg.Rail.Token)

	// Initialize domain services
	consentService := consent.NewService(consentRepo, locker, railClient, eventBus, cfg.Rail.Provider)

	// Initialize notification service, with FCM when configured
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcmClient, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, notificationRepo.DeactivateToken)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase client: %v", err)
		} else {
			messenger = fcmClient
		}
	}
	notificationService := notification.NewService(notificationRepo, messenger)

	// Initialize the task runner and pollers
	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		WorkerCount: cfg.Runner.WorkerCount,
		QueueSize:   cfg.Runner.QueueSize,
		BackoffBase: cfg.Runner.BackoffBase,
		BackoffMax:  cfg.Runner.BackoffMax,
		MaxAttempts: cfg.Runner.MaxAttempts,
		ClaimPeriod: cfg.Runner.ClaimPeriod,
		ClaimBatch:  cfg.Runner.ClaimBatch,
		TaskTimeout: cfg.Runner.TaskTimeout,
	}, jobRepo)

	enqueuer := scheduler.NewEnqueuer(runner)
	consentService.SetPollEnqueuer(enqueuer)

	consentPoller := sync.NewConsentPoller(consentService, railClient, enqueuer)
	accountPoller := sync.NewAccountPoller(consentService, accountRepo, balanceRepo, transactionRepo, railClient, eventBus, cfg.Sync.GracePeriod)

	runner.Register(scheduler.NewConsentPollTask(consentPoller))
	runner.Register(scheduler.NewAccountPollTask(accountPoller))

	fanout := scheduler.NewFanoutDriver(consentService, runner, cfg.Runner.FanoutInterval)

	// Event listener turns lifecycle events into push notifications
	eventListener := listener.NewEventListener(cfg.Database.ConnectionString(), notificationService)

	// Initialize handlers
	consentHandler := httphandlers.NewConsentHandler(consentService)
	accountHandler := httphandlers.NewAccountHandler(accountRepo, balanceRepo, transactionRepo)
	notificationHandler := httphandlers.NewNotificationHandler(notificationService)

	return &Dependencies{
		DB:                  db,
		ConsentHandler:      consentHandler,
		AccountHandler:      accountHandler,
		NotificationHandler: notificationHandler,
		Runner:              runner,
		Fanout:              fanout,
		Listener:            eventListener,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
