package main

import (
	"net/http"

	httphandlers "railsync/internal/interfaces/http"
	"railsync/internal/shared/config"
	"railsync/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Consent lifecycle
	mux.HandleFunc("/api/consents", deps.ConsentHandler.HandleConsents)
	mux.HandleFunc("/api/consents/callback", deps.ConsentHandler.HandleCallback)
	mux.HandleFunc("/api/consents/{id}", deps.ConsentHandler.HandleConsentByID)
	mux.HandleFunc("/api/consents/{id}/accounts", deps.AccountHandler.HandleConsentAccounts)

	// Ledger reads
	mux.HandleFunc("/api/accounts/{id}/transactions", deps.AccountHandler.HandleAccountTransactions)

	// User-scoped operations
	mux.HandleFunc("/api/users/{id}/consents", deps.ConsentHandler.HandleDeleteUserConsents)
	mux.HandleFunc("/api/users/{id}/notifications", deps.NotificationHandler.HandleNotifications)

	// Device registration
	mux.HandleFunc("/api/notifications/register-device", deps.NotificationHandler.HandleRegisterDevice)

	// Apply global middleware
	handler := middleware.Logging(mux)
	if cfg.Telemetry.Enabled {
		handler = middleware.Tracing(handler)
	}

	return handler
}
