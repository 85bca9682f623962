package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"railsync/internal/domain/account"
	"railsync/internal/domain/transaction"
)

type AccountHandler struct {
	accounts     account.Repository
	balances     account.BalanceRepository
	transactions transaction.Repository
}

func NewAccountHandler(accounts account.Repository, balances account.BalanceRepository, transactions transaction.Repository) *AccountHandler {
	return &AccountHandler{accounts: accounts, balances: balances, transactions: transactions}
}

// --- Response types ---

type AccountResponse struct {
	Account       *account.Account `json:"account"`
	LatestBalance *account.Balance `json:"latest_balance,omitempty"`
}

type AccountListResponse struct {
	Accounts []AccountResponse `json:"accounts"`
}

type TransactionListResponse struct {
	Transactions []*transaction.Transaction `json:"transactions"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

// --- Handlers ---

// HandleConsentAccounts handles GET /api/consents/{id}/accounts: the
// accounts discovered through one consent, each with its most recent
// balance snapshot.
func (h *AccountHandler) HandleConsentAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	consentID := r.PathValue("id")
	if consentID == "" {
		http.Error(w, "Missing consent ID", http.StatusBadRequest)
		return
	}

	accounts, err := h.accounts.ListByConsentID(r.Context(), consentID)
	if err != nil {
		log.Printf("Error listing accounts for consent %s: %v", consentID, err)
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	items := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		balance, err := h.balances.LatestByAccountID(r.Context(), acc.ID)
		if err != nil {
			log.Printf("Error loading balance for account %s: %v", acc.ID, err)
			http.Error(w, "Failed to load balances", http.StatusInternalServerError)
			return
		}
		items = append(items, AccountResponse{Account: acc, LatestBalance: balance})
	}

	writeJSON(w, http.StatusOK, AccountListResponse{Accounts: items})
}

// HandleAccountTransactions handles GET /api/accounts/{id}/transactions
// with limit/offset paging, newest first.
func (h *AccountHandler) HandleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accountID := r.PathValue("id")
	if accountID == "" {
		http.Error(w, "Missing account ID", http.StatusBadRequest)
		return
	}

	if _, err := h.accounts.GetByID(r.Context(), accountID); err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting account %s: %v", accountID, err)
		http.Error(w, "Failed to get account", http.StatusInternalServerError)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	txs, err := h.transactions.ListByAccountID(r.Context(), accountID, limit, offset)
	if err != nil {
		log.Printf("Error listing transactions for account %s: %v", accountID, err)
		http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, TransactionListResponse{Transactions: txs, Limit: limit, Offset: offset})
}
