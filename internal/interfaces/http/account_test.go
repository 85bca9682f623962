package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"railsync/internal/domain/account"
	"railsync/internal/domain/transaction"
)

// MockAccountRepo implements account.Repository for testing
type MockAccountRepo struct {
	GetByIDFunc         func(ctx context.Context, id string) (*account.Account, error)
	ListByConsentIDFunc func(ctx context.Context, consentID string) ([]*account.Account, error)
}

func (m *MockAccountRepo) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, account.ErrAccountNotFound
}

func (m *MockAccountRepo) FindByExternalID(ctx context.Context, externalID string) (*account.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) FindByIBAN(ctx context.Context, iban string) (*account.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) ListByConsentID(ctx context.Context, consentID string) ([]*account.Account, error) {
	if m.ListByConsentIDFunc != nil {
		return m.ListByConsentIDFunc(ctx, consentID)
	}
	return nil, nil
}

func (m *MockAccountRepo) Update(ctx context.Context, params account.UpdateParams) (*account.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) SetLastPolledAt(ctx context.Context, id string, polledAt time.Time) error {
	return nil
}

// MockBalanceRepo implements account.BalanceRepository for testing
type MockBalanceRepo struct {
	LatestByAccountIDFunc func(ctx context.Context, accountID string) (*account.Balance, error)
}

func (m *MockBalanceRepo) Insert(ctx context.Context, params account.CreateBalanceParams) (*account.Balance, error) {
	return nil, nil
}

func (m *MockBalanceRepo) LatestByAccountID(ctx context.Context, accountID string) (*account.Balance, error) {
	if m.LatestByAccountIDFunc != nil {
		return m.LatestByAccountIDFunc(ctx, accountID)
	}
	return nil, nil
}

// MockTransactionRepo implements transaction.Repository for testing
type MockTransactionRepo struct {
	ListByAccountIDFunc func(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error)
}

func (m *MockTransactionRepo) InsertBatch(ctx context.Context, txs []transaction.CreateParams) (int, error) {
	return 0, nil
}

func (m *MockTransactionRepo) LatestBookingTime(ctx context.Context, accountID string) (*time.Time, error) {
	return nil, nil
}

func (m *MockTransactionRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	if m.ListByAccountIDFunc != nil {
		return m.ListByAccountIDFunc(ctx, accountID, limit, offset)
	}
	return nil, nil
}

func TestHandleConsentAccounts(t *testing.T) {
	accounts := &MockAccountRepo{
		ListByConsentIDFunc: func(ctx context.Context, consentID string) ([]*account.Account, error) {
			return []*account.Account{
				{ID: "acc-1", ConsentID: consentID, Name: "Main Account", Currency: "EUR"},
				{ID: "acc-2", ConsentID: consentID, Name: "Savings", Currency: "EUR"},
			}, nil
		},
	}
	balances := &MockBalanceRepo{
		LatestByAccountIDFunc: func(ctx context.Context, accountID string) (*account.Balance, error) {
			if accountID == "acc-1" {
				return &account.Balance{AccountID: accountID, Amount: decimal.RequireFromString("1024.50"), Currency: "EUR"}, nil
			}
			return nil, nil
		},
	}
	handler := NewAccountHandler(accounts, balances, &MockTransactionRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/consents/c-1/accounts", nil)
	req.SetPathValue("id", "c-1")
	rec := httptest.NewRecorder()
	handler.HandleConsentAccounts(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp AccountListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(resp.Accounts))
	}
	if resp.Accounts[0].LatestBalance == nil {
		t.Error("expected the latest balance on acc-1")
	}
	if resp.Accounts[1].LatestBalance != nil {
		t.Error("expected no balance on acc-2")
	}
}

func TestHandleAccountTransactions(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		accountID      string
		known          bool
		expectedStatus int
		expectedLimit  int
		expectedOffset int
	}{
		{
			name:           "Defaults",
			target:         "/api/accounts/acc-1/transactions",
			accountID:      "acc-1",
			known:          true,
			expectedStatus: http.StatusOK,
			expectedLimit:  100,
			expectedOffset: 0,
		},
		{
			name:           "ExplicitPaging",
			target:         "/api/accounts/acc-1/transactions?limit=50&offset=25",
			accountID:      "acc-1",
			known:          true,
			expectedStatus: http.StatusOK,
			expectedLimit:  50,
			expectedOffset: 25,
		},
		{
			name:           "LimitClamped",
			target:         "/api/accounts/acc-1/transactions?limit=9999",
			accountID:      "acc-1",
			known:          true,
			expectedStatus: http.StatusOK,
			expectedLimit:  100,
			expectedOffset: 0,
		},
		{
			name:           "NotFound",
			target:         "/api/accounts/nope/transactions",
			accountID:      "nope",
			known:          false,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &MockAccountRepo{}
			if tt.known {
				accounts.GetByIDFunc = func(ctx context.Context, id string) (*account.Account, error) {
					return &account.Account{ID: id}, nil
				}
			}
			var gotLimit, gotOffset int
			transactions := &MockTransactionRepo{
				ListByAccountIDFunc: func(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
					gotLimit, gotOffset = limit, offset
					return []*transaction.Transaction{}, nil
				},
			}
			handler := NewAccountHandler(accounts, &MockBalanceRepo{}, transactions)

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.SetPathValue("id", tt.accountID)
			rec := httptest.NewRecorder()
			handler.HandleAccountTransactions(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			if gotLimit != tt.expectedLimit || gotOffset != tt.expectedOffset {
				t.Errorf("expected paging (%d, %d), got (%d, %d)", tt.expectedLimit, tt.expectedOffset, gotLimit, gotOffset)
			}
		})
	}
}
