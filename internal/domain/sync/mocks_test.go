package sync

import (
	"context"
	"time"

	"railsync/internal/domain/account"
	"railsync/internal/domain/consent"
	"railsync/internal/domain/event"
	"railsync/internal/domain/transaction"
	railclient "railsync/internal/infrastructure/rail"
)

// Shared mocks for the poller tests. The pollers depend on the concrete
// consent.Service, so tests assemble one on top of these mocks.

type mockConsentRepo struct {
	GetByIDFunc      func(ctx context.Context, id string) (*consent.Consent, error)
	UpdateFunc       func(ctx context.Context, c *consent.Consent) (*consent.Consent, error)
	ListByStatusFunc func(ctx context.Context, status consent.Status) ([]*consent.Consent, error)

	Updates []*consent.Consent
}

func (m *mockConsentRepo) Create(ctx context.Context, c *consent.Consent) (*consent.Consent, error) {
	return c, nil
}

func (m *mockConsentRepo) GetByID(ctx context.Context, id string) (*consent.Consent, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, consent.ErrConsentNotFound
}

func (m *mockConsentRepo) GetByReference(ctx context.Context, reference string) (*consent.Consent, error) {
	return nil, consent.ErrConsentNotFound
}

func (m *mockConsentRepo) FindActive(ctx context.Context, userID int64, institutionID string) (*consent.Consent, error) {
	return nil, nil
}

func (m *mockConsentRepo) ListByStatus(ctx context.Context, status consent.Status) ([]*consent.Consent, error) {
	if m.ListByStatusFunc != nil {
		return m.ListByStatusFunc(ctx, status)
	}
	return nil, nil
}

func (m *mockConsentRepo) ListByUserID(ctx context.Context, userID int64) ([]*consent.Consent, error) {
	return nil, nil
}

func (m *mockConsentRepo) Update(ctx context.Context, c *consent.Consent) (*consent.Consent, error) {
	m.Updates = append(m.Updates, c)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, c)
	}
	return c, nil
}

func (m *mockConsentRepo) Delete(ctx context.Context, id string) error {
	return nil
}

type mockLocker struct {
	Locked   int
	Unlocked int
}

func (m *mockLocker) Lock(ctx context.Context, id string) (consent.UnlockFunc, error) {
	m.Locked++
	return func() { m.Unlocked++ }, nil
}

type mockRailClient struct {
	GetAgreementFunc     func(ctx context.Context, agreementID string) (*railclient.Agreement, error)
	DeleteAgreementFunc  func(ctx context.Context, agreementID string) error
	GetAccountDetailFunc func(ctx context.Context, agreementID, externalAccountID string) (*railclient.AccountDetail, error)
	ListBalancesFunc     func(ctx context.Context, externalAccountID string) ([]railclient.Balance, error)
	ListTransactionsFunc func(ctx context.Context, externalAccountID string, from, to time.Time) ([]railclient.Transaction, error)

	AgreementFetches int
}

func (m *mockRailClient) CreateAgreement(ctx context.Context, params railclient.CreateAgreementParams) (*railclient.Agreement, error) {
	return &railclient.Agreement{ID: "agr-1"}, nil
}

func (m *mockRailClient) GetAgreement(ctx context.Context, agreementID string) (*railclient.Agreement, error) {
	m.AgreementFetches++
	if m.GetAgreementFunc != nil {
		return m.GetAgreementFunc(ctx, agreementID)
	}
	return nil, railclient.ErrNotFound
}

func (m *mockRailClient) DeleteAgreement(ctx context.Context, agreementID string) error {
	if m.DeleteAgreementFunc != nil {
		return m.DeleteAgreementFunc(ctx, agreementID)
	}
	return nil
}

func (m *mockRailClient) GetAccountDetail(ctx context.Context, agreementID, externalAccountID string) (*railclient.AccountDetail, error) {
	if m.GetAccountDetailFunc != nil {
		return m.GetAccountDetailFunc(ctx, agreementID, externalAccountID)
	}
	return nil, railclient.ErrNotFound
}

func (m *mockRailClient) ListBalances(ctx context.Context, externalAccountID string) ([]railclient.Balance, error) {
	if m.ListBalancesFunc != nil {
		return m.ListBalancesFunc(ctx, externalAccountID)
	}
	return nil, nil
}

func (m *mockRailClient) ListTransactions(ctx context.Context, externalAccountID string, from, to time.Time) ([]railclient.Transaction, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, externalAccountID, from, to)
	}
	return nil, nil
}

type mockAccountRepo struct {
	CreateFunc           func(ctx context.Context, params account.CreateParams) (*account.Account, error)
	FindByExternalIDFunc func(ctx context.Context, externalID string) (*account.Account, error)
	FindByIBANFunc       func(ctx context.Context, iban string) (*account.Account, error)
	UpdateFunc           func(ctx context.Context, params account.UpdateParams) (*account.Account, error)

	Creates     []account.CreateParams
	Updates     []account.UpdateParams
	IBANLookups []string
	PolledAt    []time.Time
}

func (m *mockAccountRepo) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	m.Creates = append(m.Creates, params)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &account.Account{
		ID:         params.ID,
		ConsentID:  params.ConsentID,
		UserID:     params.UserID,
		ExternalID: params.ExternalID,
		IBAN:       params.IBAN,
	}, nil
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return nil, account.ErrAccountNotFound
}

func (m *mockAccountRepo) FindByExternalID(ctx context.Context, externalID string) (*account.Account, error) {
	if m.FindByExternalIDFunc != nil {
		return m.FindByExternalIDFunc(ctx, externalID)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByIBAN(ctx context.Context, iban string) (*account.Account, error) {
	m.IBANLookups = append(m.IBANLookups, iban)
	if m.FindByIBANFunc != nil {
		return m.FindByIBANFunc(ctx, iban)
	}
	return nil, nil
}

func (m *mockAccountRepo) ListByConsentID(ctx context.Context, consentID string) ([]*account.Account, error) {
	return nil, nil
}

func (m *mockAccountRepo) Update(ctx context.Context, params account.UpdateParams) (*account.Account, error) {
	m.Updates = append(m.Updates, params)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, params)
	}
	return &account.Account{
		ID:         params.ID,
		ConsentID:  params.ConsentID,
		ExternalID: params.ExternalID,
		IBAN:       params.IBAN,
	}, nil
}

func (m *mockAccountRepo) SetLastPolledAt(ctx context.Context, id string, polledAt time.Time) error {
	m.PolledAt = append(m.PolledAt, polledAt)
	return nil
}

type mockBalanceRepo struct {
	Inserts []account.CreateBalanceParams
}

func (m *mockBalanceRepo) Insert(ctx context.Context, params account.CreateBalanceParams) (*account.Balance, error) {
	m.Inserts = append(m.Inserts, params)
	return &account.Balance{AccountID: params.AccountID, Amount: params.Amount}, nil
}

func (m *mockBalanceRepo) LatestByAccountID(ctx context.Context, accountID string) (*account.Balance, error) {
	return nil, nil
}

type mockTransactionRepo struct {
	LatestBookingTimeFunc func(ctx context.Context, accountID string) (*time.Time, error)

	Batches [][]transaction.CreateParams
}

func (m *mockTransactionRepo) InsertBatch(ctx context.Context, txs []transaction.CreateParams) (int, error) {
	m.Batches = append(m.Batches, txs)
	return len(txs), nil
}

func (m *mockTransactionRepo) LatestBookingTime(ctx context.Context, accountID string) (*time.Time, error) {
	if m.LatestBookingTimeFunc != nil {
		return m.LatestBookingTimeFunc(ctx, accountID)
	}
	return nil, nil
}

func (m *mockTransactionRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	return nil, nil
}

type mockPublisher struct {
	Events []event.Event
}

func (m *mockPublisher) Publish(ctx context.Context, ev event.Event) error {
	m.Events = append(m.Events, ev)
	return nil
}

type mockEnqueuer struct {
	Polls [][2]string // (consentID, externalAccountID)
}

func (m *mockEnqueuer) EnqueueAccountPoll(ctx context.Context, consentID, externalAccountID string) error {
	m.Polls = append(m.Polls, [2]string{consentID, externalAccountID})
	return nil
}

func newConsentService(repo *mockConsentRepo, locker *mockLocker, client *mockRailClient) *consent.Service {
	return consent.NewService(repo, locker, client, &mockPublisher{}, "gocardless")
}
