// Package rail implements the HTTP client for the rail provider API
// (agreements, account metadata, balances, transactions).
package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultTimeout    = 60 * time.Second
	agreementsPath    = "/api/v2/agreements"
	accountsPath      = "/api/v2/accounts"
	dateOnlyFormat    = "2006-01-02"
	bookingTimeFormat = "2006-01-02 15:04:05"
)

// ErrNotFound is returned when the provider reports 404 for an
// agreement or account.
var ErrNotFound = errors.New("rail: not found")

// Agreement statuses reported by the provider.
const (
	AgreementStatusCreated   = "CREATED"
	AgreementStatusPending   = "PENDING"
	AgreementStatusLinked    = "LINKED"
	AgreementStatusExpired   = "EXPIRED"
	AgreementStatusSuspended = "SUSPENDED"
	AgreementStatusRejected  = "REJECTED"
)

// External account statuses reported by the provider.
const (
	AccountStatusReady      = "READY"
	AccountStatusProcessing = "PROCESSING"
	AccountStatusError      = "ERROR"
	AccountStatusExpired    = "EXPIRED"
	AccountStatusSuspended  = "SUSPENDED"
)

// Client handles communication with the rail provider API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new rail provider API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		token:      token,
	}
}

// CreateAgreementParams contains the fields for registering an agreement.
type CreateAgreementParams struct {
	InstitutionID  string `json:"institutionId"`
	Reference      string `json:"reference"`
	RedirectURI    string `json:"redirect"`
	MaxHistoryDays int    `json:"maxHistoricalDays,omitempty"`
}

// Agreement represents the provider's view of a consent.
type Agreement struct {
	ID              string   `json:"id"`
	InstitutionID   string   `json:"institutionId"`
	Status          string   `json:"status"`
	Link            string   `json:"link"`
	AccountIDs      []string `json:"accounts"`
	MaxHistoryDays  int      `json:"maxHistoricalDays"`
	ExpiresAtString string   `json:"expiresAt"` // RFC 3339
}

// GetExpiresAt parses and returns the agreement expiry timestamp.
func (a *Agreement) GetExpiresAt() (*time.Time, error) {
	if a.ExpiresAtString == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, a.ExpiresAtString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expiresAt '%s': %w", a.ExpiresAtString, err)
	}
	return &t, nil
}

// AccountDetail represents the metadata of one external account.
type AccountDetail struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	IBAN        string `json:"iban"`
	Name        string `json:"name"`
	AccountType string `json:"type"`
	OwnerName   string `json:"ownerName"`
	Currency    string `json:"currencyCode"`
	ErrorCode   string `json:"errorCode,omitempty"`
	ErrorDetail string `json:"errorDetail,omitempty"`
}

// Balance represents one balance snapshot from the provider.
type Balance struct {
	AmountString        string `json:"amount"` // API returns amount as string
	Currency            string `json:"currencyCode"`
	BalanceType         string `json:"balanceType"` // e.g. "expected", "interimAvailable"
	ReferenceDateString string `json:"referenceDate"`
}

// GetAmount returns the amount as a decimal.
func (b *Balance) GetAmount() (decimal.Decimal, error) {
	if b.AmountString == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(b.AmountString)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance amount '%s': %w", b.AmountString, err)
	}
	return amount, nil
}

// GetReferenceDate parses and returns the balance reference date.
func (b *Balance) GetReferenceDate() (*time.Time, error) {
	if b.ReferenceDateString == "" {
		return nil, nil
	}
	t, err := time.Parse(dateOnlyFormat, b.ReferenceDateString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse referenceDate '%s': %w", b.ReferenceDateString, err)
	}
	return &t, nil
}

// Transaction represents one financial movement from the provider.
type Transaction struct {
	ID                string `json:"transactionId"`
	AmountString      string `json:"amount"` // API returns amount as string
	Currency          string `json:"currencyCode"`
	BookingTimeString string `json:"bookingDateTime"` // "2006-01-02 15:04:05"
	ValueTimeString   string `json:"valueDateTime,omitempty"`
	Description       string `json:"remittanceInformation"`
	CounterpartyName  string `json:"counterpartyName,omitempty"`
}

// GetAmount returns the amount as a decimal.
func (t *Transaction) GetAmount() (decimal.Decimal, error) {
	if t.AmountString == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(t.AmountString)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", t.AmountString, err)
	}
	return amount, nil
}

// GetBookingTime parses and returns the booking date-time.
func (t *Transaction) GetBookingTime() (*time.Time, error) {
	if t.BookingTimeString == "" {
		return nil, nil
	}
	parsed, err := time.Parse(bookingTimeFormat, t.BookingTimeString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bookingDateTime '%s': %w", t.BookingTimeString, err)
	}
	return &parsed, nil
}

// GetValueTime parses and returns the value date-time.
func (t *Transaction) GetValueTime() (*time.Time, error) {
	if t.ValueTimeString == "" {
		return nil, nil
	}
	parsed, err := time.Parse(bookingTimeFormat, t.ValueTimeString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse valueDateTime '%s': %w", t.ValueTimeString, err)
	}
	return &parsed, nil
}

type balanceListResponse struct {
	Balances []Balance `json:"balances"`
}

type transactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// CreateAgreement registers a new end-user agreement with the provider.
func (c *Client) CreateAgreement(ctx context.Context, params CreateAgreementParams) (*Agreement, error) {
	var agreement Agreement
	if err := c.do(ctx, http.MethodPost, agreementsPath, params, &agreement); err != nil {
		return nil, fmt.Errorf("failed to create agreement: %w", err)
	}
	return &agreement, nil
}

// GetAgreement fetches an agreement by ID.
func (c *Client) GetAgreement(ctx context.Context, agreementID string) (*Agreement, error) {
	var agreement Agreement
	path := agreementsPath + "/" + url.PathEscape(agreementID)
	if err := c.do(ctx, http.MethodGet, path, nil, &agreement); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agreement %s: %w", agreementID, err)
	}
	return &agreement, nil
}

// DeleteAgreement removes the upstream authorization.
func (c *Client) DeleteAgreement(ctx context.Context, agreementID string) error {
	path := agreementsPath + "/" + url.PathEscape(agreementID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete agreement %s: %w", agreementID, err)
	}
	return nil
}

// GetAccountDetail fetches the metadata of one external account.
func (c *Client) GetAccountDetail(ctx context.Context, agreementID, externalAccountID string) (*AccountDetail, error) {
	var detail AccountDetail
	path := agreementsPath + "/" + url.PathEscape(agreementID) + "/accounts/" + url.PathEscape(externalAccountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", externalAccountID, err)
	}
	return &detail, nil
}

// ListBalances fetches the current balances of an external account.
func (c *Client) ListBalances(ctx context.Context, externalAccountID string) ([]Balance, error) {
	var resp balanceListResponse
	path := accountsPath + "/" + url.PathEscape(externalAccountID) + "/balances"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list balances for account %s: %w", externalAccountID, err)
	}
	return resp.Balances, nil
}

// ListTransactions fetches the transactions of an external account
// booked between from and to.
func (c *Client) ListTransactions(ctx context.Context, externalAccountID string, from, to time.Time) ([]Transaction, error) {
	var resp transactionListResponse
	path := fmt.Sprintf("%s/%s/transactions?date_from=%s&date_to=%s",
		accountsPath,
		url.PathEscape(externalAccountID),
		from.UTC().Format(dateOnlyFormat),
		to.UTC().Format(dateOnlyFormat),
	)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %s: %w", externalAccountID, err)
	}
	return resp.Transactions, nil
}

// do performs one authenticated request and decodes the response body
// into out (when out is non-nil). 404 maps to ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
