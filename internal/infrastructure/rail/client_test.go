package rail

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientCreateAgreement(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "agr-1",
			"institutionId": "BANK_X",
			"status": "CREATED",
			"link": "https://rail.example/auth",
			"maxHistoricalDays": 90,
			"expiresAt": "2025-09-01T00:00:00Z"
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token")
	agreement, err := client.CreateAgreement(context.Background(), CreateAgreementParams{
		InstitutionID: "BANK_X",
		Reference:     "ref-1",
		RedirectURI:   "https://app.example/done",
	})
	if err != nil {
		t.Fatalf("CreateAgreement failed: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/v2/agreements" {
		t.Errorf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if agreement.ID != "agr-1" || agreement.Link != "https://rail.example/auth" {
		t.Errorf("unexpected agreement: %+v", agreement)
	}

	expires, err := agreement.GetExpiresAt()
	if err != nil {
		t.Fatalf("GetExpiresAt failed: %v", err)
	}
	want := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	if expires == nil || !expires.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, expires)
	}
}

func TestClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such agreement", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")

	if _, err := client.GetAgreement(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAgreement: expected ErrNotFound, got %v", err)
	}
	if _, err := client.GetAccountDetail(context.Background(), "agr-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAccountDetail: expected ErrNotFound, got %v", err)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"rate limit exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	_, err := client.GetAgreement(context.Background(), "agr-1")
	if err == nil {
		t.Fatal("expected an error for status 429")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("non-404 errors must not map to ErrNotFound")
	}
}

func TestClientListTransactionsWindow(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transactions": [
			{
				"transactionId": "tx-1",
				"amount": "-42.17",
				"currencyCode": "EUR",
				"bookingDateTime": "2025-05-30 09:15:00",
				"remittanceInformation": "coffee"
			}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	from := time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC)
	to := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	txs, err := client.ListTransactions(context.Background(), "ext-1", from, to)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}

	if gotQuery != "date_from=2025-05-01&date_to=2025-06-01" {
		t.Errorf("unexpected window query: %s", gotQuery)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}

	amount, err := txs[0].GetAmount()
	if err != nil {
		t.Fatalf("GetAmount failed: %v", err)
	}
	if amount.String() != "-42.17" {
		t.Errorf("expected amount -42.17, got %s", amount)
	}

	booked, err := txs[0].GetBookingTime()
	if err != nil {
		t.Fatalf("GetBookingTime failed: %v", err)
	}
	want := time.Date(2025, 5, 30, 9, 15, 0, 0, time.UTC)
	if booked == nil || !booked.Equal(want) {
		t.Errorf("expected booking time %v, got %v", want, booked)
	}
}

func TestClientListBalances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/accounts/ext-1/balances" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"balances": [
			{"amount": "1024.50", "currencyCode": "EUR", "balanceType": "expected", "referenceDate": "2025-06-01"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	balances, err := client.ListBalances(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("ListBalances failed: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("expected 1 balance, got %d", len(balances))
	}

	amount, err := balances[0].GetAmount()
	if err != nil {
		t.Fatalf("GetAmount failed: %v", err)
	}
	if amount.String() != "1024.5" {
		t.Errorf("expected amount 1024.5, got %s", amount)
	}
	refDate, err := balances[0].GetReferenceDate()
	if err != nil {
		t.Fatalf("GetReferenceDate failed: %v", err)
	}
	if refDate == nil || !refDate.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected reference date: %v", refDate)
	}
}

func TestParseHelpersRejectGarbage(t *testing.T) {
	b := Balance{AmountString: "lots"}
	if _, err := b.GetAmount(); err == nil {
		t.Error("expected an error for a non-numeric amount")
	}

	tx := Transaction{BookingTimeString: "yesterday"}
	if _, err := tx.GetBookingTime(); err == nil {
		t.Error("expected an error for a malformed booking time")
	}

	a := Agreement{ExpiresAtString: "soon"}
	if _, err := a.GetExpiresAt(); err == nil {
		t.Error("expected an error for a malformed expiry")
	}
}

func TestParseHelpersEmptyValues(t *testing.T) {
	var tx Transaction
	booked, err := tx.GetBookingTime()
	if err != nil || booked != nil {
		t.Errorf("expected (nil, nil) for an empty booking time, got (%v, %v)", booked, err)
	}

	var a Agreement
	expires, err := a.GetExpiresAt()
	if err != nil || expires != nil {
		t.Errorf("expected (nil, nil) for an empty expiry, got (%v, %v)", expires, err)
	}
}
