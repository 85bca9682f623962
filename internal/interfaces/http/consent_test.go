package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"railsync/internal/domain/consent"
	"railsync/internal/domain/event"
	railclient "railsync/internal/infrastructure/rail"
)

// MockConsentRepo implements consent.Repository for testing
type MockConsentRepo struct {
	CreateFunc         func(ctx context.Context, c *consent.Consent) (*consent.Consent, error)
	GetByIDFunc        func(ctx context.Context, id string) (*consent.Consent, error)
	GetByReferenceFunc func(ctx context.Context, reference string) (*consent.Consent, error)
	FindActiveFunc     func(ctx context.Context, userID int64, institutionID string) (*consent.Consent, error)
	ListByUserIDFunc   func(ctx context.Context, userID int64) ([]*consent.Consent, error)
	UpdateFunc         func(ctx context.Context, c *consent.Consent) (*consent.Consent, error)
	DeleteFunc         func(ctx context.Context, id string) error
}

func (m *MockConsentRepo) Create(ctx context.Context, c *consent.Consent) (*consent.Consent, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, c)
	}
	return c, nil
}

func (m *MockConsentRepo) GetByID(ctx context.Context, id string) (*consent.Consent, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, consent.ErrConsentNotFound
}

func (m *MockConsentRepo) GetByReference(ctx context.Context, reference string) (*consent.Consent, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, reference)
	}
	return nil, consent.ErrConsentNotFound
}

func (m *MockConsentRepo) FindActive(ctx context.Context, userID int64, institutionID string) (*consent.Consent, error) {
	if m.FindActiveFunc != nil {
		return m.FindActiveFunc(ctx, userID, institutionID)
	}
	return nil, nil
}

func (m *MockConsentRepo) ListByStatus(ctx context.Context, status consent.Status) ([]*consent.Consent, error) {
	return nil, nil
}

func (m *MockConsentRepo) ListByUserID(ctx context.Context, userID int64) ([]*consent.Consent, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockConsentRepo) Update(ctx context.Context, c *consent.Consent) (*consent.Consent, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, c)
	}
	return c, nil
}

func (m *MockConsentRepo) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, id string) (consent.UnlockFunc, error) {
	return func() {}, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, ev event.Event) error { return nil }

// stubRailClient returns canned upstream responses.
type stubRailClient struct{}

func (stubRailClient) CreateAgreement(ctx context.Context, params railclient.CreateAgreementParams) (*railclient.Agreement, error) {
	return &railclient.Agreement{ID: "agr-1", Status: railclient.AgreementStatusCreated, Link: "https://rail.example/auth", MaxHistoryDays: 90}, nil
}

func (stubRailClient) GetAgreement(ctx context.Context, agreementID string) (*railclient.Agreement, error) {
	return nil, railclient.ErrNotFound
}

func (stubRailClient) DeleteAgreement(ctx context.Context, agreementID string) error { return nil }

func (stubRailClient) GetAccountDetail(ctx context.Context, agreementID, externalAccountID string) (*railclient.AccountDetail, error) {
	return nil, railclient.ErrNotFound
}

func (stubRailClient) ListBalances(ctx context.Context, externalAccountID string) ([]railclient.Balance, error) {
	return nil, nil
}

func (stubRailClient) ListTransactions(ctx context.Context, externalAccountID string, from, to time.Time) ([]railclient.Transaction, error) {
	return nil, nil
}

func newConsentHandler(repo *MockConsentRepo) *ConsentHandler {
	svc := consent.NewService(repo, noopLocker{}, stubRailClient{}, noopPublisher{}, "gocardless")
	return NewConsentHandler(svc)
}

func TestHandleConsentsRegister(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		body           string
		mockRepo       func() *MockConsentRepo
		expectedStatus int
	}{
		{
			name:           "Success",
			method:         http.MethodPost,
			body:           `{"user_id":1,"institution_id":"BANK_X","callback_uri":"https://app.example/done"}`,
			mockRepo:       func() *MockConsentRepo { return &MockConsentRepo{} },
			expectedStatus: http.StatusCreated,
		},
		{
			name:   "Conflict",
			method: http.MethodPost,
			body:   `{"user_id":1,"institution_id":"BANK_X","callback_uri":"https://app.example/done"}`,
			mockRepo: func() *MockConsentRepo {
				return &MockConsentRepo{
					FindActiveFunc: func(ctx context.Context, userID int64, institutionID string) (*consent.Consent, error) {
						return &consent.Consent{ID: "c-1", Status: consent.StatusGiven}, nil
					},
				}
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "MissingInstitution",
			method:         http.MethodPost,
			body:           `{"user_id":1,"callback_uri":"https://app.example/done"}`,
			mockRepo:       func() *MockConsentRepo { return &MockConsentRepo{} },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "InvalidBody",
			method:         http.MethodPost,
			body:           `not json`,
			mockRepo:       func() *MockConsentRepo { return &MockConsentRepo{} },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "MethodNotAllowed",
			method:         http.MethodGet,
			body:           "",
			mockRepo:       func() *MockConsentRepo { return &MockConsentRepo{} },
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newConsentHandler(tt.mockRepo())

			req := httptest.NewRequest(tt.method, "/api/consents", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.HandleConsents(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleCallback(t *testing.T) {
	waiting := func() *consent.Consent {
		return &consent.Consent{
			ID:          "c-1",
			UserID:      1,
			Reference:   "ref-1",
			Status:      consent.StatusWaiting,
			CallbackURI: "https://app.example/done",
		}
	}

	t.Run("GivenRedirects", func(t *testing.T) {
		repo := &MockConsentRepo{
			GetByReferenceFunc: func(ctx context.Context, reference string) (*consent.Consent, error) {
				return waiting(), nil
			},
		}
		handler := newConsentHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/consents/callback?ref=ref-1", nil)
		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
		}
		location := rec.Header().Get("Location")
		if !strings.HasPrefix(location, "https://app.example/done") {
			t.Errorf("expected redirect to the registered callback, got %s", location)
		}
		if !strings.Contains(location, "status=GIVEN") {
			t.Errorf("expected the final status in the redirect, got %s", location)
		}
	})

	t.Run("DeniedCarriesError", func(t *testing.T) {
		repo := &MockConsentRepo{
			GetByReferenceFunc: func(ctx context.Context, reference string) (*consent.Consent, error) {
				return waiting(), nil
			},
		}
		handler := newConsentHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/consents/callback?ref=ref-1&error=access_denied&details=user+rejected", nil)
		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
		}
		location := rec.Header().Get("Location")
		if !strings.Contains(location, "status=DENIED") || !strings.Contains(location, "error=access_denied") {
			t.Errorf("expected denial details in the redirect, got %s", location)
		}
	})

	t.Run("NoCallbackURIReturnsJSON", func(t *testing.T) {
		repo := &MockConsentRepo{
			GetByReferenceFunc: func(ctx context.Context, reference string) (*consent.Consent, error) {
				c := waiting()
				c.CallbackURI = ""
				return c, nil
			},
		}
		handler := newConsentHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/consents/callback?ref=ref-1", nil)
		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"GIVEN"`) {
			t.Errorf("expected the updated consent in the body, got %s", rec.Body.String())
		}
	})

	t.Run("MissingRef", func(t *testing.T) {
		handler := newConsentHandler(&MockConsentRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/consents/callback", nil)
		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("UnknownRef", func(t *testing.T) {
		handler := newConsentHandler(&MockConsentRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/consents/callback?ref=nope", nil)
		rec := httptest.NewRecorder()
		handler.HandleCallback(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandleConsentByID(t *testing.T) {
	t.Run("Get", func(t *testing.T) {
		repo := &MockConsentRepo{
			GetByIDFunc: func(ctx context.Context, id string) (*consent.Consent, error) {
				return &consent.Consent{ID: id, Status: consent.StatusGiven}, nil
			},
		}
		handler := newConsentHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/consents/c-1", nil)
		req.SetPathValue("id", "c-1")
		rec := httptest.NewRecorder()
		handler.HandleConsentByID(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		handler := newConsentHandler(&MockConsentRepo{})

		req := httptest.NewRequest(http.MethodGet, "/api/consents/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		handler.HandleConsentByID(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("DeleteCancels", func(t *testing.T) {
		var cancelled *consent.Consent
		repo := &MockConsentRepo{
			GetByIDFunc: func(ctx context.Context, id string) (*consent.Consent, error) {
				return &consent.Consent{ID: id, Status: consent.StatusGiven}, nil
			},
			UpdateFunc: func(ctx context.Context, c *consent.Consent) (*consent.Consent, error) {
				cancelled = c
				return c, nil
			},
		}
		handler := newConsentHandler(repo)

		req := httptest.NewRequest(http.MethodDelete, "/api/consents/c-1", nil)
		req.SetPathValue("id", "c-1")
		rec := httptest.NewRecorder()
		handler.HandleConsentByID(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if cancelled == nil || cancelled.Status != consent.StatusCancelled {
			t.Errorf("expected the consent cancelled, got %+v", cancelled)
		}
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		handler := newConsentHandler(&MockConsentRepo{})

		req := httptest.NewRequest(http.MethodPatch, "/api/consents/c-1", nil)
		req.SetPathValue("id", "c-1")
		rec := httptest.NewRecorder()
		handler.HandleConsentByID(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestHandleDeleteUserConsents(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		deleted := 0
		repo := &MockConsentRepo{
			ListByUserIDFunc: func(ctx context.Context, userID int64) ([]*consent.Consent, error) {
				return []*consent.Consent{{ID: "c-1", Status: consent.StatusCancelled}}, nil
			},
			DeleteFunc: func(ctx context.Context, id string) error {
				deleted++
				return nil
			},
		}
		handler := newConsentHandler(repo)

		req := httptest.NewRequest(http.MethodDelete, "/api/users/1/consents", nil)
		req.SetPathValue("id", "1")
		rec := httptest.NewRecorder()
		handler.HandleDeleteUserConsents(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if deleted != 1 {
			t.Errorf("expected 1 consent deleted, got %d", deleted)
		}
	})

	t.Run("InvalidUserID", func(t *testing.T) {
		handler := newConsentHandler(&MockConsentRepo{})

		req := httptest.NewRequest(http.MethodDelete, "/api/users/zero/consents", nil)
		req.SetPathValue("id", "zero")
		rec := httptest.NewRecorder()
		handler.HandleDeleteUserConsents(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}
