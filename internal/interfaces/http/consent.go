// Package http contains the HTTP handlers of the API surface. Handlers
// stay thin: decode, delegate to a domain service, encode.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"railsync/internal/domain/consent"
)

const maxBodySize = 1 << 20 // 1 MiB

type ConsentHandler struct {
	consentService *consent.Service
}

func NewConsentHandler(consentService *consent.Service) *ConsentHandler {
	return &ConsentHandler{consentService: consentService}
}

// --- Request/Response types ---

type RegisterConsentRequest struct {
	UserID        int64  `json:"user_id"`
	InstitutionID string `json:"institution_id"`
	CallbackURI   string `json:"callback_uri"`
}

type RegisterConsentResponse struct {
	Consent *consent.Consent `json:"consent"`
	Link    string           `json:"link"`
}

// --- Handlers ---

// HandleConsents handles POST /api/consents/ (register)
func (h *ConsentHandler) HandleConsents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterConsentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reg, err := h.consentService.Register(r.Context(), consent.RegisterParams{
		UserID:        req.UserID,
		InstitutionID: req.InstitutionID,
		CallbackURI:   req.CallbackURI,
	})
	if err != nil {
		switch {
		case errors.Is(err, consent.ErrActiveConsentExists):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, consent.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("Error registering consent: %v", err)
			http.Error(w, "Failed to register consent", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, RegisterConsentResponse{Consent: reg.Consent, Link: reg.Link})
}

// HandleCallback handles GET /api/consents/callback. This is where the
// provider redirects the user after the authorization flow; the query
// carries the opaque reference plus error parameters on denial. The
// user is forwarded to the callback URI registered with the consent.
func (h *ConsentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	reference := q.Get("ref")
	if reference == "" {
		http.Error(w, "Missing ref parameter", http.StatusBadRequest)
		return
	}

	existing, err := h.consentService.GetByReference(r.Context(), reference)
	if err != nil {
		if errors.Is(err, consent.ErrConsentNotFound) {
			http.Error(w, "Unknown reference", http.StatusNotFound)
			return
		}
		log.Printf("Error resolving consent reference: %v", err)
		http.Error(w, "Failed to resolve reference", http.StatusInternalServerError)
		return
	}
	// The transition clears the callback URI; capture the target first.
	target := existing.CallbackURI

	errorCode := q.Get("error")
	var updated *consent.Consent
	if errorCode != "" {
		updated, err = h.consentService.ConsentDenied(r.Context(), reference, errorCode, q.Get("details"))
	} else {
		updated, err = h.consentService.ConsentGiven(r.Context(), reference)
	}
	if err != nil {
		log.Printf("Error handling callback for reference %s: %v", reference, err)
		http.Error(w, "Failed to process callback", http.StatusInternalServerError)
		return
	}

	if target == "" {
		writeJSON(w, http.StatusOK, updated)
		return
	}

	redirect, err := url.Parse(target)
	if err != nil {
		writeJSON(w, http.StatusOK, updated)
		return
	}
	rq := redirect.Query()
	rq.Set("status", string(updated.Status))
	if errorCode != "" {
		rq.Set("error", errorCode)
	}
	redirect.RawQuery = rq.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// HandleConsentByID handles /api/consents/{id}: GET returns the
// consent, DELETE cancels it.
func (h *ConsentHandler) HandleConsentByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Missing consent ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := h.consentService.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, consent.ErrConsentNotFound) {
				http.Error(w, "Consent not found", http.StatusNotFound)
				return
			}
			log.Printf("Error getting consent %s: %v", id, err)
			http.Error(w, "Failed to get consent", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, c)

	case http.MethodDelete:
		if err := h.consentService.ConsentCancelled(r.Context(), id); err != nil {
			log.Printf("Error cancelling consent %s: %v", id, err)
			http.Error(w, "Failed to cancel consent", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleDeleteUserConsents handles DELETE /api/users/{id}/consents
// (remove every consent of one user, e.g. on account deletion).
func (h *ConsentHandler) HandleDeleteUserConsents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.consentService.DeleteAllConsents(r.Context(), userID); err != nil {
		log.Printf("Error deleting consents for user %d: %v", userID, err)
		http.Error(w, "Failed to delete consents", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
