package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"railsync/internal/domain/notification"
)

type NotificationHandler struct {
	notificationService *notification.Service
}

func NewNotificationHandler(notificationService *notification.Service) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// --- Request/Response types ---

type RegisterDeviceRequest struct {
	UserID     int64  `json:"user_id"`
	Token      string `json:"token"`
	DeviceType string `json:"device_type"`
}

type NotificationListResponse struct {
	Notifications []*notification.Notification `json:"notifications"`
	Pagination    PaginationResponse           `json:"pagination"`
}

type PaginationResponse struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// --- Handlers ---

// HandleRegisterDevice handles POST /api/notifications/register-device/
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterDeviceRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.notificationService.RegisterDevice(r.Context(), notification.CreateDeviceTokenParams{
		UserID:     req.UserID,
		Token:      req.Token,
		DeviceType: req.DeviceType,
	})
	if err != nil {
		switch err {
		case notification.ErrInvalidToken, notification.ErrInvalidDeviceType:
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("Error registering device for user %d: %v", req.UserID, err)
			http.Error(w, "Failed to register device", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

// HandleNotifications handles GET /api/users/{id}/notifications (list)
func (h *NotificationHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = 20
	}

	notifications, total, err := h.notificationService.ListNotifications(r.Context(), userID, page, perPage)
	if err != nil {
		log.Printf("Error listing notifications for user %d: %v", userID, err)
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}

	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}

	writeJSON(w, http.StatusOK, NotificationListResponse{
		Notifications: notifications,
		Pagination: PaginationResponse{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   pages,
		},
	})
}
