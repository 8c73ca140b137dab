// Package handler содержит HTTP-обработчики API сервиса продажи курсов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/course-checkout/internal/middleware"
	"github.com/mmeshcher/course-checkout/internal/model"
	"github.com/mmeshcher/course-checkout/internal/service"
	"github.com/mmeshcher/course-checkout/internal/webhook"
)

// maxWebhookBody ограничивает размер тела вебхука.
const maxWebhookBody = 64 << 10

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Purchase(ctx context.Context, userID, courseID int64, origin string) (string, error)
	GetEnrolledCourses(ctx context.Context, userID int64) ([]model.Course, error)
	GetPurchase(ctx context.Context, userID int64, id string) (*model.Purchase, error)
}

// WebhookProcessor обрабатывает доставки вебхука платёжного провайдера.
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signature string) (webhook.Outcome, error)
}

// Handler реализует HTTP-обработчики API сервиса продажи курсов.
type Handler struct {
	service        Service
	processor      WebhookProcessor
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// metricsHandler может быть nil, тогда /metrics не регистрируется.
func NewHandler(s Service, p WebhookProcessor, logger *zap.Logger, auth *middleware.AuthMiddleware, metricsHandler http.Handler) *Handler {
	return &Handler{
		service:        s,
		processor:      p,
		logger:         logger,
		authMiddleware: auth,
		metrics:        metricsHandler,
	}
}

type purchaseRequest struct {
	CourseID int64 `json:"courseId"`
}

type purchaseResponse struct {
	Success    bool   `json:"success"`
	SessionURL string `json:"session_url,omitempty"`
	Message    string `json:"message,omitempty"`
}

// PurchaseCourse создаёт покупку курса и возвращает адрес страницы оплаты.
func (h *Handler) PurchaseCourse(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CourseID <= 0 {
		writeJSON(w, http.StatusBadRequest, purchaseResponse{Message: "courseId is required"})
		return
	}

	sessionURL, err := h.service.Purchase(r.Context(), userID, req.CourseID, r.Header.Get("Origin"))
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			writeJSON(w, http.StatusBadRequest, purchaseResponse{Message: "course or user not found"})
		case errors.Is(err, service.ErrInvalidOrigin):
			writeJSON(w, http.StatusBadRequest, purchaseResponse{Message: "origin is not allowed"})
		default:
			h.logger.Error("purchase course error", zap.Error(err),
				zap.Int64("userID", userID), zap.Int64("courseID", req.CourseID))
			writeJSON(w, http.StatusInternalServerError, purchaseResponse{Message: "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, purchaseResponse{Success: true, SessionURL: sessionURL})
}

type courseResponse struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Price    int64  `json:"price"`
	Discount int    `json:"discount"`
}

type enrolledCoursesResponse struct {
	Success         bool             `json:"success"`
	EnrolledCourses []courseResponse `json:"enrolledCourses"`
	Message         string           `json:"message,omitempty"`
}

// GetEnrolledCourses возвращает курсы текущего пользователя.
// Пустой список отдаётся как [].
func (h *Handler) GetEnrolledCourses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	courses, err := h.service.GetEnrolledCourses(r.Context(), userID)
	if err != nil {
		h.logger.Error("get enrolled courses error", zap.Error(err), zap.Int64("userID", userID))
		writeJSON(w, http.StatusInternalServerError, enrolledCoursesResponse{
			EnrolledCourses: []courseResponse{},
			Message:         "internal server error",
		})
		return
	}

	resp := enrolledCoursesResponse{
		Success:         true,
		EnrolledCourses: make([]courseResponse, 0, len(courses)),
	}
	for _, c := range courses {
		resp.EnrolledCourses = append(resp.EnrolledCourses, courseResponse{
			ID:       c.ID,
			Title:    c.Title,
			Price:    c.Price,
			Discount: c.Discount,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type purchaseStatusResponse struct {
	ID          string `json:"id"`
	CourseID    int64  `json:"course_id"`
	CourseTitle string `json:"course_title"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// GetPurchase возвращает статус покупки текущего пользователя.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")

	p, err := h.service.GetPurchase(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get purchase error", zap.Error(err), zap.String("purchaseID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, purchaseStatusResponse{
		ID:          p.ID,
		CourseID:    p.CourseID,
		CourseTitle: p.CourseTitle,
		Amount:      p.Amount,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	})
}

// StripeWebhook принимает событие платёжного провайдера.
// Тело читается без изменений: подпись считается по исходным байтам.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err = h.processor.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, model.ErrInvalidSignature) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
