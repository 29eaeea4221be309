// Package handler содержит HTTP-обработчики API сервиса Greenfill Hub.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenfill-hub/internal/auth"
	"github.com/mmeshcher/greenfill-hub/internal/middleware"
	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/repository"
	"github.com/mmeshcher/greenfill-hub/internal/rewards"
	"github.com/mmeshcher/greenfill-hub/internal/service"
	"github.com/mmeshcher/greenfill-hub/internal/validation"
)

const (
	msgInternal           = "Internal server error"
	msgInvalidCredentials = "Invalid credentials"
	msgPasswordTooLong    = "Password must be at most 72 bytes"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	SignUp(ctx context.Context, email, phone, password string) (uuid.UUID, error)
	SignIn(ctx context.Context, identifier, password string) (*model.Session, error)
	SignOut(ctx context.Context, claims *auth.Claims) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	AddRefill(ctx context.Context, userID uuid.UUID, email string, in service.RefillInput) (int64, error)
	GetRefillHistory(ctx context.Context, userID uuid.UUID) ([]model.RefillRecord, model.PointsSummary, error)
	RedeemVoucher(ctx context.Context, userID uuid.UUID, email, voucherID string, pointsUsed int64) (*model.Voucher, int64, error)
}

// Handler реализует HTTP-обработчики API сервиса Greenfill Hub.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	anonKey        string
	prefix         string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, anonKey, prefix string) *Handler {
	prefix = "/" + strings.Trim(prefix, "/")

	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		anonKey:        anonKey,
		prefix:         prefix,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Shortfall int64  `json:"shortfall,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Health сообщает, что сервис жив.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required"`
	Phone    string `json:"phone"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type signUpResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

// SignUp регистрирует пользователя и сразу подтверждает учётную запись.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	if err := validation.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	id, err := h.service.SignUp(r.Context(), req.Email, req.Phone, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			h.logger.Info("auth error during signup", zap.Error(err))
			writeError(w, http.StatusBadRequest, "A user with this email address has already been registered")
			return
		}
		if errors.Is(err, auth.ErrPasswordTooLong) {
			writeError(w, http.StatusBadRequest, msgPasswordTooLong)
			return
		}
		h.logger.Error("unexpected error during signup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, signUpResponse{
		Success: true,
		User:    userResponse{ID: id, Email: req.Email},
	})
}

type tokenRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        userResponse `json:"user"`
}

// Token выполняет вход по email или телефону и паролю и выдаёт токен доступа.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || validation.Struct(req) != nil {
		writeError(w, http.StatusBadRequest, "Identifier and password are required")
		return
	}

	session, err := h.service.SignIn(r.Context(), identifier, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}
		h.logger.Error("sign in error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: session.AccessToken,
		ExpiresAt:   session.ExpiresAt,
		User:        userResponse{ID: session.UserID, Email: session.Email},
	})
}

// Logout отзывает текущий токен.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.service.SignOut(r.Context(), claims); err != nil {
		h.logger.Error("sign out error", zap.Error(err), zap.Stringer("userID", claims.UserID))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Profile возвращает профиль текущего пользователя.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("error fetching profile", zap.Error(err), zap.Stringer("userID", claims.UserID))
		writeError(w, http.StatusInternalServerError, "Failed to fetch profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.Profile{"profile": profile})
}

type addRefillRequest struct {
	RequestID     *uuid.UUID      `json:"requestId,omitempty"`
	Brand         string          `json:"brand" validate:"required"`
	Volume        float64         `json:"volume" validate:"gt=0"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	Location      string          `json:"location" validate:"required"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,oneof=online-transfer e-wallet"`
}

type addRefillResponse struct {
	Success      bool  `json:"success"`
	PointsEarned int64 `json:"pointsEarned"`
}

// AddRefill записывает завершённый налив и возвращает начисленные баллы.
func (h *Handler) AddRefill(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req addRefillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	if err := validation.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TotalPrice.IsNegative() {
		writeError(w, http.StatusBadRequest, "invalid fields: TotalPrice (gte)")
		return
	}

	points, err := h.service.AddRefill(r.Context(), claims.UserID, claims.Email, service.RefillInput{
		RequestID:     req.RequestID,
		Brand:         req.Brand,
		Volume:        req.Volume,
		TotalPrice:    req.TotalPrice,
		Location:      model.Location(req.Location),
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		if errors.Is(err, service.ErrUnknownBrand) || errors.Is(err, service.ErrUnknownLocation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("error inserting refill history", zap.Error(err), zap.Stringer("userID", claims.UserID))
		writeError(w, http.StatusInternalServerError, "Failed to record refill")
		return
	}

	writeJSON(w, http.StatusOK, addRefillResponse{Success: true, PointsEarned: points})
}

type refillRecordResponse struct {
	ID            uuid.UUID   `json:"id"`
	Brand         string      `json:"brand"`
	Volume        float64     `json:"volume"`
	TotalPrice    json.Number `json:"total_price"`
	Location      string      `json:"location"`
	PaymentMethod string      `json:"payment_method"`
	RewardPoints  int64       `json:"reward_points"`
	CreatedAt     string      `json:"created_at"`
}

type refillHistoryResponse struct {
	History         []refillRecordResponse `json:"history"`
	TotalPoints     int64                  `json:"totalPoints"`
	RedeemedPoints  int64                  `json:"redeemedPoints"`
	AvailablePoints int64                  `json:"availablePoints"`
}

// RefillHistory возвращает историю наливов текущего пользователя, новые первыми.
func (h *Handler) RefillHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	history, summary, err := h.service.GetRefillHistory(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("error fetching refill history", zap.Error(err), zap.Stringer("userID", claims.UserID))
		writeError(w, http.StatusInternalServerError, "Failed to fetch refill history")
		return
	}

	resp := refillHistoryResponse{
		History:         make([]refillRecordResponse, 0, len(history)),
		TotalPoints:     summary.Earned,
		RedeemedPoints:  summary.Redeemed,
		AvailablePoints: summary.Available,
	}
	for _, rec := range history {
		resp.History = append(resp.History, refillRecordResponse{
			ID:            rec.ID,
			Brand:         rec.Brand,
			Volume:        rec.Volume,
			TotalPrice:    json.Number(rec.TotalPrice.String()),
			Location:      string(rec.Location),
			PaymentMethod: string(rec.PaymentMethod),
			RewardPoints:  rec.RewardPoints,
			CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type redeemVoucherRequest struct {
	VoucherID  string `json:"voucherId" validate:"required"`
	PointsUsed int64  `json:"pointsUsed" validate:"gte=0"`
}

type redeemVoucherResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	RemainingPoints int64  `json:"remainingPoints"`
}

// RedeemVoucher обменивает баллы текущего пользователя на ваучер.
func (h *Handler) RedeemVoucher(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req redeemVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	voucher, remaining, err := h.service.RedeemVoucher(r.Context(), claims.UserID, claims.Email, req.VoucherID, req.PointsUsed)
	if err != nil {
		var insufficient *rewards.InsufficientPointsError
		switch {
		case errors.As(err, &insufficient):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "Insufficient points", Shortfall: insufficient.Shortfall})
		case errors.Is(err, service.ErrUnknownVoucher), errors.Is(err, service.ErrPointsMismatch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("error inserting voucher redemption", zap.Error(err), zap.Stringer("userID", claims.UserID))
			writeError(w, http.StatusInternalServerError, "Failed to redeem voucher")
		}
		return
	}

	writeJSON(w, http.StatusOK, redeemVoucherResponse{
		Success:         true,
		Message:         "Voucher redeemed successfully: " + voucher.Name,
		RemainingPoints: remaining,
	})
}
