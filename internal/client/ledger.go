package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/rewards"
)

// RefillRequest содержит данные завершённого налива для записи в журнал.
type RefillRequest struct {
	RequestID     uuid.UUID
	Brand         string
	Volume        float64
	TotalPrice    decimal.Decimal
	Location      model.Location
	PaymentMethod model.PaymentMethod
}

// History содержит историю наливов пользователя (новые записи первыми) и сводку по баллам.
type History struct {
	Records         []model.RefillRecord
	TotalPoints     int64
	RedeemedPoints  int64
	AvailablePoints int64
}

type addRefillRequest struct {
	RequestID     *uuid.UUID  `json:"requestId,omitempty"`
	Brand         string      `json:"brand"`
	Volume        float64     `json:"volume"`
	TotalPrice    json.Number `json:"totalPrice"`
	Location      string      `json:"location"`
	PaymentMethod string      `json:"paymentMethod"`
}

type addRefillResponse struct {
	Success      bool  `json:"success"`
	PointsEarned int64 `json:"pointsEarned"`
}

// RecordRefill записывает налив и возвращает начисленные сервисом баллы.
func (c *Client) RecordRefill(ctx context.Context, token string, req RefillRequest) (int64, error) {
	if token == "" {
		return 0, ErrUnauthorized
	}

	body := addRefillRequest{
		Brand:         req.Brand,
		Volume:        req.Volume,
		TotalPrice:    json.Number(req.TotalPrice.String()),
		Location:      string(req.Location),
		PaymentMethod: string(req.PaymentMethod),
	}
	if req.RequestID != uuid.Nil {
		id := req.RequestID
		body.RequestID = &id
	}

	var resp addRefillResponse
	if err := c.do(ctx, http.MethodPost, "/add-refill", token, body, &resp); err != nil {
		return 0, err
	}
	return resp.PointsEarned, nil
}

type refillRecordPayload struct {
	ID            uuid.UUID   `json:"id"`
	Brand         string      `json:"brand"`
	Volume        float64     `json:"volume"`
	TotalPrice    json.Number `json:"total_price"`
	Location      string      `json:"location"`
	PaymentMethod string      `json:"payment_method"`
	RewardPoints  int64       `json:"reward_points"`
	CreatedAt     time.Time   `json:"created_at"`
}

type historyResponse struct {
	History         []refillRecordPayload `json:"history"`
	TotalPoints     int64                 `json:"totalPoints"`
	RedeemedPoints  int64                 `json:"redeemedPoints"`
	AvailablePoints int64                 `json:"availablePoints"`
}

// ListHistory возвращает историю наливов текущего пользователя.
func (c *Client) ListHistory(ctx context.Context, token string) (*History, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, "/refill-history", token, nil, &resp); err != nil {
		return nil, err
	}

	h := &History{
		Records:         make([]model.RefillRecord, 0, len(resp.History)),
		TotalPoints:     resp.TotalPoints,
		RedeemedPoints:  resp.RedeemedPoints,
		AvailablePoints: resp.AvailablePoints,
	}
	for _, r := range resp.History {
		price, err := decimal.NewFromString(r.TotalPrice.String())
		if err != nil {
			return nil, fmt.Errorf("parse total price %q: %w", r.TotalPrice, err)
		}

		h.Records = append(h.Records, model.RefillRecord{
			ID:            r.ID,
			Brand:         r.Brand,
			Volume:        r.Volume,
			TotalPrice:    price,
			Location:      model.Location(r.Location),
			PaymentMethod: model.PaymentMethod(r.PaymentMethod),
			RewardPoints:  r.RewardPoints,
			CreatedAt:     r.CreatedAt,
		})
	}
	return h, nil
}

// Profile возвращает профиль текущего пользователя.
func (c *Client) Profile(ctx context.Context, token string) (*model.Profile, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	var resp struct {
		Profile *model.Profile `json:"profile"`
	}
	if err := c.do(ctx, http.MethodGet, "/profile", token, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Profile == nil {
		return nil, fmt.Errorf("empty profile")
	}
	return resp.Profile, nil
}

type redeemVoucherRequest struct {
	VoucherID  string `json:"voucherId"`
	PointsUsed int64  `json:"pointsUsed"`
}

type redeemVoucherResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	RemainingPoints int64  `json:"remainingPoints"`
}

// RedeemVoucher обменивает баллы на ваучер и возвращает остаток баллов.
// При нехватке баллов возвращается *rewards.InsufficientPointsError.
func (c *Client) RedeemVoucher(ctx context.Context, token string, v model.Voucher) (int64, error) {
	if token == "" {
		return 0, ErrUnauthorized
	}

	var resp redeemVoucherResponse
	err := c.do(ctx, http.MethodPost, "/redeem-voucher", token, redeemVoucherRequest{
		VoucherID:  v.ID,
		PointsUsed: v.PointsRequired,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return 0, &rewards.InsufficientPointsError{
				Required:  v.PointsRequired,
				Balance:   v.PointsRequired - apiErr.Shortfall,
				Shortfall: apiErr.Shortfall,
			}
		}
		return 0, err
	}
	return resp.RemainingPoints, nil
}
