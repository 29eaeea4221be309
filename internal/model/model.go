// Package model содержит доменные сущности сервиса Greenfill Hub.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Brand описывает продаваемый гель для душа и его цену за 10 мл.
type Brand struct {
	ID            string
	Name          string
	PricePerTenMl decimal.Decimal
}

// Location описывает код автомата-дозатора из закрытого набора.
type Location string

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentOnlineTransfer PaymentMethod = "online-transfer"
	PaymentEWallet        PaymentMethod = "e-wallet"
)

// Valid сообщает, является ли способ оплаты одним из двух допустимых.
func (m PaymentMethod) Valid() bool {
	return m == PaymentOnlineTransfer || m == PaymentEWallet
}

// Order описывает заказ, находящийся в работе на киоске. Создаётся только через catalog.NewOrder.
type Order struct {
	ID            uuid.UUID
	Brand         Brand
	Volume        float64
	Location      Location
	TotalPrice    decimal.Decimal
	PaymentMethod PaymentMethod
}

// User представляет зарегистрированного пользователя.
type User struct {
	ID           uuid.UUID
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}

// Profile содержит публичную часть данных пользователя.
type Profile struct {
	UserID    uuid.UUID `json:"userId"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// RefillRecord описывает факт завершённой выдачи.
type RefillRecord struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Email         string
	Brand         string
	Volume        float64
	TotalPrice    decimal.Decimal
	Location      Location
	PaymentMethod PaymentMethod
	RewardPoints  int64
	CreatedAt     time.Time
}

// Voucher описывает позицию каталога наград, обмениваемую на баллы.
type Voucher struct {
	ID             string
	Name           string
	Description    string
	PointsRequired int64
	DiscountAmount int64
}

// VoucherRedemption фиксирует обмен баллов на ваучер.
type VoucherRedemption struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	VoucherID  string
	PointsUsed int64
	RedeemedAt time.Time
}

// PointsSummary содержит начисленные, потраченные и доступные баллы пользователя.
type PointsSummary struct {
	Earned    int64
	Redeemed  int64
	Available int64
}

// Session содержит личность и bearer-токен текущего пользователя.
type Session struct {
	UserID      uuid.UUID
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}
