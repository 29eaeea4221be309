// Package catalog содержит статические справочники: бренды, локации автоматов и ваучеры.
package catalog

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/pricing"
)

var (
	// ErrUnknownLocation возвращается для кода локации вне каталога.
	ErrUnknownLocation = errors.New("unknown dispenser location")
	// ErrUnknownBrand возвращается для бренда вне каталога.
	ErrUnknownBrand = errors.New("unknown brand")
	// ErrUnknownVoucher возвращается для ваучера вне каталога.
	ErrUnknownVoucher = errors.New("unknown voucher")
)

var brands = []model.Brand{
	{ID: "lifebuoy", Name: "Lifebuoy", PricePerTenMl: decimal.RequireFromString("0.50")},
	{ID: "shokubutsu", Name: "Shokubutsu", PricePerTenMl: decimal.RequireFromString("0.45")},
	{ID: "summerie", Name: "Summerie", PricePerTenMl: decimal.RequireFromString("0.55")},
	{ID: "pureen", Name: "Pureen", PricePerTenMl: decimal.RequireFromString("0.60")},
	{ID: "antabax", Name: "Antabax", PricePerTenMl: decimal.RequireFromString("0.52")},
}

var locations = []model.Location{
	"KK1", "KK2", "KK3", "KK4", "KK5", "KK6", "KK7",
	"KK8", "KK9", "KK10", "KK11", "KK12", "KK13",
}

var vouchers = []model.Voucher{
	{ID: "1", Name: "10% Off Next Purchase", Description: "Get 10% discount on your next refill", PointsRequired: 50, DiscountAmount: 10},
	{ID: "2", Name: "RM5 Off", Description: "RM5 discount on purchases above RM20", PointsRequired: 100, DiscountAmount: 5},
	{ID: "3", Name: "Free 50ml Refill", Description: "Get 50ml refill of any brand for free", PointsRequired: 150, DiscountAmount: 0},
	{ID: "4", Name: "20% Off Premium Brands", Description: "20% off on Pureen and Antabax brands", PointsRequired: 200, DiscountAmount: 20},
}

// Brands возвращает бренды в фиксированном порядке.
func Brands() []model.Brand {
	return append([]model.Brand(nil), brands...)
}

// Locations возвращает все коды автоматов.
func Locations() []model.Location {
	return append([]model.Location(nil), locations...)
}

// Vouchers возвращает каталог ваучеров.
func Vouchers() []model.Voucher {
	return append([]model.Voucher(nil), vouchers...)
}

// BrandByID ищет бренд по идентификатору.
func BrandByID(id string) (model.Brand, bool) {
	for _, b := range brands {
		if b.ID == id {
			return b, true
		}
	}
	return model.Brand{}, false
}

// BrandByName ищет бренд по отображаемому имени без учёта регистра.
func BrandByName(name string) (model.Brand, bool) {
	for _, b := range brands {
		if strings.EqualFold(b.Name, name) {
			return b, true
		}
	}
	return model.Brand{}, false
}

// IsLocation сообщает, входит ли код в набор автоматов.
func IsLocation(loc model.Location) bool {
	for _, l := range locations {
		if l == loc {
			return true
		}
	}
	return false
}

// VoucherByID ищет ваучер по идентификатору.
func VoucherByID(id string) (model.Voucher, bool) {
	for _, v := range vouchers {
		if v.ID == id {
			return v, true
		}
	}
	return model.Voucher{}, false
}

// NewOrder собирает заказ из выбранных бренда, объёма и локации и считает его стоимость.
func NewOrder(brandID string, volumeMl float64, loc model.Location) (*model.Order, error) {
	brand, ok := BrandByID(brandID)
	if !ok {
		return nil, ErrUnknownBrand
	}
	if !IsLocation(loc) {
		return nil, ErrUnknownLocation
	}

	total, err := pricing.Price(brand, volumeMl)
	if err != nil {
		return nil, err
	}

	return &model.Order{
		ID:         uuid.New(),
		Brand:      brand,
		Volume:     volumeMl,
		Location:   loc,
		TotalPrice: total,
	}, nil
}
