// Package pricing вычисляет стоимость налива по бренду и объёму.
package pricing

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenfill-hub/internal/model"
)

// ErrInvalidVolume возвращается, если объём не является положительным конечным числом.
var ErrInvalidVolume = errors.New("invalid volume")

var ten = decimal.NewFromInt(10)

// Price возвращает стоимость volumeMl миллилитров бренда: (volumeMl / 10) * цена за 10 мл.
// Округление не выполняется, чтобы не накапливать ошибку при последующем расчёте баллов.
func Price(brand model.Brand, volumeMl float64) (decimal.Decimal, error) {
	if math.IsNaN(volumeMl) || math.IsInf(volumeMl, 0) || volumeMl <= 0 {
		return decimal.Zero, ErrInvalidVolume
	}

	return decimal.NewFromFloat(volumeMl).Div(ten).Mul(brand.PricePerTenMl), nil
}

// Format форматирует сумму для отображения: "RM 7.50".
func Format(amount decimal.Decimal) string {
	return "RM " + amount.StringFixed(2)
}
