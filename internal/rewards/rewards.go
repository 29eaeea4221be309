// Package rewards содержит правила начисления и списания бонусных баллов.
// Правило используется и сервером при записи налива, и киоском при отображении профиля.
package rewards

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenfill-hub/internal/model"
)

// InsufficientPointsError возвращается при попытке обменять ваучер без достаточного баланса.
type InsufficientPointsError struct {
	Required  int64
	Balance   int64
	Shortfall int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: need %d more", e.Shortfall)
}

// PointsEarned начисляет 1 балл за каждую полную единицу валюты; дробная часть отбрасывается.
func PointsEarned(totalPrice decimal.Decimal) int64 {
	if totalPrice.IsNegative() {
		return 0
	}
	return totalPrice.Floor().IntPart()
}

// CanRedeem сообщает, хватает ли баланса на ваучер.
func CanRedeem(balance int64, v model.Voucher) bool {
	return balance >= v.PointsRequired
}

// Redeem списывает стоимость ваучера и возвращает новый баланс.
func Redeem(balance int64, v model.Voucher) (int64, error) {
	if !CanRedeem(balance, v) {
		return balance, &InsufficientPointsError{
			Required:  v.PointsRequired,
			Balance:   balance,
			Shortfall: v.PointsRequired - balance,
		}
	}
	return balance - v.PointsRequired, nil
}

// Total суммирует баллы по истории наливов.
func Total(records []model.RefillRecord) int64 {
	var sum int64
	for _, r := range records {
		sum += r.RewardPoints
	}
	return sum
}
