package alteration

import (
	"time"

	"lv-risk/internal/model"

	"github.com/shopspring/decimal"
)

// Progress is the state of an alteration at one instant.
type Progress struct {
	Price     decimal.Decimal
	Fraction  decimal.Decimal
	Completed bool
}

// Degenerate reports records that cannot produce a price: non-positive
// duration or non-positive endpoints. They complete immediately.
func Degenerate(a model.Alteration) bool {
	return a.DurationSec <= 0 || !a.StartPrice.IsPositive() || !a.TargetPrice.IsPositive()
}

// Interpolate moves the price linearly from StartPrice to TargetPrice over the
// duration. Before the start instant the fraction is clamped to zero; at or
// after the end the alteration is completed and carries no price.
func Interpolate(a model.Alteration, now time.Time) Progress {
	if Degenerate(a) {
		return Progress{Completed: true}
	}
	elapsed := now.Sub(a.StartTime())
	if elapsed < 0 {
		elapsed = 0
	}
	total := a.Duration()
	if elapsed >= total {
		return Progress{Completed: true}
	}
	fraction := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(total)))
	price := a.StartPrice.Add(a.TargetPrice.Sub(a.StartPrice).Mul(fraction))
	return Progress{Price: price, Fraction: fraction}
}
