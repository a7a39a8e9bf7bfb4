package alteration

import (
	"testing"
	"time"

	"lv-risk/internal/model"
	"lv-risk/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Unix(1_700_000_000, 0)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ramp(start, target string, seconds int64) model.Alteration {
	return model.Alteration{
		ID:          "alt-1",
		Mode:        types.AlterationSingleTrade,
		TradeRef:    "T1",
		StartPrice:  d(start),
		TargetPrice: d(target),
		DurationSec: seconds,
		StartedAt:   t0.Unix(),
	}
}

func TestInterpolate(t *testing.T) {
	t.Parallel()

	a := ramp("100", "150", 10)
	tests := []struct {
		name      string
		at        time.Duration
		price     string
		completed bool
	}{
		{name: "before_start", at: -5 * time.Second, price: "100"},
		{name: "start", at: 0, price: "100"},
		{name: "midpoint", at: 5 * time.Second, price: "125"},
		{name: "quarter", at: 2500 * time.Millisecond, price: "112.5"},
		{name: "end", at: 10 * time.Second, completed: true},
		{name: "after_end", at: time.Minute, completed: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Interpolate(a, t0.Add(tt.at))
			assert.Equal(t, tt.completed, p.Completed)
			if !tt.completed {
				assert.True(t, p.Price.Equal(d(tt.price)), "price %s", p.Price)
			}
		})
	}
}

func TestInterpolateStaysBetweenEndpoints(t *testing.T) {
	t.Parallel()

	for _, a := range []model.Alteration{ramp("100", "150", 7), ramp("2000", "1950.5", 13)} {
		lo := decimal.Min(a.StartPrice, a.TargetPrice)
		hi := decimal.Max(a.StartPrice, a.TargetPrice)
		prev := a.StartPrice
		rising := a.TargetPrice.GreaterThan(a.StartPrice)
		for ms := int64(0); ms < a.DurationSec*1000; ms += 250 {
			p := Interpolate(a, t0.Add(time.Duration(ms)*time.Millisecond))
			if !assert.False(t, p.Completed) {
				return
			}
			assert.True(t, p.Price.GreaterThanOrEqual(lo) && p.Price.LessThanOrEqual(hi), "price %s out of range", p.Price)
			if rising {
				assert.True(t, p.Price.GreaterThanOrEqual(prev))
			} else {
				assert.True(t, p.Price.LessThanOrEqual(prev))
			}
			prev = p.Price
		}
	}
}

func TestInterpolateDegenerateCompletesImmediately(t *testing.T) {
	t.Parallel()

	for _, a := range []model.Alteration{ramp("100", "150", 0), ramp("0", "150", 10), ramp("100", "-1", 10)} {
		assert.True(t, Degenerate(a))
		assert.True(t, Interpolate(a, t0).Completed)
	}
}
