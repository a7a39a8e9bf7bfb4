package marketdata

import (
	"errors"
	"hash/fnv"
	"math"
	"strconv"
	"time"
)

// DefaultCandleVolatility is the wick size of a one-minute bar as a fraction
// of price.
const DefaultCandleVolatility = 0.0004

type Candle struct {
	Time      int64  `json:"time"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
	Synthetic bool   `json:"synthetic"`
}

type SyntheticParams struct {
	Pair       string
	Interval   time.Duration
	Now        time.Time
	Price      float64
	PrevClose  *float64
	Volatility float64
}

// SyntheticCandle builds the bar for the interval bucket containing Now. The
// bar opens at the previous close (or Price when there is none) and closes at
// Price. Wicks and volume are pseudo-random but repeatable for the same pair
// and bucket.
func SyntheticCandle(p SyntheticParams) (Candle, error) {
	if p.Interval < time.Second {
		return Candle{}, errors.New("invalid interval")
	}
	if p.Price <= 0 {
		return Candle{}, errors.New("invalid price")
	}
	vol := p.Volatility
	if vol <= 0 {
		vol = DefaultCandleVolatility
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	step := int64(p.Interval.Seconds())
	bucket := now.Unix() - now.Unix()%step
	seed := pairSeed(p.Pair) + bucket

	open := p.Price
	if p.PrevClose != nil && *p.PrevClose > 0 {
		open = *p.PrevClose
	}
	close := p.Price
	high, low := wickRange(seed, open, close, wickSize(close, vol, p.Interval, bucket))
	prec := PricePrecision(close)
	return Candle{
		Time:      bucket,
		Open:      FormatPrice(open, prec),
		High:      FormatPrice(high, prec),
		Low:       FormatPrice(low, prec),
		Close:     FormatPrice(close, prec),
		Volume:    strconv.FormatInt(syntheticVolume(seed, open, close), 10),
		Synthetic: true,
	}, nil
}

// wickSize grows with the square root of the bar length, so an hourly bar has
// wicks roughly 7.7x those of a one-minute bar.
func wickSize(price, vol float64, interval time.Duration, bucket int64) float64 {
	minutes := interval.Minutes()
	if minutes < 1 {
		minutes = 1
	}
	return price * vol * math.Sqrt(minutes) * sessionMultiplier(bucket)
}

func wickRange(seed int64, open, close, size float64) (float64, float64) {
	h := math.Max(open, close) + math.Abs(randNorm(seed+11))*size
	l := math.Min(open, close) - math.Abs(randNorm(seed+29))*size
	if l <= 0 {
		l = math.Min(open, close)
	}
	return h, l
}

func syntheticVolume(seed int64, open, close float64) int64 {
	move := 0.0
	if open > 0 {
		move = math.Abs(close-open) / open
	}
	base := 100 + 900*rand01(seed+47)
	return int64(math.Round(base * (1 + move*10000)))
}

func sessionMultiplier(t int64) float64 {
	hour := time.Unix(t, 0).UTC().Hour()
	switch {
	case hour >= 7 && hour < 11:
		return 1.6
	case hour >= 11 && hour < 13:
		return 1.3
	case hour >= 13 && hour < 17:
		return 2.0
	case hour >= 17 && hour < 20:
		return 1.5
	case hour >= 20 && hour < 23:
		return 1.1
	}
	return 0.6
}

// PricePrecision picks display decimals from price magnitude: cheap
// instruments get more digits, expensive ones fewer.
func PricePrecision(price float64) int {
	p := math.Abs(price)
	switch {
	case p >= 1000:
		return 2
	case p >= 100:
		return 3
	case p >= 10:
		return 4
	case p >= 1:
		return 5
	case p >= 0.01:
		return 6
	}
	return 8
}

func pairSeed(pair string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pair))
	return int64(h.Sum32())
}

func randNorm(seed int64) float64 {
	u1 := rand01(seed + 17)
	u2 := rand01(seed + 71)
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func rand01(seed int64) float64 {
	x := uint64(seed)
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	return float64(x%1000000)/1000000 + 0.000001
}

// FormatPrice rounds to prec decimals and trims trailing zeros.
func FormatPrice(v float64, prec int) string {
	pow := math.Pow10(prec)
	v = math.Round(v*pow) / pow
	out := strconv.FormatFloat(v, 'f', prec, 64)
	for len(out) > 1 && out[len(out)-1] == '0' && out[len(out)-2] != '.' {
		out = out[:len(out)-1]
	}
	if out[len(out)-1] == '.' {
		out = out[:len(out)-1]
	}
	return out
}
