package marketdata

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Synthetic data generation for development mode. Series are seeded by
// symbol so repeated calls return identical data.

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64() & math.MaxInt64)
}

func basePrice(symbol string) float64 {
	// Spread synthetic symbols across a plausible price band.
	return 20 + float64(symbolSeed(symbol)%480)
}

func syntheticQuote(symbol string) *Quote {
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))
	base := basePrice(symbol)

	prevClose := base * (1 + (rng.Float64()-0.5)*0.02)
	price := prevClose * (1 + (rng.Float64()-0.5)*0.02)

	p := decimal.NewFromFloat(round2(price))
	pc := decimal.NewFromFloat(round2(prevClose))
	change := p.Sub(pc)

	q := &Quote{
		Symbol:        symbol,
		Price:         p,
		PreviousClose: pc,
		Open:          pc,
		High:          decimal.NewFromFloat(round2(math.Max(price, prevClose) * 1.005)),
		Low:           decimal.NewFromFloat(round2(math.Min(price, prevClose) * 0.995)),
		Volume:        int64(1_000_000 + rng.Intn(9_000_000)),
		Timestamp:     time.Now().UTC(),
		Change:        change,
	}
	if !pc.IsZero() {
		q.ChangePercent = change.Div(pc).Mul(decimal.NewFromInt(100))
	}
	return q
}

func syntheticBars(symbol, rng, interval string) []Bar {
	r := rand.New(rand.NewSource(symbolSeed(symbol) ^ int64(len(rng)+len(interval)*7)))

	count := barCount(rng, interval)
	step := intervalDuration(interval)
	start := time.Now().UTC().Truncate(step).Add(-step * time.Duration(count))

	bars := make([]Bar, 0, count)
	price := basePrice(symbol)
	for i := 0; i < count; i++ {
		drift := (r.Float64() - 0.48) * 0.02 // slight upward bias
		open := price
		price = price * (1 + drift)
		high := math.Max(open, price) * (1 + r.Float64()*0.005)
		low := math.Min(open, price) * (1 - r.Float64()*0.005)

		bars = append(bars, Bar{
			Timestamp: start.Add(step * time.Duration(i)),
			Open:      round2(open),
			High:      round2(high),
			Low:       round2(low),
			Close:     round2(price),
			Volume:    int64(500_000 + r.Intn(5_000_000)),
		})
	}
	return bars
}

func barCount(rng, interval string) int {
	rangeDays := map[string]int{
		"1d": 1, "5d": 5, "1mo": 22, "3mo": 65, "6mo": 130,
		"1y": 252, "2y": 504, "5y": 1260,
	}[rng]
	if rangeDays == 0 {
		rangeDays = 22
	}
	if interval == "1d" {
		return rangeDays
	}
	perDay := int((6*time.Hour + 30*time.Minute) / intervalDuration(interval))
	count := rangeDays * perDay
	if count > 2000 {
		count = 2000
	}
	return count
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
