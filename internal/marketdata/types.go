package marketdata

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUpstreamUnavailable wraps any failure to reach or parse the upstream
// market-data source.
var ErrUpstreamUnavailable = errors.New("market data unavailable")

// ErrNoData is returned when the upstream answered but carried no usable
// bars for the requested window.
var ErrNoData = errors.New("no market data for range")

// Quote is the latest trade snapshot for a symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Volume        int64           `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// Bar is one historical OHLCV sample.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// ValidRanges and ValidIntervals enumerate the supported historical windows.
var (
	ValidRanges    = []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y"}
	ValidIntervals = []string{"1m", "5m", "15m", "30m", "1h", "1d"}
)

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ValidRange reports whether r is a supported historical range.
func ValidRange(r string) bool { return contains(ValidRanges, r) }

// ValidInterval reports whether i is a supported bar interval.
func ValidInterval(i string) bool { return contains(ValidIntervals, i) }

// RangeFor returns the smallest standard range bucket covering d.
func RangeFor(d time.Duration) string {
	days := d.Hours() / 24
	switch {
	case days <= 1:
		return "1d"
	case days <= 5:
		return "5d"
	case days <= 31:
		return "1mo"
	case days <= 93:
		return "3mo"
	case days <= 186:
		return "6mo"
	case days <= 366:
		return "1y"
	case days <= 732:
		return "2y"
	default:
		return "5y"
	}
}
