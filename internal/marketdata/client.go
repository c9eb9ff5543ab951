package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// chartResponse mirrors the upstream chart endpoint JSON shape.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// Client fetches quotes and bars from the upstream chart HTTP source.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds an upstream client. timeout bounds each request; a timed
// out fetch is reported as ErrUpstreamUnavailable.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) fetchChart(ctx context.Context, symbol, rng, interval string) (*chartResponse, error) {
	u := fmt.Sprintf("%s/chart/%s?interval=%s&range=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(interval), url.QueryEscape(rng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "day-trader/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstreamUnavailable, err)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: empty result for %s", ErrUpstreamUnavailable, symbol)
	}
	return &chart, nil
}

// Quote fetches the latest snapshot for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	chart, err := c.fetchChart(ctx, symbol, "1d", "1m")
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	meta := result.Meta

	price := decimal.NewFromFloat(meta.RegularMarketPrice)
	prevClose := decimal.NewFromFloat(meta.ChartPreviousClose)

	q := &Quote{
		Symbol:        meta.Symbol,
		Price:         price,
		PreviousClose: prevClose,
		Timestamp:     time.Unix(meta.RegularMarketTime, 0).UTC(),
		Change:        price.Sub(prevClose),
	}
	if !prevClose.IsZero() {
		q.ChangePercent = q.Change.Div(prevClose).Mul(decimal.NewFromInt(100))
	}

	// Day open/high/low/volume come from the intraday bar series.
	if len(result.Indicators.Quote) > 0 && len(result.Timestamp) > 0 {
		series := result.Indicators.Quote[0]
		if len(series.Open) > 0 && series.Open[0] != nil {
			q.Open = decimal.NewFromFloat(*series.Open[0])
		}
		var high, low float64
		for i := range result.Timestamp {
			if i < len(series.High) && series.High[i] != nil && *series.High[i] > high {
				high = *series.High[i]
			}
			if i < len(series.Low) && series.Low[i] != nil && (low == 0 || *series.Low[i] < low) {
				low = *series.Low[i]
			}
			if i < len(series.Volume) && series.Volume[i] != nil {
				q.Volume += *series.Volume[i]
			}
		}
		q.High = decimal.NewFromFloat(high)
		q.Low = decimal.NewFromFloat(low)
	}

	return q, nil
}

// Historical fetches bars for symbol over the given range and interval,
// ascending by timestamp. Bars with a null close are dropped.
func (c *Client) Historical(ctx context.Context, symbol, rng, interval string) ([]Bar, error) {
	chart, err := c.fetchChart(ctx, symbol, rng, interval)
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: no quote series for %s", ErrUpstreamUnavailable, symbol)
	}
	series := result.Indicators.Quote[0]

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(series.Close) || series.Close[i] == nil {
			continue
		}
		bar := Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Close:     *series.Close[i],
		}
		if i < len(series.Open) && series.Open[i] != nil {
			bar.Open = *series.Open[i]
		}
		if i < len(series.High) && series.High[i] != nil {
			bar.High = *series.High[i]
		}
		if i < len(series.Low) && series.Low[i] != nil {
			bar.Low = *series.Low[i]
		}
		if i < len(series.Volume) && series.Volume[i] != nil {
			bar.Volume = *series.Volume[i]
		}
		bars = append(bars, bar)
	}

	return bars, nil
}
