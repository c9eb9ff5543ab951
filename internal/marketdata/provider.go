package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/tconn93/Day-trader/pkg/cache"
)

// Cache TTLs per spec: quotes go stale after a minute, history after an hour.
const (
	quoteTTL      = 60 * time.Second
	historicalTTL = time.Hour
)

// Provider is the market-data contract both engines consume.
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetMultipleQuotes(ctx context.Context, symbols []string) map[string]*Quote
	GetHistorical(ctx context.Context, symbol, rng, interval string) ([]Bar, error)
}

// Service implements Provider on top of the upstream chart client with a TTL
// cache and single-flight coalescing. In development mode upstream failures
// degrade to deterministic synthetic data; in production they surface.
type Service struct {
	client      *Client
	cache       *cache.TTLCache
	group       singleflight.Group
	development bool
	logger      *logrus.Entry
}

func NewService(client *Client, development bool) *Service {
	return &Service{
		client:      client,
		cache:       cache.NewTTLCache(),
		development: development,
		logger:      logrus.WithField("component", "marketdata"),
	}
}

// Close stops the cache sweeper.
func (s *Service) Close() {
	s.cache.Stop()
}

// GetQuote returns the latest quote for symbol, served from cache within the
// quote TTL.
func (s *Service) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	key := "quote:" + symbol
	if v, ok := s.cache.Get(key); ok {
		return v.(*Quote), nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		q, err := s.client.Quote(ctx, symbol)
		if err != nil {
			if !s.development {
				return nil, err
			}
			s.logger.Warnf("upstream quote failed for %s, serving synthetic: %v", symbol, err)
			q = syntheticQuote(symbol)
		}
		s.cache.Set(key, q, quoteTTL)
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote), nil
}

// GetMultipleQuotes fans out quote fetches concurrently. Symbols whose fetch
// fails are omitted from the result.
func (s *Service) GetMultipleQuotes(ctx context.Context, symbols []string) map[string]*Quote {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		quotes = make(map[string]*Quote, len(symbols))
	)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			q, err := s.GetQuote(ctx, symbol)
			if err != nil {
				s.logger.Warnf("quote fetch failed for %s: %v", symbol, err)
				return
			}
			mu.Lock()
			quotes[symbol] = q
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	return quotes
}

// GetHistorical returns ascending bars for the symbol over range/interval.
func (s *Service) GetHistorical(ctx context.Context, symbol, rng, interval string) ([]Bar, error) {
	if !ValidRange(rng) {
		return nil, fmt.Errorf("unsupported range %q", rng)
	}
	if !ValidInterval(interval) {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}

	key := fmt.Sprintf("hist:%s:%s:%s", symbol, rng, interval)
	if v, ok := s.cache.Get(key); ok {
		return v.([]Bar), nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		bars, err := s.client.Historical(ctx, symbol, rng, interval)
		if err != nil {
			if !s.development {
				return nil, err
			}
			s.logger.Warnf("upstream history failed for %s, serving synthetic: %v", symbol, err)
			bars = syntheticBars(symbol, rng, interval)
		}
		s.cache.Set(key, bars, historicalTTL)
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Bar), nil
}
