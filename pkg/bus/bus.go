package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subjects published by the trading engines.
const (
	SubjectFills     = "papertrade.fills.%s"     // account id
	SubjectBacktests = "papertrade.backtests.%s" // backtest id
)

// FillEvent is published after a fill commits to the ledger.
type FillEvent struct {
	AccountID   string    `json:"account_id"`
	OrderID     int64     `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    int64     `json:"quantity"`
	Price       string    `json:"price"`
	AlgorithmID string    `json:"algorithm_id,omitempty"`
	FilledAt    time.Time `json:"filled_at"`
}

// BacktestEvent is published when a backtest run completes.
type BacktestEvent struct {
	BacktestID  int64     `json:"backtest_id"`
	AlgorithmID string    `json:"algorithm_id"`
	Symbol      string    `json:"symbol"`
	CompletedAt time.Time `json:"completed_at"`
}

// Publisher publishes engine events over NATS. A nil Publisher is valid and
// drops all events, so callers never need to guard on configuration.
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// Connect dials NATS. An empty URL returns a nil Publisher (publishing
// disabled).
func Connect(url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	logger := logrus.WithField("component", "bus")

	conn, err := nats.Connect(url,
		nats.Name("day-trader"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Errorf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{conn: conn, logger: logger}, nil
}

// PublishFill publishes a fill event. Errors are logged, not returned: event
// delivery is best-effort and must never fail a committed fill.
func (p *Publisher) PublishFill(evt FillEvent) {
	if p == nil {
		return
	}
	p.publish(fmt.Sprintf(SubjectFills, evt.AccountID), evt)
}

// PublishBacktest publishes a backtest-completed event.
func (p *Publisher) PublishBacktest(evt BacktestEvent) {
	if p == nil {
		return
	}
	p.publish(fmt.Sprintf(SubjectBacktests, fmt.Sprint(evt.BacktestID)), evt)
}

func (p *Publisher) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Errorf("failed to marshal event for %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Errorf("failed to publish to %s: %v", subject, err)
	}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Drain()
}
