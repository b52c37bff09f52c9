// Package poller drives an order through the checking state after the buyer
// returns from the gateway, querying order status at a fixed interval until
// it resolves or attempts run out.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"payment-service/internal/gateway"
)

type State string

const (
	StateChecking State = "checking"
	StateSuccess  State = "success"
	StateFailed   State = "failed"
)

// Policy bounds the polling loop. Injected so tests can run with millisecond
// intervals.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

var (
	successCounter   = metrics.GetOrCreateCounter(`poller_outcomes_total{result="success"}`)
	failedCounter    = metrics.GetOrCreateCounter(`poller_outcomes_total{result="failed"}`)
	exhaustedCounter = metrics.GetOrCreateCounter(`poller_outcomes_total{result="exhausted"}`)
)

type Poller struct {
	provider gateway.Provider
	policy   Policy
	logger   *slog.Logger
}

func New(provider gateway.Provider, policy Policy, logger *slog.Logger) *Poller {
	return &Poller{provider: provider, policy: policy, logger: logger}
}

// Await polls the order until it resolves. Pending keeps checking until
// MaxAttempts; a paid status is Success; a query error, any other status,
// exhaustion, or context cancellation is Failed. An empty order id fails
// immediately without a network call.
func (p *Poller) Await(ctx context.Context, orderID string) State {
	if orderID == "" {
		failedCounter.Inc()
		return StateFailed
	}

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		status, err := p.provider.QueryOrder(ctx, orderID)
		if err != nil {
			p.logger.ErrorContext(ctx, "Error querying order status", "orderId", orderID, "attempt", attempt, "error", err)
			failedCounter.Inc()
			return StateFailed
		}

		switch status {
		case gateway.StatusPaid:
			p.logger.InfoContext(ctx, "Order paid", "orderId", orderID, "attempt", attempt)
			successCounter.Inc()
			return StateSuccess
		case gateway.StatusPending:
			p.logger.InfoContext(ctx, "Order still pending", "orderId", orderID, "attempt", attempt)
		default:
			failedCounter.Inc()
			return StateFailed
		}

		if attempt == p.policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Context done, stopping poller", "orderId", orderID)
			failedCounter.Inc()
			return StateFailed
		case <-time.After(p.policy.Interval):
		}
	}

	p.logger.WarnContext(ctx, "Polling attempts exhausted", "orderId", orderID, "maxAttempts", p.policy.MaxAttempts)
	exhaustedCounter.Inc()
	return StateFailed
}
