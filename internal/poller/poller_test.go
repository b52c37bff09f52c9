package poller

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"payment-service/internal/gateway"
)

type stubProvider struct {
	calls    int
	statuses []gateway.Status
	err      error
}

func (s *stubProvider) CreateOrder(context.Context, gateway.CreateOrderRequest) (*gateway.CreateOrderResult, error) {
	panic("not used")
}

func (s *stubProvider) QueryOrder(context.Context, string) (gateway.Status, error) {
	s.calls++
	if s.err != nil {
		return gateway.StatusUnknown, s.err
	}
	if s.calls <= len(s.statuses) {
		return s.statuses[s.calls-1], nil
	}
	return s.statuses[len(s.statuses)-1], nil
}

func testPolicy() Policy {
	return Policy{MaxAttempts: 10, Interval: time.Millisecond}
}

func TestAwait_PaidImmediately(t *testing.T) {
	provider := &stubProvider{statuses: []gateway.Status{gateway.StatusPaid}}
	p := New(provider, testPolicy(), slog.Default())

	assert.Equal(t, StateSuccess, p.Await(context.Background(), "ORDER_1"))
	assert.Equal(t, 1, provider.calls)
}

func TestAwait_PaidAfterPending(t *testing.T) {
	provider := &stubProvider{statuses: []gateway.Status{
		gateway.StatusPending,
		gateway.StatusPending,
		gateway.StatusPaid,
	}}
	p := New(provider, testPolicy(), slog.Default())

	assert.Equal(t, StateSuccess, p.Await(context.Background(), "ORDER_1"))
	assert.Equal(t, 3, provider.calls)
}

func TestAwait_ExhaustsAttempts(t *testing.T) {
	provider := &stubProvider{statuses: []gateway.Status{gateway.StatusPending}}
	p := New(provider, testPolicy(), slog.Default())

	assert.Equal(t, StateFailed, p.Await(context.Background(), "ORDER_1"))
	assert.Equal(t, 10, provider.calls, "no call is made past the attempt limit")
}

func TestAwait_QueryErrorFails(t *testing.T) {
	provider := &stubProvider{err: errors.New("gateway unreachable")}
	p := New(provider, testPolicy(), slog.Default())

	assert.Equal(t, StateFailed, p.Await(context.Background(), "ORDER_1"))
	assert.Equal(t, 1, provider.calls)
}

func TestAwait_UnknownStatusFails(t *testing.T) {
	provider := &stubProvider{statuses: []gateway.Status{gateway.StatusUnknown}}
	p := New(provider, testPolicy(), slog.Default())

	assert.Equal(t, StateFailed, p.Await(context.Background(), "ORDER_1"))
	assert.Equal(t, 1, provider.calls)
}

func TestAwait_NoOrderID(t *testing.T) {
	provider := &stubProvider{statuses: []gateway.Status{gateway.StatusPaid}}
	p := New(provider, testPolicy(), slog.Default())

	assert.Equal(t, StateFailed, p.Await(context.Background(), ""))
	assert.Equal(t, 0, provider.calls, "no network call without an order id")
}

func TestAwait_ContextCancelled(t *testing.T) {
	provider := &stubProvider{statuses: []gateway.Status{gateway.StatusPending}}
	p := New(provider, Policy{MaxAttempts: 10, Interval: time.Minute}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, StateFailed, p.Await(ctx, "ORDER_1"))
	assert.Equal(t, 1, provider.calls)
}
