// Package gateway talks to the upstream payment provider. The rest of the
// service only sees the Provider interface and the unified status vocabulary.
package gateway

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Status is the unified order status reported to callers.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
	StatusUnknown Status = "unknown"
)

type CreateOrderRequest struct {
	OrderID    string
	PackageKey string
	Title      string
	ReturnURL  string
}

type CreateOrderResult struct {
	OrderID string
	// PaymentURL is the provider-hosted page the buyer is redirected to.
	// Opaque to this service.
	PaymentURL string
}

// Provider is the capability a concrete payment provider has to offer.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error)
	QueryOrder(ctx context.Context, orderID string) (Status, error)
}

// Error covers provider rejections, transport failures and unparseable
// responses. All of them are retryable from the caller's point of view.
type Error struct {
	// Code is the provider errcode, 0 when the failure happened before a
	// well-formed provider response was obtained.
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("gateway error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport reports whether the failure happened below the provider protocol
// (connection error, timeout, unparseable body).
func (e *Error) Transport() bool {
	return e.Err != nil
}

// Registry maps provider names to implementations. Names without a
// registered implementation are a lookup error, not a panic.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, errors.Errorf("no payment provider registered for %q", name)
	}
	return p, nil
}
