package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Package payment wraps the payment processor behind a small interface.
// Processor failures carry machine-readable codes; callers branch on the
// code, never on message text.

// Error codes returned by processors.
const (
	// CodeNoPaymentMethod means the customer exists but has no stored
	// payment method. Recoverable through a checkout session.
	CodeNoPaymentMethod = "no_payment_method"
	// CodeCustomerMissing means no processor customer exists for the
	// tenant yet. Recoverable through a checkout session.
	CodeCustomerMissing = "customer_missing"
	// CodeCardDeclined means the stored card was declined. Not recoverable
	// by checkout; the customer must act first.
	CodeCardDeclined = "card_declined"
	// CodeInsufficientFunds means the charge failed for lack of funds.
	CodeInsufficientFunds = "insufficient_funds"
)

// Error is a structured processor failure.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment: %s: %s", e.Code, e.Message)
}

// CheckoutRecoverable reports whether a failed direct charge can be
// recovered by sending the customer through a hosted checkout session.
func CheckoutRecoverable(err error) bool {
	pe, ok := err.(*Error)
	if !ok {
		return false
	}
	return pe.Code == CodeNoPaymentMethod || pe.Code == CodeCustomerMissing
}

// Pack is a purchasable top-up pack.
type Pack struct {
	ID       string
	Units    int64
	PriceUSD int
}

// Packs is the purchasable catalog, smallest first.
var Packs = []Pack{
	{ID: "pack_small", Units: 50, PriceUSD: 5},
	{ID: "pack_medium", Units: 200, PriceUSD: 15},
	{ID: "pack_large", Units: 1000, PriceUSD: 60},
}

// PackByID returns the pack with the given ID, or false.
func PackByID(id string) (Pack, bool) {
	for _, p := range Packs {
		if p.ID == id {
			return p, true
		}
	}
	return Pack{}, false
}

// Charge is the result of a successful direct charge.
type Charge struct {
	ID     string
	PackID string
}

// CheckoutSession is a hosted payment page the customer completes manually.
type CheckoutSession struct {
	ID  string
	URL string
}

// Processor charges tenants for top-up packs.
type Processor interface {
	// ChargeDirect bills the tenant's stored payment method. Failures are
	// *Error values with a machine-readable code.
	ChargeDirect(ctx context.Context, tenantID string, pack Pack) (*Charge, error)
	// CreateCheckout opens a hosted checkout session for the pack.
	CreateCheckout(ctx context.Context, tenantID string, pack Pack) (*CheckoutSession, error)
}

// LocalProcessor is an in-memory Processor for development and tests.
// Tenants without a registered payment method fail direct charges with
// CodeNoPaymentMethod, exercising the checkout fallback path.
type LocalProcessor struct {
	mu          sync.Mutex
	methods     map[string]bool // tenantID -> has stored payment method
	failCode    map[string]string
	checkoutURL string
}

// NewLocalProcessor creates a LocalProcessor minting checkout URLs under
// baseURL.
func NewLocalProcessor(baseURL string) *LocalProcessor {
	return &LocalProcessor{
		methods:     make(map[string]bool),
		failCode:    make(map[string]string),
		checkoutURL: baseURL,
	}
}

var _ Processor = (*LocalProcessor)(nil)

// AddPaymentMethod registers a stored payment method for a tenant.
func (p *LocalProcessor) AddPaymentMethod(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.methods[tenantID] = true
}

// FailWith makes the next direct charges for a tenant fail with code.
func (p *LocalProcessor) FailWith(tenantID, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failCode[tenantID] = code
}

func (p *LocalProcessor) ChargeDirect(ctx context.Context, tenantID string, pack Pack) (*Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if code, ok := p.failCode[tenantID]; ok {
		return nil, &Error{Code: code, Message: "simulated failure"}
	}
	if !p.methods[tenantID] {
		return nil, &Error{Code: CodeNoPaymentMethod, Message: "no payment method on file"}
	}
	return &Charge{ID: uuid.NewString(), PackID: pack.ID}, nil
}

func (p *LocalProcessor) CreateCheckout(ctx context.Context, tenantID string, pack Pack) (*CheckoutSession, error) {
	id := uuid.NewString()
	return &CheckoutSession{
		ID:  id,
		URL: fmt.Sprintf("%s/checkout/%s?pack=%s", p.checkoutURL, id, pack.ID),
	}, nil
}
