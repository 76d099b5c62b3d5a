package identity

import (
	"context"
	"sync"

	"vaultcore/internal/apperr"
)

// Package identity resolves API tokens to principals. The vault core treats
// authentication as a pluggable concern: handlers extract a bearer token and
// ask a Provider who it belongs to.

// Principal is an authenticated caller.
type Principal struct {
	UserID string
	Email  string
}

// Provider resolves bearer tokens to principals.
type Provider interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// StaticProvider maps fixed tokens to principals. Used in development and
// tests; production deployments plug in an IdP-backed Provider.
type StaticProvider struct {
	mu     sync.RWMutex
	tokens map[string]Principal
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{tokens: make(map[string]Principal)}
}

var _ Provider = (*StaticProvider)(nil)

// Register associates a token with a principal.
func (p *StaticProvider) Register(token string, principal Principal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[token] = principal
}

func (p *StaticProvider) Authenticate(ctx context.Context, token string) (*Principal, error) {
	p.mu.RLock()
	principal, ok := p.tokens[token]
	p.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid or expired token")
	}
	out := principal
	return &out, nil
}
