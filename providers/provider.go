package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrInvalidSignature means the body did not come from the provider.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedPayload means a verified body could not be decoded.
	ErrMalformedPayload = errors.New("malformed provider payload")
	// ErrTransactionNotFound is returned by VerifyTransaction for unknown references.
	ErrTransactionNotFound = errors.New("transaction not found at provider")
)

// LookupError wraps network or upstream failures of a provider lookup call.
// Callers may retry these.
type LookupError struct {
	Provider string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup failed: %v", e.Provider, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Provider is the contract every payment gateway integration implements.
type Provider interface {
	Name() string
	// VerifySignature authenticates the raw, unparsed request body.
	VerifySignature(body []byte, header http.Header) error
	// ParseEvent decodes a body that already passed VerifySignature.
	ParseEvent(body []byte) (Event, error)
	// VerifyTransaction asks the provider for the authoritative state of a
	// payment reference. Used by the redirect-confirmation path.
	VerifyTransaction(ctx context.Context, reference string) (Event, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Enricher is implemented by providers whose webhook bodies omit data their
// lookup API returns. Enrich runs before dispatch so every ingress path
// hands the dispatcher the same financial facts.
type Enricher interface {
	Enrich(ctx context.Context, ev Event) (Event, error)
}

// Complete enriches ev when the provider supports it.
func Complete(ctx context.Context, p Provider, ev Event) (Event, error) {
	en, ok := p.(Enricher)
	if !ok {
		return ev, nil
	}
	return en.Enrich(ctx, ev)
}
