package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownBeneficiary is returned when a beneficiary cannot be resolved to
// a ledger address.
var ErrUnknownBeneficiary = errors.New("unknown beneficiary")

// BeneficiaryResolver maps caller-facing beneficiary identities to classic
// ledger addresses. Payouts are addressed to beneficiaries, not addresses,
// so the mapping lives behind this boundary.
type BeneficiaryResolver interface {
	// Resolve returns the classic address for a beneficiary.
	Resolve(ctx context.Context, beneficiary string) (string, error)
}

// StaticResolver is an in-memory beneficiary directory. It backs demo runs
// and tests; production deployments plug in their own directory.
type StaticResolver struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewStaticResolver creates a resolver seeded with the given entries.
func NewStaticResolver(entries map[string]string) *StaticResolver {
	r := &StaticResolver{
		entries: make(map[string]string, len(entries)),
	}
	for k, v := range entries {
		r.entries[k] = v
	}
	return r
}

// Add registers or replaces a beneficiary's address.
func (r *StaticResolver) Add(beneficiary, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[beneficiary] = address
}

// Resolve implements BeneficiaryResolver.
func (r *StaticResolver) Resolve(_ context.Context,
	beneficiary string) (string, error) {

	r.mu.RLock()
	defer r.mu.RUnlock()

	address, ok := r.entries[beneficiary]
	if !ok {
		return "", fmt.Errorf("%s: %w", beneficiary,
			ErrUnknownBeneficiary)
	}
	return address, nil
}

var _ BeneficiaryResolver = (*StaticResolver)(nil)
