package wallet

import (
	"fmt"
	"sync"
)

// Config holds the seeds for the deployment's signing roles. Either seed may
// be empty; resolving the corresponding role then fails with
// ErrWalletNotConfigured.
type Config struct {
	// IssuerSeed is the family seed of the issuing authority.
	IssuerSeed string

	// PayoutSeed is the family seed of the operating treasury.
	PayoutSeed string
}

// Registry resolves configured signing identities by role or address. At
// most one issuer and one payout wallet are active at a time; ephemeral
// wallets may be registered by the sandbox. Key material is read-only after
// registration.
type Registry struct {
	mu sync.RWMutex

	issuer *Wallet
	payout *Wallet

	// byAddress indexes every registered wallet. The set is small and
	// bounded by configuration plus sandbox provisioning.
	byAddress map[string]*Wallet
}

// NewRegistry derives wallets for all configured seeds.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	r := &Registry{
		byAddress: make(map[string]*Wallet),
	}

	if cfg.IssuerSeed != "" {
		issuer, err := FromSeed(cfg.IssuerSeed, RoleIssuer)
		if err != nil {
			return nil, fmt.Errorf("issuer seed: %w", err)
		}
		if err := r.SetIssuer(issuer); err != nil {
			return nil, err
		}
	}

	if cfg.PayoutSeed != "" {
		payout, err := FromSeed(cfg.PayoutSeed, RolePayout)
		if err != nil {
			return nil, fmt.Errorf("payout seed: %w", err)
		}
		if err := r.SetPayout(payout); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Issuer resolves the issuing authority wallet.
func (r *Registry) Issuer() (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.issuer == nil {
		return nil, fmt.Errorf("issuer: %w", ErrWalletNotConfigured)
	}
	return r.issuer, nil
}

// Payout resolves the operating treasury wallet.
func (r *Registry) Payout() (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.payout == nil {
		return nil, fmt.Errorf("payout: %w", ErrWalletNotConfigured)
	}
	return r.payout, nil
}

// ByAddress resolves a registered wallet by its classic address.
func (r *Registry) ByAddress(address string) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.byAddress[address]
	if !ok {
		return nil, fmt.Errorf("%s: %w", address, ErrWalletNotFound)
	}
	return w, nil
}

// SetIssuer registers the issuer wallet. A second registration fails so a
// deployment can never resolve two issuing authorities.
func (r *Registry) SetIssuer(w *Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.issuer != nil {
		return fmt.Errorf("issuer: %w", ErrRoleOccupied)
	}

	r.issuer = w
	r.byAddress[w.Address()] = w
	return nil
}

// SetPayout registers the payout wallet. A second registration fails.
func (r *Registry) SetPayout(w *Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.payout != nil {
		return fmt.Errorf("payout: %w", ErrRoleOccupied)
	}

	r.payout = w
	r.byAddress[w.Address()] = w
	return nil
}

// AddEphemeral registers a sandbox wallet for address lookup.
func (r *Registry) AddEphemeral(w *Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byAddress[w.Address()] = w
}

// Wallets returns all registered wallets.
func (r *Registry) Wallets() []*Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wallets := make([]*Wallet, 0, len(r.byAddress))
	for _, w := range r.byAddress {
		wallets = append(wallets, w)
	}
	return wallets
}
