// Package trust manages the credit relationships that issued-asset payouts
// ride on. A beneficiary can only receive an issued asset after extending a
// trust line to its issuer, so payout provisioning always runs through this
// package first.
package trust

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerpay/settlement/chain/xrpld"
	"github.com/ledgerpay/settlement/monitoring"
	"github.com/ledgerpay/settlement/tx"
	"github.com/ledgerpay/settlement/wallet"
)

var (
	// ErrZeroLimit is returned when EstablishTrust is called with a zero
	// or negative limit. A zero limit tears a line down, which is
	// RemoveTrust's job.
	ErrZeroLimit = errors.New("trust limit must be positive, use " +
		"RemoveTrust to tear a line down")
)

// Ledger is the read-side ledger access the manager needs.
type Ledger interface {
	// AccountLines returns all trust lines held by an account.
	AccountLines(ctx context.Context, address string) ([]xrpld.TrustLine,
		error)
}

// Submitter signs and submits trust line transactions on behalf of a wallet.
type Submitter interface {
	// SubmitTrustSet submits a trust line update for the holder wallet
	// and awaits its settlement outcome.
	SubmitTrustSet(ctx context.Context, holder *wallet.Wallet,
		limit tx.IssuedAmount) (*xrpld.Outcome, error)
}

// Config holds configuration for the trust line manager.
type Config struct {
	// Ledger reads trust line state.
	Ledger Ledger

	// Submitter submits trust line transactions.
	Submitter Submitter
}

// Manager inspects and mutates trust lines. All reads go straight to the
// ledger; nothing is cached, so a line established out of band is visible
// immediately.
type Manager struct {
	cfg *Config
}

// NewManager creates a new trust line manager.
func NewManager(cfg *Config) *Manager {
	return &Manager{
		cfg: cfg,
	}
}

// Line returns the holder's trust line for the given currency and issuer, or
// nil if no such line exists.
func (m *Manager) Line(ctx context.Context, holder, currency,
	issuer string) (*xrpld.TrustLine, error) {

	lines, err := m.cfg.Ledger.AccountLines(ctx, holder)
	if err != nil {
		// An account that does not exist yet holds no lines.
		if errors.Is(err, xrpld.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trust lines of "+
			"%s: %w", holder, err)
	}

	for i := range lines {
		if lines[i].Account == issuer && lines[i].Currency == currency {
			return &lines[i], nil
		}
	}

	return nil, nil
}

// HasTrust reports whether the holder extends a positive-limit trust line to
// the issuer for the given currency.
func (m *Manager) HasTrust(ctx context.Context, holder, currency,
	issuer string) (bool, error) {

	line, err := m.Line(ctx, holder, currency, issuer)
	if err != nil {
		return false, err
	}

	return line != nil && line.Limit.IsPositive(), nil
}

// EstablishTrust ensures the holder extends at least the requested trust
// limit to the issuer. When an existing line already covers the limit no
// transaction is submitted and a nil outcome is returned; establishing trust
// is idempotent. A settled non-success outcome is returned alongside an
// error.
func (m *Manager) EstablishTrust(ctx context.Context, holder *wallet.Wallet,
	limit tx.IssuedAmount) (*xrpld.Outcome, error) {

	if !limit.Value.IsPositive() {
		return nil, ErrZeroLimit
	}

	line, err := m.Line(
		ctx, holder.Address(), limit.Currency, limit.Issuer,
	)
	if err != nil {
		return nil, err
	}

	if line != nil && line.Limit.GreaterThanOrEqual(limit.Value) {
		log.Debugf("Trust line %s/%s from %s already at limit %s, "+
			"nothing to do", limit.Currency, limit.Issuer,
			holder.Address(), line.Limit)
		return nil, nil
	}

	log.Infof("Establishing trust line %s/%s from %s with limit %s",
		limit.Currency, limit.Issuer, holder.Address(), limit.Value)

	outcome, err := m.cfg.Submitter.SubmitTrustSet(ctx, holder, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to submit trust line "+
			"update: %w", err)
	}

	if !outcome.Settled() {
		return outcome, fmt.Errorf("trust line update for %s not "+
			"settled: %s outcome with code %q", holder.Address(),
			outcome.Status, outcome.ResultCode)
	}

	monitoring.TrustLinesEstablished.Inc()

	return outcome, nil
}

// RemoveTrust submits a zero-limit update for the holder's trust line. The
// settlement outcome is returned verbatim, including failures: a line with a
// non-zero balance cannot be removed and the caller needs to see the
// ledger's result code to understand why. A nil outcome means no line
// existed.
func (m *Manager) RemoveTrust(ctx context.Context, holder *wallet.Wallet,
	currency, issuer string) (*xrpld.Outcome, error) {

	line, err := m.Line(ctx, holder.Address(), currency, issuer)
	if err != nil {
		return nil, err
	}
	if line == nil {
		log.Debugf("No trust line %s/%s from %s to remove", currency,
			issuer, holder.Address())
		return nil, nil
	}

	log.Infof("Removing trust line %s/%s from %s", currency, issuer,
		holder.Address())

	limit := tx.IssuedAmount{
		Currency: currency,
		Issuer:   issuer,
	}
	return m.cfg.Submitter.SubmitTrustSet(ctx, holder, limit)
}
