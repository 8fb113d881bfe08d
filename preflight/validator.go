// Package preflight validates payout intents against live ledger state
// before any transaction is built. A rejected intent never consumes a
// sequence number, never pays a fee and never leaves a settlement record.
package preflight

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerpay/settlement/chain/xrpld"
	"github.com/ledgerpay/settlement/monitoring"
	"github.com/ledgerpay/settlement/tx"
	"github.com/ledgerpay/settlement/wallet"
)

// Reason classifies why an intent was rejected.
type Reason string

const (
	// ReasonNoDestinationTrust means the destination extends no usable
	// trust line to the issuer for the payout currency.
	ReasonNoDestinationTrust Reason = "no_destination_trust"

	// ReasonInsufficientPayerBalance means the payer's issued balance
	// does not cover the payout amount.
	ReasonInsufficientPayerBalance Reason = "insufficient_payer_balance"

	// ReasonCapExceeded means the payout amount exceeds the configured
	// per-transaction cap.
	ReasonCapExceeded Reason = "cap_exceeded"

	// ReasonIssuerPayDisabled means the payer is the issuing account and
	// direct issuer payouts are not enabled.
	ReasonIssuerPayDisabled Reason = "issuer_pay_disabled"
)

// Rejection is a policy rejection of a payout intent. It is an error so it
// can flow through error returns, but callers should treat it as a verdict
// rather than a fault.
type Rejection struct {
	// Reason is the rejection classification.
	Reason Reason

	// Detail is a human-readable explanation.
	Detail string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("payout rejected (%s): %s", r.Reason, r.Detail)
}

// Intent is a payout awaiting validation.
type Intent struct {
	// Payer is the wallet the payout is drawn from.
	Payer *wallet.Wallet

	// Destination is the beneficiary's classic address.
	Destination string

	// Amount is the issued amount to deliver. Its issuer field names the
	// issuing account the trust and balance checks run against.
	Amount tx.IssuedAmount
}

// Config holds configuration for the preflight validator.
type Config struct {
	// Ledger reads trust line state.
	Ledger Ledger

	// PerTransactionCap bounds a single payout amount. Zero disables the
	// cap.
	PerTransactionCap decimal.Decimal

	// AllowIssuerPayments permits payouts drawn directly from the
	// issuing account. Issuer payouts mint supply on the fly and skip
	// the balance check, so they are off by default.
	AllowIssuerPayments bool
}

// Ledger is the read-side ledger access the validator needs.
type Ledger interface {
	// AccountLines returns all trust lines held by an account.
	AccountLines(ctx context.Context, address string) ([]xrpld.TrustLine,
		error)
}

// Validator checks payout intents against ledger state and settlement
// policy. Checks run in a fixed order and stop at the first rejection.
type Validator struct {
	cfg *Config
}

// NewValidator creates a new preflight validator.
func NewValidator(cfg *Config) *Validator {
	return &Validator{
		cfg: cfg,
	}
}

// Check validates the intent. A nil return clears the intent for
// submission. A *Rejection return is a policy verdict; any other error
// means ledger state could not be read and the intent remains undecided.
func (v *Validator) Check(ctx context.Context, intent *Intent) error {
	if !intent.Amount.Value.IsPositive() {
		return fmt.Errorf("payout amount must be positive, got %s",
			intent.Amount.Value)
	}

	if err := v.checkDestinationTrust(ctx, intent); err != nil {
		return err
	}
	if err := v.checkPayerBalance(ctx, intent); err != nil {
		return err
	}
	return v.checkCap(intent)
}

// checkDestinationTrust verifies the destination can hold the payout asset.
func (v *Validator) checkDestinationTrust(ctx context.Context,
	intent *Intent) error {

	line, err := v.destinationLine(ctx, intent)
	if err != nil {
		return err
	}

	if line == nil || !line.Limit.IsPositive() {
		return v.reject(ReasonNoDestinationTrust, fmt.Sprintf(
			"destination %s extends no %s trust line to issuer %s",
			intent.Destination, intent.Amount.Currency,
			intent.Amount.Issuer))
	}

	return nil
}

// destinationLine finds the destination's trust line for the payout asset.
func (v *Validator) destinationLine(ctx context.Context,
	intent *Intent) (*xrpld.TrustLine, error) {

	lines, err := v.cfg.Ledger.AccountLines(ctx, intent.Destination)
	switch {
	// A destination that does not exist on the ledger holds no trust
	// lines, so this is a rejection, not a read fault.
	case errors.Is(err, xrpld.ErrAccountNotFound):
		return nil, nil

	case err != nil:
		return nil, fmt.Errorf("failed to query trust lines of "+
			"destination %s: %w", intent.Destination, err)
	}

	for i := range lines {
		if lines[i].Account == intent.Amount.Issuer &&
			lines[i].Currency == intent.Amount.Currency {

			return &lines[i], nil
		}
	}

	return nil, nil
}

// checkPayerBalance verifies the payer holds enough of the asset. Payouts
// drawn from the issuing account have no balance to check; whether they are
// allowed at all is a policy decision.
func (v *Validator) checkPayerBalance(ctx context.Context,
	intent *Intent) error {

	payer := intent.Payer.Address()
	if payer == intent.Amount.Issuer {
		if !v.cfg.AllowIssuerPayments {
			return v.reject(ReasonIssuerPayDisabled, fmt.Sprintf(
				"payer %s is the issuing account and direct "+
					"issuer payouts are disabled", payer))
		}

		log.Warnf("Payout of %s %s to %s drawn directly from issuing "+
			"account %s, minting new supply",
			intent.Amount.Value, intent.Amount.Currency,
			intent.Destination, payer)
		monitoring.IssuerDirectPayments.Inc()

		return nil
	}

	lines, err := v.cfg.Ledger.AccountLines(ctx, payer)
	if err != nil {
		return fmt.Errorf("failed to query trust lines of payer "+
			"%s: %w", payer, err)
	}

	balance := decimal.Zero
	for i := range lines {
		if lines[i].Account == intent.Amount.Issuer &&
			lines[i].Currency == intent.Amount.Currency {

			balance = lines[i].Balance
			break
		}
	}

	if balance.LessThan(intent.Amount.Value) {
		return v.reject(ReasonInsufficientPayerBalance, fmt.Sprintf(
			"payer %s holds %s %s, payout needs %s", payer,
			balance, intent.Amount.Currency, intent.Amount.Value))
	}

	return nil
}

// checkCap enforces the per-transaction amount cap. An amount exactly at the
// cap passes.
func (v *Validator) checkCap(intent *Intent) error {
	if !v.cfg.PerTransactionCap.IsPositive() {
		return nil
	}

	if intent.Amount.Value.GreaterThan(v.cfg.PerTransactionCap) {
		return v.reject(ReasonCapExceeded, fmt.Sprintf(
			"payout of %s %s exceeds per-transaction cap %s",
			intent.Amount.Value, intent.Amount.Currency,
			v.cfg.PerTransactionCap))
	}

	return nil
}

// reject records and returns a rejection.
func (v *Validator) reject(reason Reason, detail string) error {
	monitoring.PreflightRejections.WithLabelValues(string(reason)).Inc()
	log.Infof("Preflight rejection (%s): %s", reason, detail)

	return &Rejection{
		Reason: reason,
		Detail: detail,
	}
}
