package preflight

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerpay/settlement/chain/xrpld"
	"github.com/ledgerpay/settlement/tx"
	"github.com/ledgerpay/settlement/wallet"
)

const (
	issuerSeed    = "snoPBrXtMeMyMHUVTgbuqAfg1SUTb"
	issuerAddress = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	destination   = "rrrrrrrrrrrrrrrrrrrrrhoLvTp"
)

// fakeLedger serves canned trust lines per account.
type fakeLedger struct {
	lines map[string][]xrpld.TrustLine

	// notFound marks accounts that do not exist on the ledger.
	notFound map[string]bool
}

func (f *fakeLedger) AccountLines(_ context.Context,
	address string) ([]xrpld.TrustLine, error) {

	if f.notFound[address] {
		return nil, fmt.Errorf("%s: %w", address,
			xrpld.ErrAccountNotFound)
	}

	return f.lines[address], nil
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// testSetup returns a payer wallet and a ledger where the destination
// trusts the issuer and the payer holds the given balance.
func testSetup(t *testing.T, payerBalance string) (*wallet.Wallet,
	*fakeLedger) {

	t.Helper()

	payer, _, err := wallet.Generate(wallet.RolePayout)
	require.NoError(t, err)

	ledger := &fakeLedger{lines: map[string][]xrpld.TrustLine{
		destination: {{
			Account:  issuerAddress,
			Currency: "USD",
			Limit:    dec(t, "1000000"),
		}},
		payer.Address(): {{
			Account:  issuerAddress,
			Currency: "USD",
			Limit:    dec(t, "1000000"),
			Balance:  dec(t, payerBalance),
		}},
	}}

	return payer, ledger
}

func intent(t *testing.T, payer *wallet.Wallet, amount string) *Intent {
	t.Helper()

	return &Intent{
		Payer:       payer,
		Destination: destination,
		Amount: tx.IssuedAmount{
			Currency: "USD",
			Issuer:   issuerAddress,
			Value:    dec(t, amount),
		},
	}
}

// requireRejected asserts the error is a rejection with the given reason.
func requireRejected(t *testing.T, err error, reason Reason) {
	t.Helper()

	var rejection *Rejection
	require.ErrorAs(t, err, &rejection)
	require.Equal(t, reason, rejection.Reason)
}

// TestCheckPasses verifies a fully covered intent clears preflight.
func TestCheckPasses(t *testing.T) {
	t.Parallel()

	payer, ledger := testSetup(t, "100")
	v := NewValidator(&Config{Ledger: ledger})

	err := v.Check(context.Background(), intent(t, payer, "25"))
	require.NoError(t, err)
}

// TestCheckNoDestinationTrust verifies payouts to destinations without a
// usable trust line are rejected.
func TestCheckNoDestinationTrust(t *testing.T) {
	t.Parallel()

	payer, ledger := testSetup(t, "100")
	v := NewValidator(&Config{Ledger: ledger})

	tests := []struct {
		name  string
		lines []xrpld.TrustLine
	}{{
		name: "no lines",
	}, {
		name: "wrong currency",
		lines: []xrpld.TrustLine{{
			Account:  issuerAddress,
			Currency: "EUR",
			Limit:    dec(t, "100"),
		}},
	}, {
		name: "wrong issuer",
		lines: []xrpld.TrustLine{{
			Account:  "rSomeOtherIssuer",
			Currency: "USD",
			Limit:    dec(t, "100"),
		}},
	}, {
		name: "zero limit",
		lines: []xrpld.TrustLine{{
			Account:  issuerAddress,
			Currency: "USD",
		}},
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			ledger.lines[destination] = test.lines

			err := v.Check(
				context.Background(), intent(t, payer, "25"),
			)
			requireRejected(t, err, ReasonNoDestinationTrust)
		})
	}
}

// TestCheckDestinationAccountMissing verifies a payout to an account that
// does not exist on the ledger is rejected like one without a trust line.
func TestCheckDestinationAccountMissing(t *testing.T) {
	t.Parallel()

	payer, ledger := testSetup(t, "100")
	delete(ledger.lines, destination)
	ledger.notFound = map[string]bool{destination: true}

	v := NewValidator(&Config{Ledger: ledger})

	err := v.Check(context.Background(), intent(t, payer, "25"))
	requireRejected(t, err, ReasonNoDestinationTrust)
}

// TestCheckPayerAccountMissing verifies a missing payer account surfaces as
// a plain read error: it points at broken configuration, not policy.
func TestCheckPayerAccountMissing(t *testing.T) {
	t.Parallel()

	payer, ledger := testSetup(t, "100")
	ledger.notFound = map[string]bool{payer.Address(): true}

	v := NewValidator(&Config{Ledger: ledger})

	err := v.Check(context.Background(), intent(t, payer, "25"))
	require.ErrorIs(t, err, xrpld.ErrAccountNotFound)

	var rejection *Rejection
	require.False(t, errors.As(err, &rejection))
}

// TestCheckInsufficientBalance verifies the payer balance check, including
// the exact-balance boundary.
func TestCheckInsufficientBalance(t *testing.T) {
	t.Parallel()

	payer, ledger := testSetup(t, "25")
	v := NewValidator(&Config{Ledger: ledger})

	ctx := context.Background()

	require.NoError(t, v.Check(ctx, intent(t, payer, "25")))

	err := v.Check(ctx, intent(t, payer, "25.01"))
	requireRejected(t, err, ReasonInsufficientPayerBalance)
}

// TestCheckOrdering verifies the destination trust check fires before the
// balance check when both would reject.
func TestCheckOrdering(t *testing.T) {
	t.Parallel()

	payer, ledger := testSetup(t, "0")
	ledger.lines[destination] = nil

	v := NewValidator(&Config{Ledger: ledger})

	err := v.Check(context.Background(), intent(t, payer, "25"))
	requireRejected(t, err, ReasonNoDestinationTrust)
}

// TestCheckCap verifies the per-transaction cap, with the cap itself
// passing.
func TestCheckCap(t *testing.T) {
	t.Parallel()

	payer, ledger := testSetup(t, "10000")
	v := NewValidator(&Config{
		Ledger:            ledger,
		PerTransactionCap: dec(t, "100"),
	})

	ctx := context.Background()

	require.NoError(t, v.Check(ctx, intent(t, payer, "100")))

	err := v.Check(ctx, intent(t, payer, "100.00001"))
	requireRejected(t, err, ReasonCapExceeded)
}

// TestCheckIssuerPayer verifies issuer-drawn payouts are policy gated and
// skip the balance check when allowed.
func TestCheckIssuerPayer(t *testing.T) {
	t.Parallel()

	issuer, err := wallet.FromSeed(issuerSeed, wallet.RoleIssuer)
	require.NoError(t, err)

	ledger := &fakeLedger{lines: map[string][]xrpld.TrustLine{
		destination: {{
			Account:  issuerAddress,
			Currency: "USD",
			Limit:    dec(t, "1000000"),
		}},
	}}

	ctx := context.Background()

	v := NewValidator(&Config{Ledger: ledger})
	perr := v.Check(ctx, intent(t, issuer, "25"))
	requireRejected(t, perr, ReasonIssuerPayDisabled)

	// The issuer holds no balance anywhere, yet the payout clears once
	// issuer payments are enabled.
	v = NewValidator(&Config{
		Ledger:              ledger,
		AllowIssuerPayments: true,
	})
	require.NoError(t, v.Check(ctx, intent(t, issuer, "25")))
}

// TestCheckNonPositiveAmount verifies zero and negative amounts fail as
// plain errors, not policy rejections.
func TestCheckNonPositiveAmount(t *testing.T) {
	t.Parallel()

	payer, ledger := testSetup(t, "100")
	v := NewValidator(&Config{Ledger: ledger})

	for _, amount := range []string{"0", "-5"} {
		err := v.Check(
			context.Background(), intent(t, payer, amount),
		)
		require.Error(t, err)

		var rejection *Rejection
		require.False(t, errors.As(err, &rejection))
	}
}
