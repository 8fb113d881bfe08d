// Package sandbox provisions a complete demo deployment on a test network:
// a funded issuer with rippling enabled, a funded treasury holding freshly
// issued asset balance, and a set of employee wallets with trust lines ready
// to receive payouts. Everything it creates is ephemeral and disposable.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerpay/settlement/chain/xrpld"
	"github.com/ledgerpay/settlement/tx"
	"github.com/ledgerpay/settlement/wallet"
)

// ErrMainnetDisabled is returned when the sandbox is pointed at the main
// network. Provisioning creates wallets, mints supply and throws both away;
// none of that belongs on a production ledger.
var ErrMainnetDisabled = errors.New("sandbox provisioning is disabled on " +
	"mainnet")

// Ledger is the read access provisioning needs.
type Ledger interface {
	// AccountInfo returns an account's state, or ErrAccountNotFound
	// while faucet funding has not settled yet.
	AccountInfo(ctx context.Context, address string) (*xrpld.AccountInfo,
		error)
}

// Faucet funds fresh accounts on the test network.
type Faucet interface {
	// Fund requests funding for the given address.
	Fund(ctx context.Context, address string) error
}

// TrustManager establishes trust lines for provisioned wallets.
type TrustManager interface {
	// EstablishTrust ensures the holder extends the given trust limit.
	EstablishTrust(ctx context.Context, holder *wallet.Wallet,
		limit tx.IssuedAmount) (*xrpld.Outcome, error)
}

// Submitter signs and submits provisioning transactions.
type Submitter interface {
	// SubmitPayment submits a payment and awaits its outcome.
	SubmitPayment(ctx context.Context, payer *wallet.Wallet,
		destination string, amount tx.IssuedAmount) (*xrpld.Outcome,
		error)

	// SubmitAccountSet submits an account flag update and awaits its
	// outcome.
	SubmitAccountSet(ctx context.Context, w *wallet.Wallet,
		setFlag uint32) (*xrpld.Outcome, error)
}

// Config holds configuration for the sandbox bootstrapper.
type Config struct {
	// Network names the target network. "mainnet" is refused.
	Network string

	// AssetCode is the three-character code of the demo asset.
	AssetCode string

	// Ledger reads account state.
	Ledger Ledger

	// Faucet funds fresh accounts.
	Faucet Faucet

	// Trust establishes trust lines.
	Trust TrustManager

	// Submitter submits provisioning transactions.
	Submitter Submitter

	// Wallets is the registry provisioned wallets are added to.
	Wallets *wallet.Registry

	// EmployeeCount is how many employee wallets to provision.
	// Default: 3
	EmployeeCount int

	// TrustLimit is the trust limit extended by provisioned holders.
	// Default: 1000000
	TrustLimit decimal.Decimal

	// MintAmount is the asset amount issued to the treasury.
	// Default: 10000
	MintAmount decimal.Decimal

	// FundPollInterval is how often to check whether faucet funding
	// settled.
	// Default: 2 seconds
	FundPollInterval time.Duration

	// FundTimeout bounds the wait for faucet funding to settle.
	// Default: 90 seconds
	FundTimeout time.Duration

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock
}

// ProvisionedWallet is one wallet created by the sandbox, together with its
// seed so a demo run can print it for manual follow-up.
type ProvisionedWallet struct {
	// Wallet is the derived signing wallet.
	Wallet *wallet.Wallet

	// Seed is the wallet's encoded family seed.
	Seed string
}

// Environment is a fully provisioned demo deployment.
type Environment struct {
	// RunID tags all log output of one provisioning run.
	RunID uuid.UUID

	// Issuer is the issuing account, funded and with rippling enabled.
	Issuer ProvisionedWallet

	// Treasury is the payout account, funded and holding MintAmount of
	// the demo asset.
	Treasury ProvisionedWallet

	// Employees are payout destinations with trust lines in place.
	Employees []ProvisionedWallet
}

// Sandbox provisions demo deployments.
type Sandbox struct {
	cfg *Config
}

// New creates a new sandbox bootstrapper. Pointing it at mainnet fails.
func New(cfg *Config) (*Sandbox, error) {
	if cfg.Network == "mainnet" {
		return nil, ErrMainnetDisabled
	}

	if cfg.EmployeeCount == 0 {
		cfg.EmployeeCount = 3
	}
	if cfg.TrustLimit.IsZero() {
		cfg.TrustLimit = decimal.NewFromInt(1_000_000)
	}
	if cfg.MintAmount.IsZero() {
		cfg.MintAmount = decimal.NewFromInt(10_000)
	}
	if cfg.FundPollInterval == 0 {
		cfg.FundPollInterval = 2 * time.Second
	}
	if cfg.FundTimeout == 0 {
		cfg.FundTimeout = 90 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Sandbox{
		cfg: cfg,
	}, nil
}

// Run provisions a complete demo environment: issuer, treasury and employee
// wallets.
func (s *Sandbox) Run(ctx context.Context) (*Environment, error) {
	env := &Environment{
		RunID: uuid.New(),
	}

	log.Infof("Run %v: provisioning sandbox on %s with %d employees",
		env.RunID, s.cfg.Network, s.cfg.EmployeeCount)

	issuer, err := s.ProvisionIssuer(ctx)
	if err != nil {
		return nil, fmt.Errorf("run %v: %w", env.RunID, err)
	}
	env.Issuer = *issuer

	treasury, err := s.ProvisionTreasury(ctx, issuer.Wallet)
	if err != nil {
		return nil, fmt.Errorf("run %v: %w", env.RunID, err)
	}
	env.Treasury = *treasury

	env.Employees, err = s.ProvisionEmployees(
		ctx, issuer.Wallet, s.cfg.EmployeeCount,
	)
	if err != nil {
		return nil, fmt.Errorf("run %v: %w", env.RunID, err)
	}

	log.Infof("Run %v: sandbox ready, issuer %s, treasury %s", env.RunID,
		issuer.Wallet.Address(), treasury.Wallet.Address())

	return env, nil
}

// ProvisionWallet generates a fresh wallet, funds it through the faucet and
// waits for the funding to settle on the ledger.
func (s *Sandbox) ProvisionWallet(ctx context.Context,
	role wallet.Role) (*ProvisionedWallet, error) {

	w, seed, err := wallet.Generate(role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s wallet: %w",
			role, err)
	}

	log.Infof("Provisioning %s wallet %s", role, w.Address())

	if err := s.cfg.Faucet.Fund(ctx, w.Address()); err != nil {
		return nil, err
	}

	if err := s.waitFunded(ctx, w.Address()); err != nil {
		return nil, err
	}

	return &ProvisionedWallet{
		Wallet: w,
		Seed:   seed,
	}, nil
}

// ProvisionIssuer provisions the issuing account and enables rippling on it
// so the issued asset can move between holders.
func (s *Sandbox) ProvisionIssuer(ctx context.Context) (*ProvisionedWallet,
	error) {

	issuer, err := s.ProvisionWallet(ctx, wallet.RoleIssuer)
	if err != nil {
		return nil, err
	}

	if err := s.cfg.Wallets.SetIssuer(issuer.Wallet); err != nil {
		return nil, err
	}

	outcome, err := s.cfg.Submitter.SubmitAccountSet(
		ctx, issuer.Wallet, tx.FlagDefaultRipple,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enable rippling on "+
			"%s: %w", issuer.Wallet.Address(), err)
	}
	if !outcome.Settled() {
		return nil, fmt.Errorf("enabling rippling on %s not settled: "+
			"%s outcome with code %q", issuer.Wallet.Address(),
			outcome.Status, outcome.ResultCode)
	}

	return issuer, nil
}

// ProvisionTreasury provisions the treasury account: funded, trusting the
// issuer and holding MintAmount of freshly issued asset.
func (s *Sandbox) ProvisionTreasury(ctx context.Context,
	issuer *wallet.Wallet) (*ProvisionedWallet, error) {

	treasury, err := s.ProvisionWallet(ctx, wallet.RolePayout)
	if err != nil {
		return nil, err
	}

	if err := s.cfg.Wallets.SetPayout(treasury.Wallet); err != nil {
		return nil, err
	}

	if err := s.establishTrust(ctx, issuer, treasury.Wallet); err != nil {
		return nil, err
	}

	mint := tx.IssuedAmount{
		Currency: s.cfg.AssetCode,
		Issuer:   issuer.Address(),
		Value:    s.cfg.MintAmount,
	}
	outcome, err := s.cfg.Submitter.SubmitPayment(
		ctx, issuer, treasury.Wallet.Address(), mint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to issue %s %s to treasury: %w",
			s.cfg.MintAmount, s.cfg.AssetCode, err)
	}
	if !outcome.Settled() {
		return nil, fmt.Errorf("issuance to treasury %s not settled: "+
			"%s outcome with code %q", treasury.Wallet.Address(),
			outcome.Status, outcome.ResultCode)
	}

	log.Infof("Treasury %s funded with %s %s",
		treasury.Wallet.Address(), s.cfg.MintAmount, s.cfg.AssetCode)

	return treasury, nil
}

// ProvisionEmployees provisions payout destinations in parallel, each funded
// and trusting the issuer. Faucets rate limit per address, not per caller,
// so parallel funding is safe.
func (s *Sandbox) ProvisionEmployees(ctx context.Context,
	issuer *wallet.Wallet, count int) ([]ProvisionedWallet, error) {

	employees := make([]ProvisionedWallet, count)

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		eg.Go(func() error {
			employee, err := s.ProvisionWallet(
				egCtx, wallet.RoleEphemeral,
			)
			if err != nil {
				return err
			}

			s.cfg.Wallets.AddEphemeral(employee.Wallet)

			err = s.establishTrust(egCtx, issuer, employee.Wallet)
			if err != nil {
				return err
			}

			employees[i] = *employee
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return employees, nil
}

// establishTrust extends the configured trust limit from the holder to the
// issuer.
func (s *Sandbox) establishTrust(ctx context.Context, issuer,
	holder *wallet.Wallet) error {

	_, err := s.cfg.Trust.EstablishTrust(ctx, holder, tx.IssuedAmount{
		Currency: s.cfg.AssetCode,
		Issuer:   issuer.Address(),
		Value:    s.cfg.TrustLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to establish trust for %s: %w",
			holder.Address(), err)
	}
	return nil
}

// waitFunded polls the account until faucet funding settled.
func (s *Sandbox) waitFunded(ctx context.Context, address string) error {
	deadline := s.cfg.Clock.Now().Add(s.cfg.FundTimeout)

	for {
		info, err := s.cfg.Ledger.AccountInfo(ctx, address)
		switch {
		case err == nil:
			log.Debugf("Account %s funded with %s drops", address,
				info.Balance)
			return nil

		case !errors.Is(err, xrpld.ErrAccountNotFound):
			return fmt.Errorf("failed to check funding of "+
				"%s: %w", address, err)
		}

		if s.cfg.Clock.Now().After(deadline) {
			return fmt.Errorf("account %s not funded within %v",
				address, s.cfg.FundTimeout)
		}

		select {
		case <-s.cfg.Clock.TickAfter(s.cfg.FundPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
