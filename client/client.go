// Package client is the embeddable settlement orchestrator. It wires the
// ledger connection, wallets, preflight policy, submitter, trust manager and
// record store together and exposes the payout operations applications call.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerpay/settlement/chain/xrpld"
	"github.com/ledgerpay/settlement/db"
	"github.com/ledgerpay/settlement/preflight"
	"github.com/ledgerpay/settlement/submitter"
	"github.com/ledgerpay/settlement/trust"
	"github.com/ledgerpay/settlement/tx"
	"github.com/ledgerpay/settlement/wallet"
)

// expiredResultCode marks a record whose transaction provably fell out of
// its validity window without ever validating.
const expiredResultCode = "expired"

// Config holds client configuration.
type Config struct {
	// NetworkURL is the websocket endpoint of the ledger node.
	NetworkURL string

	// Network names the target network: "testnet", "devnet" or
	// "mainnet".
	Network string

	// FaucetURL is the test-network faucet endpoint, used only by
	// sandbox provisioning.
	FaucetURL string

	// IssuerSeed is the issuing account's family seed.
	IssuerSeed string

	// PayoutSeed is the treasury account's family seed. Optional when
	// AllowIssuerPayments is set.
	PayoutSeed string

	// AssetCode is the three-character code of the issued asset.
	AssetCode string

	// PerTransactionCap bounds a single payout amount. Zero disables the
	// cap.
	PerTransactionCap decimal.Decimal

	// AllowIssuerPayments permits payouts drawn directly from the
	// issuing account.
	AllowIssuerPayments bool

	// DBPath is the settlement record database file path.
	DBPath string

	// DBInMemory selects an in-memory record store, useful for demo
	// runs and testing.
	DBInMemory bool

	// ExpiryHorizon is how many ledgers a submitted transaction stays
	// valid. Zero selects the default.
	ExpiryHorizon uint32

	// Resolver maps beneficiaries to ledger addresses.
	Resolver BeneficiaryResolver
}

// PayoutResult is the caller-facing outcome of one payout request.
type PayoutResult struct {
	// Success reports whether the payout settled on the ledger.
	Success bool

	// Message explains rejections, failures and unresolved outcomes.
	Message string

	// TxHash is the transaction identifier, when one was signed.
	TxHash string

	// RecordID is the settlement record backing this payout. Zero when
	// the payout was rejected before submission.
	RecordID int64
}

// payoutOptions collects per-payout overrides of the configured defaults.
type payoutOptions struct {
	payer  *wallet.Wallet
	issuer string
}

// PayoutOption modifies a single payout request.
type PayoutOption func(*payoutOptions)

// WithPayer draws the payout from the given wallet instead of the default
// treasury-else-issuer selection.
func WithPayer(payer *wallet.Wallet) PayoutOption {
	return func(o *payoutOptions) {
		o.payer = payer
	}
}

// WithIssuer names the issuing account of the payout asset, overriding the
// configured issuer wallet's address.
func WithIssuer(address string) PayoutOption {
	return func(o *payoutOptions) {
		o.issuer = address
	}
}

// recordStore is the slice of the record store the orchestrator uses.
type recordStore interface {
	RecordAttempt(ctx context.Context, beneficiary, destination,
		currency string, amount decimal.Decimal) (*db.TransactionRecord,
		error)
	AttachHash(ctx context.Context, id int64, hash string,
		lastLedger uint32) error
	Finalize(ctx context.Context, id int64, status db.Status, hash,
		resultCode, deliveredAmount string, ledgerIndex uint32) error
	GetRecord(ctx context.Context, id int64) (*db.TransactionRecord, error)
	ListAll(ctx context.Context) ([]*db.TransactionRecord, error)
	ListByBeneficiary(ctx context.Context,
		beneficiary string) ([]*db.TransactionRecord, error)
	LatestPerBeneficiary(ctx context.Context) ([]*db.TransactionRecord,
		error)
	ListUnresolved(ctx context.Context) ([]*db.TransactionRecord, error)
	Close() error
}

// intentChecker validates payout intents before submission.
type intentChecker interface {
	Check(ctx context.Context, intent *preflight.Intent) error
}

// paymentSubmitter signs and submits payments.
type paymentSubmitter interface {
	SubmitPayment(ctx context.Context, payer *wallet.Wallet,
		destination string, amount tx.IssuedAmount) (*xrpld.Outcome,
		error)
}

// chainLookup is the read access reconciliation needs.
type chainLookup interface {
	Tx(ctx context.Context, hash string) (*xrpld.TxResult, error)
	LedgerCurrent(ctx context.Context) (uint32, error)
}

// Client is the settlement orchestrator for embedding in Go applications.
type Client struct {
	cfg *Config

	ledger  *xrpld.Client
	wallets *wallet.Registry
	trust   *trust.Manager
	sub     *submitter.Submitter

	// Collaborators behind interfaces so tests can swap them out.
	store    recordStore
	checker  intentChecker
	payments paymentSubmitter
	chain    chainLookup
	resolver BeneficiaryResolver
}

// New creates a new settlement client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("beneficiary resolver required")
	}
	if len(cfg.AssetCode) != 3 {
		return nil, fmt.Errorf("asset code must be three characters, "+
			"got %q", cfg.AssetCode)
	}

	ledger := xrpld.NewClient(xrpld.DefaultConfig(cfg.NetworkURL))

	wallets, err := wallet.NewRegistry(&wallet.Config{
		IssuerSeed: cfg.IssuerSeed,
		PayoutSeed: cfg.PayoutSeed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}

	store, err := db.NewStore(&db.Config{
		Path:      cfg.DBPath,
		UseMemory: cfg.DBInMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	validator := preflight.NewValidator(&preflight.Config{
		Ledger:              ledger,
		PerTransactionCap:   cfg.PerTransactionCap,
		AllowIssuerPayments: cfg.AllowIssuerPayments,
	})

	sub := submitter.New(&submitter.Config{
		Ledger:        ledger,
		ExpiryHorizon: cfg.ExpiryHorizon,
	})

	trustMgr := trust.NewManager(&trust.Config{
		Ledger:    ledger,
		Submitter: sub,
	})

	return &Client{
		cfg:      cfg,
		ledger:   ledger,
		wallets:  wallets,
		trust:    trustMgr,
		sub:      sub,
		store:    store,
		checker:  validator,
		payments: sub,
		chain:    ledger,
		resolver: cfg.Resolver,
	}, nil
}

// Start connects to the ledger node eagerly so configuration problems
// surface before the first payout.
func (c *Client) Start(ctx context.Context) error {
	if err := c.ledger.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to ledger node: %w", err)
	}
	return nil
}

// Stop disconnects from the ledger node and closes the record store.
func (c *Client) Stop() error {
	_ = c.ledger.Close()
	return c.store.Close()
}

// Ledger returns the underlying ledger client, for sandbox provisioning.
func (c *Client) Ledger() *xrpld.Client {
	return c.ledger
}

// Wallets returns the wallet registry.
func (c *Client) Wallets() *wallet.Registry {
	return c.wallets
}

// Trust returns the trust line manager.
func (c *Client) Trust() *trust.Manager {
	return c.trust
}

// Submitter returns the transaction submitter.
func (c *Client) Submitter() *submitter.Submitter {
	return c.sub
}

// SubmitPayout resolves, validates, submits and records one payout of the
// configured asset. Options override the payer wallet and the issuing
// account for this request only. Rejections return a failed result without
// error and leave no record; only payouts that clear preflight are
// recorded, before submission, so no settled transaction can ever lack a
// record.
func (c *Client) SubmitPayout(ctx context.Context, beneficiary string,
	amount decimal.Decimal, opts ...PayoutOption) (*PayoutResult, error) {

	var options payoutOptions
	for _, opt := range opts {
		opt(&options)
	}

	destination, err := c.resolver.Resolve(ctx, beneficiary)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve beneficiary "+
			"%q: %w", beneficiary, err)
	}

	payer := options.payer
	if payer == nil {
		payer, err = c.payerWallet()
		if err != nil {
			return nil, err
		}
	}

	issuerAddr := options.issuer
	if issuerAddr == "" {
		issuer, err := c.wallets.Issuer()
		if err != nil {
			return nil, err
		}
		issuerAddr = issuer.Address()
	}

	issued := tx.IssuedAmount{
		Currency: c.cfg.AssetCode,
		Issuer:   issuerAddr,
		Value:    amount,
	}

	err = c.checker.Check(ctx, &preflight.Intent{
		Payer:       payer,
		Destination: destination,
		Amount:      issued,
	})
	if err != nil {
		var rejection *preflight.Rejection
		if errors.As(err, &rejection) {
			log.Infof("Payout of %s %s to %s rejected: %s", amount,
				c.cfg.AssetCode, beneficiary, rejection.Detail)
			return &PayoutResult{
				Message: rejection.Error(),
			}, nil
		}
		return nil, fmt.Errorf("preflight failed: %w", err)
	}

	record, err := c.store.RecordAttempt(
		ctx, beneficiary, destination, c.cfg.AssetCode, amount,
	)
	if err != nil {
		return nil, err
	}

	outcome, err := c.payments.SubmitPayment(ctx, payer, destination,
		issued)
	if err != nil {
		// Nothing left this process; the attempt terminally failed.
		if ferr := c.store.Finalize(
			ctx, record.ID, db.StatusFailure, "", "", "", 0,
		); ferr != nil {
			log.Errorf("Failed to finalize record %d after "+
				"submission error: %v", record.ID, ferr)
		}
		return nil, fmt.Errorf("payout submission failed: %w", err)
	}

	return c.applyOutcome(ctx, record.ID, outcome)
}

// applyOutcome maps a settlement outcome onto the record and the caller
// result.
func (c *Client) applyOutcome(ctx context.Context, recordID int64,
	outcome *xrpld.Outcome) (*PayoutResult, error) {

	result := &PayoutResult{
		TxHash:   outcome.Hash,
		RecordID: recordID,
	}

	switch outcome.Status {
	case xrpld.OutcomeSuccess:
		err := c.store.Finalize(
			ctx, recordID, db.StatusSuccess, outcome.Hash,
			outcome.ResultCode, outcome.DeliveredAmount,
			outcome.LedgerIndex,
		)
		if err != nil {
			return nil, err
		}

		result.Success = true
		result.Message = fmt.Sprintf("settled in ledger %d",
			outcome.LedgerIndex)

	case xrpld.OutcomeFailure:
		err := c.store.Finalize(
			ctx, recordID, db.StatusFailure, outcome.Hash,
			outcome.ResultCode, "", outcome.LedgerIndex,
		)
		if err != nil {
			return nil, err
		}

		result.Message = fmt.Sprintf("failed with code %s",
			outcome.ResultCode)

	case xrpld.OutcomeUnresolved:
		err := c.store.AttachHash(
			ctx, recordID, outcome.Hash, outcome.LastLedger,
		)
		if err != nil {
			return nil, err
		}

		result.Message = "outcome unresolved, reconcile later"
	}

	return result, nil
}

// payerWallet picks the wallet payouts are drawn from: the treasury when
// configured, otherwise the issuer.
func (c *Client) payerWallet() (*wallet.Wallet, error) {
	payer, err := c.wallets.Payout()
	if err == nil {
		return payer, nil
	}
	if !errors.Is(err, wallet.ErrWalletNotConfigured) {
		return nil, err
	}
	return c.wallets.Issuer()
}

// Reconcile resolves one pending record with an attached hash against the
// ledger. A validated transaction finalizes the record; a transaction that
// provably expired finalizes it as failed; otherwise the record stays
// pending. The updated record is returned either way.
func (c *Client) Reconcile(ctx context.Context,
	recordID int64) (*db.TransactionRecord, error) {

	record, err := c.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if record.Status.Terminal() {
		return record, nil
	}
	if record.TxHash == "" {
		return nil, fmt.Errorf("record %d has no transaction to "+
			"reconcile", recordID)
	}

	txr, err := c.chain.Tx(ctx, record.TxHash)
	switch {
	case err == nil && txr.Validated:
		status := db.StatusFailure
		if txr.ResultCode == "tesSUCCESS" {
			status = db.StatusSuccess
		}

		err = c.store.Finalize(
			ctx, recordID, status, txr.Hash, txr.ResultCode,
			txr.DeliveredAmount, txr.LedgerIndex,
		)
		if err != nil && !errors.Is(err, db.ErrAlreadyFinalized) {
			return nil, err
		}

		log.Infof("Reconciled record %d: tx %s settled as %s",
			recordID, record.TxHash, status)

	case err != nil && errors.Is(err, xrpld.ErrTxNotFound):
		current, lerr := c.chain.LedgerCurrent(ctx)
		if lerr != nil {
			return nil, fmt.Errorf("failed to fetch current "+
				"ledger: %w", lerr)
		}

		if record.LastLedger != 0 && current > record.LastLedger {
			err = c.store.Finalize(
				ctx, recordID, db.StatusFailure,
				record.TxHash, expiredResultCode, "", 0,
			)
			if err != nil && !errors.Is(err, db.ErrAlreadyFinalized) {
				return nil, err
			}

			log.Infof("Reconciled record %d: tx %s expired at "+
				"ledger %d", recordID, record.TxHash,
				record.LastLedger)
		}

	case err != nil:
		return nil, fmt.Errorf("failed to look up %s: %w",
			record.TxHash, err)
	}

	return c.store.GetRecord(ctx, recordID)
}

// ReconcileAll resolves every pending record that carries a hash. Records
// that remain unresolved are left alone; the count of records moved to a
// terminal status is returned.
func (c *Client) ReconcileAll(ctx context.Context) (int, error) {
	records, err := c.store.ListUnresolved(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, rec := range records {
		updated, err := c.Reconcile(ctx, rec.ID)
		if err != nil {
			return resolved, err
		}
		if updated.Status.Terminal() {
			resolved++
		}
	}

	return resolved, nil
}

// EnsureBeneficiaryTrust makes sure the holder wallet extends at least the
// given trust limit to the configured issuer.
func (c *Client) EnsureBeneficiaryTrust(ctx context.Context,
	holder *wallet.Wallet, limit decimal.Decimal) error {

	issuer, err := c.wallets.Issuer()
	if err != nil {
		return err
	}

	_, err = c.trust.EstablishTrust(ctx, holder, tx.IssuedAmount{
		Currency: c.cfg.AssetCode,
		Issuer:   issuer.Address(),
		Value:    limit,
	})
	return err
}

// History returns every settlement record, newest first.
func (c *Client) History(ctx context.Context) ([]*db.TransactionRecord,
	error) {

	return c.store.ListAll(ctx)
}

// TransactionsFor returns a beneficiary's settlement records, newest first.
func (c *Client) TransactionsFor(ctx context.Context,
	beneficiary string) ([]*db.TransactionRecord, error) {

	return c.store.ListByBeneficiary(ctx, beneficiary)
}

// LatestPerBeneficiary returns each beneficiary's most recent record.
func (c *Client) LatestPerBeneficiary(
	ctx context.Context) ([]*db.TransactionRecord, error) {

	return c.store.LatestPerBeneficiary(ctx)
}
