// Package submitter turns transaction intents into signed, submitted and
// settled ledger transactions. It owns the full pipeline: fetching the
// account sequence and fee, stamping the expiry ledger, serializing,
// signing, submitting and awaiting the validated outcome.
package submitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledgerpay/settlement/chain/xrpld"
	"github.com/ledgerpay/settlement/monitoring"
	"github.com/ledgerpay/settlement/tx"
	"github.com/ledgerpay/settlement/wallet"
)

const (
	// DefaultExpiryHorizon is how many ledgers past the current one a
	// submitted transaction stays valid before it expires unprocessed.
	DefaultExpiryHorizon = 500
)

// Ledger is the node access the submitter needs.
type Ledger interface {
	// LedgerCurrent returns the current working ledger index.
	LedgerCurrent(ctx context.Context) (uint32, error)

	// AccountInfo returns the signing account's state, including its
	// next sequence number.
	AccountInfo(ctx context.Context, address string) (*xrpld.AccountInfo,
		error)

	// Fee returns the current transaction cost in drops.
	Fee(ctx context.Context) (uint64, error)

	// SubmitAndAwait submits a signed blob and awaits its settlement
	// outcome.
	SubmitAndAwait(ctx context.Context, blobHex, hash string,
		lastLedgerSeq uint32) (*xrpld.Outcome, error)
}

// Config holds configuration for the submitter.
type Config struct {
	// Ledger is the node the submitter talks to.
	Ledger Ledger

	// ExpiryHorizon is how many ledgers ahead of the current index to
	// set the transaction's expiry ledger.
	// Default: DefaultExpiryHorizon
	ExpiryHorizon uint32
}

// Submitter signs and submits transactions, one at a time per signing
// account. Sequence numbers, fees and expiry ledgers are fetched fresh from
// the node for every submission; nothing is predicted or cached.
type Submitter struct {
	cfg *Config

	locks *accountLocks
}

// New creates a new submitter.
func New(cfg *Config) *Submitter {
	if cfg.ExpiryHorizon == 0 {
		cfg.ExpiryHorizon = DefaultExpiryHorizon
	}

	return &Submitter{
		cfg:   cfg,
		locks: newAccountLocks(),
	}
}

// SubmitPayment submits an issued-asset payment from the payer to the
// destination and awaits its outcome.
func (s *Submitter) SubmitPayment(ctx context.Context, payer *wallet.Wallet,
	destination string, amount tx.IssuedAmount) (*xrpld.Outcome, error) {

	return s.submit(ctx, payer, &tx.Payment{
		Destination: destination,
		Amount:      amount,
	})
}

// SubmitTrustSet submits a trust line update from the holder towards the
// limit's issuer and awaits its outcome.
func (s *Submitter) SubmitTrustSet(ctx context.Context,
	holder *wallet.Wallet, limit tx.IssuedAmount) (*xrpld.Outcome, error) {

	return s.submit(ctx, holder, &tx.TrustSet{
		LimitAmount: limit,
	})
}

// SubmitAccountSet submits an account flag update for the wallet's own
// account and awaits its outcome.
func (s *Submitter) SubmitAccountSet(ctx context.Context, w *wallet.Wallet,
	setFlag uint32) (*xrpld.Outcome, error) {

	return s.submit(ctx, w, &tx.AccountSet{
		SetFlag: setFlag,
	})
}

// submit runs the build/sign/submit/await pipeline for one transaction. The
// signing account's lock is held for the whole pipeline so the sequence
// number fetched here is still fresh at submission time.
func (s *Submitter) submit(ctx context.Context, signer *wallet.Wallet,
	txn tx.Transaction) (*xrpld.Outcome, error) {

	attempt := uuid.New()
	address := signer.Address()

	unlock := s.locks.lock(address)
	defer unlock()

	current, err := s.cfg.Ledger.LedgerCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current ledger: %w",
			err)
	}

	info, err := s.cfg.Ledger.AccountInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account state of "+
			"%s: %w", address, err)
	}

	fee, err := s.cfg.Ledger.Fee(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fee: %w", err)
	}

	common := txn.Common()
	common.Account = address
	common.Sequence = info.Sequence
	common.Fee = fee
	common.LastLedgerSequence = current + s.cfg.ExpiryHorizon
	common.SigningPubKey = signer.PublicKey()

	signingBlob, err := tx.SigningBlob(txn)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize for signing: %w",
			err)
	}

	common.TxnSignature, err = signer.Sign(signingBlob)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	signedBlob, err := tx.SignedBlob(txn)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signed "+
			"transaction: %w", err)
	}

	hash := tx.TxID(signedBlob)

	log.Infof("Attempt %v: submitting type %d tx %s from %s, seq %d, "+
		"fee %d, expires at ledger %d", attempt, txn.TxType(), hash,
		address, common.Sequence, fee, common.LastLedgerSequence)

	outcome, err := s.cfg.Ledger.SubmitAndAwait(
		ctx, tx.BlobHex(signedBlob), hash, common.LastLedgerSequence,
	)
	switch {
	case errors.Is(err, xrpld.ErrConnectionLost):
		// The blob left this process; whether the node relayed it is
		// unknown. The transaction may still settle.
		log.Warnf("Attempt %v: connection lost after submitting %s, "+
			"outcome unresolved", attempt, hash)
		outcome = &xrpld.Outcome{
			Status:     xrpld.OutcomeUnresolved,
			Hash:       hash,
			LastLedger: common.LastLedgerSequence,
		}

	case err != nil:
		return nil, fmt.Errorf("failed to submit %s: %w", hash, err)
	}

	monitoring.Submissions.WithLabelValues(outcome.Status.String()).Inc()

	log.Infof("Attempt %v: tx %s settled as %s (code %q)", attempt, hash,
		outcome.Status, outcome.ResultCode)

	return outcome, nil
}
