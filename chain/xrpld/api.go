package xrpld

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// accountLinesPageLimit is the page size for trust line queries.
const accountLinesPageLimit = 400

// AccountInfo queries an account's root state from the validated ledger.
func (c *Client) AccountInfo(ctx context.Context,
	address string) (*AccountInfo, error) {

	result, err := c.call(ctx, "account_info", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Name == "actNotFound" {
			return nil, fmt.Errorf("%s: %w", address,
				ErrAccountNotFound)
		}
		return nil, err
	}

	var raw rawAccountInfo
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse account info: %w", err)
	}

	return &AccountInfo{
		Address:  raw.AccountData.Account,
		Balance:  raw.AccountData.Balance,
		Sequence: raw.AccountData.Sequence,
		Flags:    raw.AccountData.Flags,
	}, nil
}

// AccountLines queries all trust lines held by an account, following
// pagination markers until the full set is retrieved.
func (c *Client) AccountLines(ctx context.Context,
	address string) ([]TrustLine, error) {

	var (
		lines  []TrustLine
		marker json.RawMessage
	)

	for {
		params := map[string]any{
			"account":      address,
			"ledger_index": "validated",
			"limit":        accountLinesPageLimit,
		}
		if marker != nil {
			params["marker"] = marker
		}

		result, err := c.call(ctx, "account_lines", params)
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) &&
				rpcErr.Name == "actNotFound" {

				return nil, fmt.Errorf("%s: %w", address,
					ErrAccountNotFound)
			}
			return nil, err
		}

		var raw rawAccountLines
		if err := json.Unmarshal(result, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse account "+
				"lines: %w", err)
		}

		for _, l := range raw.Lines {
			balance, err := decimal.NewFromString(l.Balance)
			if err != nil {
				return nil, fmt.Errorf("failed to parse line "+
					"balance %q: %w", l.Balance, err)
			}

			limit, err := decimal.NewFromString(l.Limit)
			if err != nil {
				return nil, fmt.Errorf("failed to parse line "+
					"limit %q: %w", l.Limit, err)
			}

			lines = append(lines, TrustLine{
				Account:  l.Account,
				Currency: l.Currency,
				Balance:  balance,
				Limit:    limit,
				NoRipple: l.NoRipple,
			})
		}

		if raw.Marker == nil {
			return lines, nil
		}
		marker = raw.Marker
	}
}

// LedgerCurrent returns the node's current working ledger index.
func (c *Client) LedgerCurrent(ctx context.Context) (uint32, error) {
	result, err := c.call(ctx, "ledger_current", nil)
	if err != nil {
		return 0, err
	}

	var raw rawLedgerCurrent
	if err := json.Unmarshal(result, &raw); err != nil {
		return 0, fmt.Errorf("failed to parse ledger index: %w", err)
	}

	return raw.LedgerCurrentIndex, nil
}

// Fee returns the current open-ledger transaction cost in drops, falling
// back to the base fee when the open-ledger fee is unavailable.
func (c *Client) Fee(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "fee", nil)
	if err != nil {
		return 0, err
	}

	var raw rawFee
	if err := json.Unmarshal(result, &raw); err != nil {
		return 0, fmt.Errorf("failed to parse fee: %w", err)
	}

	if drops, err := strconv.ParseUint(
		raw.Drops.OpenLedgerFee, 10, 64,
	); err == nil && drops > 0 {
		return drops, nil
	}

	drops, err := strconv.ParseUint(raw.Drops.BaseFee, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse base fee %q: %w",
			raw.Drops.BaseFee, err)
	}

	return drops, nil
}

// Tx looks up a transaction by hash.
func (c *Client) Tx(ctx context.Context, hash string) (*TxResult, error) {
	result, err := c.call(ctx, "tx", map[string]any{
		"transaction": hash,
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Name == "txnNotFound" {
			return nil, fmt.Errorf("%s: %w", hash, ErrTxNotFound)
		}
		return nil, err
	}

	var raw rawTx
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tx: %w", err)
	}

	txr := &TxResult{
		Hash:        raw.Hash,
		Validated:   raw.Validated,
		LedgerIndex: raw.LedgerIndex,
	}

	if len(raw.Meta) > 0 {
		var meta rawTxMeta
		if err := json.Unmarshal(raw.Meta, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse tx meta: %w",
				err)
		}

		txr.ResultCode = meta.TransactionResult
		txr.DeliveredAmount, err = deliveredAmountValue(
			meta.DeliveredAmount,
		)
		if err != nil {
			return nil, err
		}
	}

	return txr, nil
}

// Submit sends a signed transaction blob to the node and returns its
// preliminary result.
func (c *Client) Submit(ctx context.Context,
	blobHex string) (*SubmitResult, error) {

	result, err := c.call(ctx, "submit", map[string]any{
		"tx_blob": blobHex,
	})
	if err != nil {
		return nil, err
	}

	var raw rawSubmit
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse submit result: %w",
			err)
	}

	return &SubmitResult{
		EngineResult: raw.EngineResult,
	}, nil
}

// SubmitAndAwait submits a signed transaction and blocks until the ledger
// reports a validated outcome or the expiry ledger passes. A cancelled
// context yields an unresolved outcome: once submitted, a transaction
// cannot be unsent.
func (c *Client) SubmitAndAwait(ctx context.Context, blobHex, hash string,
	lastLedgerSeq uint32) (*Outcome, error) {

	sr, err := c.Submit(ctx, blobHex)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			// The node refused the request itself; nothing was
			// queued.
			return &Outcome{
				Status:     OutcomeFailure,
				Hash:       hash,
				ResultCode: rpcErr.Name,
				LastLedger: lastLedgerSeq,
			}, nil
		}

		// Transport failure: the submission's fate is unknown.
		return nil, err
	}

	log.Debugf("Submitted %s: preliminary result %s", hash,
		sr.EngineResult)

	// Local failure classes are never queued; there is nothing to await.
	if isLocalFailure(sr.EngineResult) {
		return &Outcome{
			Status:     OutcomeFailure,
			Hash:       hash,
			ResultCode: sr.EngineResult,
			LastLedger: lastLedgerSeq,
		}, nil
	}

	outcome, err := c.awaitValidation(ctx, hash, lastLedgerSeq)
	if err != nil {
		return nil, err
	}

	outcome.LastLedger = lastLedgerSeq
	return outcome, nil
}

// awaitValidation polls the transaction by hash until it appears in a
// validated ledger or the expiry ledger passes.
func (c *Client) awaitValidation(ctx context.Context, hash string,
	lastLedgerSeq uint32) (*Outcome, error) {

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Warnf("Wait for %s cancelled; outcome unresolved",
				hash)
			return &Outcome{
				Status: OutcomeUnresolved,
				Hash:   hash,
			}, nil

		case <-ticker.C:
			txr, err := c.Tx(ctx, hash)
			switch {
			case err == nil && txr.Validated:
				return validatedOutcome(txr), nil

			case err != nil && !errors.Is(err, ErrTxNotFound):
				// Transient lookup failure; the expiry check
				// below still bounds the wait.
				log.Debugf("Lookup of %s failed: %v", hash,
					err)
			}

			current, err := c.LedgerCurrent(ctx)
			if err != nil {
				log.Debugf("Ledger index query failed: %v",
					err)
				continue
			}

			if current > lastLedgerSeq+c.cfg.ExpiryBuffer {
				log.Warnf("No validated result for %s before "+
					"ledger %d; outcome unresolved", hash,
					lastLedgerSeq)
				return &Outcome{
					Status: OutcomeUnresolved,
					Hash:   hash,
				}, nil
			}
		}
	}
}

// validatedOutcome translates a validated transaction lookup into a
// settlement outcome.
func validatedOutcome(txr *TxResult) *Outcome {
	status := OutcomeFailure
	if txr.ResultCode == "tesSUCCESS" {
		status = OutcomeSuccess
	}

	return &Outcome{
		Status:          status,
		Hash:            txr.Hash,
		ResultCode:      txr.ResultCode,
		DeliveredAmount: txr.DeliveredAmount,
		LedgerIndex:     txr.LedgerIndex,
	}
}

// isLocalFailure reports whether a preliminary engine result belongs to a
// class that is never queued for consensus.
func isLocalFailure(engineResult string) bool {
	return strings.HasPrefix(engineResult, "tem") ||
		strings.HasPrefix(engineResult, "tef")
}
