package xrpld

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountInfo is a point-in-time snapshot of an account's root state.
type AccountInfo struct {
	// Address is the account's classic address.
	Address string

	// Balance is the native-currency balance in drops.
	Balance string

	// Sequence is the account's next transaction sequence number.
	Sequence uint32

	// Flags holds the ledger-level account flags.
	Flags uint32
}

// TrustLine is one counterparty-scoped credit relationship, viewed from the
// queried account. On the issuer's own lines the balance is negative and
// denotes outstanding issued supply.
type TrustLine struct {
	// Account is the counterparty's classic address.
	Account string

	// Currency is the asset code of the line.
	Currency string

	// Balance is the current balance from the holder's perspective.
	Balance decimal.Decimal

	// Limit is the credit limit the holder extended to the counterparty.
	Limit decimal.Decimal

	// NoRipple is set when rippling is disabled on this line.
	NoRipple bool
}

// SubmitResult is the node's preliminary answer to a submission. The
// preliminary engine result is not final; only a validated outcome settles
// the transaction.
type SubmitResult struct {
	// EngineResult is the preliminary result code, e.g. "tesSUCCESS".
	EngineResult string
}

// TxResult is a transaction lookup result.
type TxResult struct {
	// Hash is the transaction identifier.
	Hash string

	// Validated reports whether the transaction is in a validated
	// ledger. Result fields are only meaningful when true.
	Validated bool

	// ResultCode is the final result code from the transaction metadata.
	ResultCode string

	// DeliveredAmount is the amount actually delivered, as a decimal
	// string for issued assets or drops for the native currency.
	DeliveredAmount string

	// LedgerIndex is the ledger the transaction was included in.
	LedgerIndex uint32
}

// Wire-level parse structs. Responses are translated once, here, into the
// typed structs above.

type rawAccountInfo struct {
	AccountData struct {
		Account  string `json:"Account"`
		Balance  string `json:"Balance"`
		Sequence uint32 `json:"Sequence"`
		Flags    uint32 `json:"Flags"`
	} `json:"account_data"`
}

type rawAccountLines struct {
	Account string `json:"account"`
	Lines   []struct {
		Account  string `json:"account"`
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
		Limit    string `json:"limit"`
		NoRipple bool   `json:"no_ripple"`
	} `json:"lines"`
	Marker json.RawMessage `json:"marker"`
}

type rawLedgerCurrent struct {
	LedgerCurrentIndex uint32 `json:"ledger_current_index"`
}

type rawFee struct {
	Drops struct {
		BaseFee       string `json:"base_fee"`
		OpenLedgerFee string `json:"open_ledger_fee"`
	} `json:"drops"`
}

type rawSubmit struct {
	EngineResult string `json:"engine_result"`
}

type rawTx struct {
	Hash        string          `json:"hash"`
	Validated   bool            `json:"validated"`
	LedgerIndex uint32          `json:"ledger_index"`
	Meta        json.RawMessage `json:"meta"`
}

type rawTxMeta struct {
	TransactionResult string          `json:"TransactionResult"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount"`
}

// deliveredAmountValue extracts the delivered amount, which the node encodes
// either as a drops string or as an issued-amount object.
func deliveredAmountValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var drops string
	if err := json.Unmarshal(raw, &drops); err == nil {
		return drops, nil
	}

	var issued struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &issued); err != nil {
		return "", fmt.Errorf("failed to parse delivered amount: %w",
			err)
	}

	return issued.Value, nil
}
