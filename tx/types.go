package tx

import "github.com/shopspring/decimal"

// Transaction type codes as assigned on the ledger.
const (
	TypePayment    uint16 = 0
	TypeAccountSet uint16 = 3
	TypeTrustSet   uint16 = 20
)

// AccountSet flag values settable through SetFlag.
const (
	// FlagDefaultRipple enables rippling on the account's trust lines,
	// required on an issuing account before its asset can move between
	// holders.
	FlagDefaultRipple uint32 = 8
)

// IssuedAmount is an issuer-attributed currency amount.
type IssuedAmount struct {
	// Currency is the three-character asset code.
	Currency string

	// Issuer is the classic address of the issuing authority.
	Issuer string

	// Value is the decimal amount. The ledger representation allows at
	// most 15 significant digits; encoding fails rather than rounds.
	Value decimal.Decimal
}

// Common holds the fields shared by every transaction this module submits.
type Common struct {
	// Account is the classic address of the signing account.
	Account string

	// Sequence is the ledger-assigned per-account sequence number.
	Sequence uint32

	// Fee is the transaction cost in drops.
	Fee uint64

	// LastLedgerSequence bounds how long the network will consider the
	// transaction valid.
	LastLedgerSequence uint32

	// Flags holds transaction flags; zero is omitted from the encoding.
	Flags uint32

	// SigningPubKey is the wire-format public key of the signer.
	SigningPubKey []byte

	// TxnSignature is filled in after signing.
	TxnSignature []byte
}

// Transaction is a ledger transaction body the codec can serialize.
type Transaction interface {
	// TxType returns the ledger transaction type code.
	TxType() uint16

	// Common returns the shared mutable fields.
	Common() *Common
}

// Payment is a value transfer of an issued asset.
type Payment struct {
	Base Common

	// Destination is the receiving account's classic address.
	Destination string

	// Amount is the issued amount to deliver.
	Amount IssuedAmount
}

// TxType returns the Payment type code.
func (p *Payment) TxType() uint16 { return TypePayment }

// Common returns the shared fields.
func (p *Payment) Common() *Common { return &p.Base }

// TrustSet extends (or, with a zero limit, removes) a trust line from the
// signing account to an issuer.
type TrustSet struct {
	Base Common

	// LimitAmount carries the issuer, currency and credit limit of the
	// trust line.
	LimitAmount IssuedAmount
}

// TxType returns the TrustSet type code.
func (t *TrustSet) TxType() uint16 { return TypeTrustSet }

// Common returns the shared fields.
func (t *TrustSet) Common() *Common { return &t.Base }

// AccountSet toggles a ledger-level flag on the signing account.
type AccountSet struct {
	Base Common

	// SetFlag is the account flag to enable.
	SetFlag uint32
}

// TxType returns the AccountSet type code.
func (a *AccountSet) TxType() uint16 { return TypeAccountSet }

// Common returns the shared fields.
func (a *AccountSet) Common() *Common { return &a.Base }
