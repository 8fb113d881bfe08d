package xrpld

// OutcomeStatus classifies a submission's settlement outcome.
type OutcomeStatus uint8

const (
	// OutcomeSuccess means the ledger validated the transaction with a
	// success code.
	OutcomeSuccess OutcomeStatus = iota

	// OutcomeFailure means the transaction terminally failed: either the
	// node refused it outright or the ledger validated it with a
	// non-success code.
	OutcomeFailure

	// OutcomeUnresolved means no validated result was observed before
	// the transaction's expiry ledger passed. The transaction may still
	// validate; callers must reconcile by hash, never retry blindly.
	OutcomeUnresolved
)

// String returns a human-readable status name.
func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Outcome is the settlement outcome of one submitted transaction,
// translated once at the adapter boundary. It carries only the fields the
// settlement core needs.
type Outcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus

	// Hash is the transaction identifier. Empty only for failures that
	// never produced a signed transaction.
	Hash string

	// ResultCode is the ledger's result code, verbatim. Empty for
	// unresolved outcomes.
	ResultCode string

	// DeliveredAmount is the delivered amount on success.
	DeliveredAmount string

	// LedgerIndex is the validated ledger that settled the transaction,
	// when known.
	LedgerIndex uint32

	// LastLedger is the ledger index past which the transaction can no
	// longer validate. Unresolved outcomes can be reconciled once the
	// validated ledger passes this index.
	LastLedger uint32
}

// Settled reports whether the outcome is a ledger-confirmed success.
func (o *Outcome) Settled() bool {
	return o.Status == OutcomeSuccess
}
