package xrpld

import (
	"errors"
	"fmt"
)

var (
	// ErrClientClosed is returned when a call is made after Close.
	ErrClientClosed = errors.New("ledger client closed")

	// ErrConnectionLost is returned for requests that were in flight when
	// the websocket connection dropped or the caller's context ended. The
	// fate of a submission that fails this way is unknown; callers must
	// reconcile by hash rather than blindly retry.
	ErrConnectionLost = errors.New("ledger connection lost")

	// ErrAccountNotFound is returned when the queried account does not
	// exist in the validated ledger.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTxNotFound is returned when a transaction hash is unknown to the
	// node.
	ErrTxNotFound = errors.New("transaction not found")
)

// RPCError is an error reported by the ledger node for a request. The name
// and message are surfaced verbatim.
type RPCError struct {
	// Name is the machine-readable error code, e.g. "actNotFound".
	Name string

	// Message is the node's human-readable explanation.
	Message string
}

// Error returns the node-reported error text.
func (e *RPCError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}
