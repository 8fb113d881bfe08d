package tx

import "errors"

var (
	// ErrInvalidAmount is returned when an amount cannot be represented
	// in the ledger's decimal format.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidCurrency is returned when an asset code is not a valid
	// three-character currency.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrMissingField is returned when a required transaction field is
	// unset at serialization time.
	ErrMissingField = errors.New("missing transaction field")
)
