package wallet

import "errors"

var (
	// ErrInvalidChecksum is returned when a base58check payload does not
	// match its checksum.
	ErrInvalidChecksum = errors.New("invalid checksum")

	// ErrInvalidAddress is returned when a classic address is malformed.
	ErrInvalidAddress = errors.New("invalid classic address")

	// ErrInvalidSeed is returned when a family seed cannot be decoded.
	ErrInvalidSeed = errors.New("invalid family seed")

	// ErrWalletNotConfigured is returned when a required signing role has
	// no seed configured. Callers must treat this as a configuration
	// error, not a transient fault.
	ErrWalletNotConfigured = errors.New("wallet not configured")

	// ErrWalletNotFound is returned when no wallet resolves for an
	// address.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrRoleOccupied is returned when a second wallet is registered for
	// a role that allows only one.
	ErrRoleOccupied = errors.New("wallet role already occupied")
)
