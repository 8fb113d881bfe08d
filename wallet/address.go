package wallet

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// The XRP Ledger uses its own base58 dictionary ordering. The payload of
// every encoded string carries a version prefix and a 4-byte double-SHA256
// checksum suffix.
var rippleAlphabet = base58.NewAlphabet(
	"rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz",
)

const (
	// accountIDPrefix is the version byte for classic addresses.
	accountIDPrefix = 0x00

	// AccountIDSize is the length of a raw account identifier.
	AccountIDSize = 20
)

// checksum returns the first four bytes of a double SHA-256 over the payload.
func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}

// base58CheckEncode encodes payload with its checksum in the ripple alphabet.
func base58CheckEncode(payload []byte) string {
	buf := make([]byte, 0, len(payload)+4)
	buf = append(buf, payload...)
	buf = append(buf, checksum(payload)...)
	return base58.EncodeAlphabet(buf, rippleAlphabet)
}

// base58CheckDecode decodes a ripple-alphabet base58check string and returns
// the payload with the checksum stripped.
func base58CheckDecode(s string) ([]byte, error) {
	raw, err := base58.DecodeAlphabet(s, rippleAlphabet)
	if err != nil {
		return nil, fmt.Errorf("invalid base58: %w", err)
	}

	if len(raw) < 5 {
		return nil, ErrInvalidChecksum
	}

	payload := raw[:len(raw)-4]
	if !bytes.Equal(checksum(payload), raw[len(raw)-4:]) {
		return nil, ErrInvalidChecksum
	}

	return payload, nil
}

// AccountID computes the raw 20-byte account identifier for a signing public
// key: RIPEMD160(SHA256(pubKey)).
func AccountID(pubKey []byte) [AccountIDSize]byte {
	inner := sha256.Sum256(pubKey)

	hasher := ripemd160.New()
	hasher.Write(inner[:])

	var id [AccountIDSize]byte
	copy(id[:], hasher.Sum(nil))
	return id
}

// EncodeClassicAddress encodes a raw account ID as a classic r-address.
func EncodeClassicAddress(accountID [AccountIDSize]byte) string {
	payload := make([]byte, 0, AccountIDSize+1)
	payload = append(payload, accountIDPrefix)
	payload = append(payload, accountID[:]...)
	return base58CheckEncode(payload)
}

// DecodeClassicAddress decodes a classic r-address into its raw account ID.
func DecodeClassicAddress(address string) ([AccountIDSize]byte, error) {
	var id [AccountIDSize]byte

	payload, err := base58CheckDecode(address)
	if err != nil {
		return id, fmt.Errorf("invalid address %q: %w", address, err)
	}

	if len(payload) != AccountIDSize+1 || payload[0] != accountIDPrefix {
		return id, fmt.Errorf("invalid address %q: %w", address,
			ErrInvalidAddress)
	}

	copy(id[:], payload[1:])
	return id, nil
}
