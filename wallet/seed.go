package wallet

import (
	"bytes"
	"crypto/rand"
	"fmt"
)

const (
	// entropySize is the length of the entropy carried by a family seed.
	entropySize = 16

	// secpSeedPrefix is the version byte of a secp256k1 family seed.
	secpSeedPrefix = 0x21
)

// ed25519SeedPrefix is the three-byte version prefix of an ed25519 family
// seed ("sEd...").
var ed25519SeedPrefix = []byte{0x01, 0xe1, 0x4b}

// KeyType identifies the signing algorithm a seed derives keys for.
type KeyType uint8

const (
	// KeyTypeSecp256k1 derives an ECDSA keypair on secp256k1.
	KeyTypeSecp256k1 KeyType = iota

	// KeyTypeEd25519 derives an ed25519 keypair.
	KeyTypeEd25519
)

// String returns a human-readable key type name.
func (k KeyType) String() string {
	switch k {
	case KeyTypeSecp256k1:
		return "secp256k1"
	case KeyTypeEd25519:
		return "ed25519"
	default:
		return "unknown"
	}
}

// decodeSeed decodes a family seed string into its entropy and key type.
func decodeSeed(seed string) ([]byte, KeyType, error) {
	payload, err := base58CheckDecode(seed)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidSeed, err)
	}

	switch {
	case len(payload) == entropySize+len(ed25519SeedPrefix) &&
		bytes.Equal(payload[:len(ed25519SeedPrefix)], ed25519SeedPrefix):

		return payload[len(ed25519SeedPrefix):], KeyTypeEd25519, nil

	case len(payload) == entropySize+1 && payload[0] == secpSeedPrefix:
		return payload[1:], KeyTypeSecp256k1, nil

	default:
		return nil, 0, ErrInvalidSeed
	}
}

// encodeSeed encodes entropy as a family seed string of the given key type.
func encodeSeed(entropy []byte, keyType KeyType) (string, error) {
	if len(entropy) != entropySize {
		return "", fmt.Errorf("%w: entropy must be %d bytes",
			ErrInvalidSeed, entropySize)
	}

	var payload []byte
	switch keyType {
	case KeyTypeEd25519:
		payload = append(payload, ed25519SeedPrefix...)
	case KeyTypeSecp256k1:
		payload = append(payload, secpSeedPrefix)
	default:
		return "", fmt.Errorf("%w: unknown key type", ErrInvalidSeed)
	}

	payload = append(payload, entropy...)
	return base58CheckEncode(payload), nil
}

// randomEntropy draws fresh seed entropy from crypto/rand.
func randomEntropy() ([]byte, error) {
	entropy := make([]byte, entropySize)
	if _, err := rand.Read(entropy); err != nil {
		return nil, fmt.Errorf("failed to read entropy: %w", err)
	}
	return entropy, nil
}
