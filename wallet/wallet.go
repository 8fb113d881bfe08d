package wallet

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Role identifies the function a signing wallet performs for the deployment.
type Role uint8

const (
	// RoleIssuer is the issuing authority that defines the asset.
	RoleIssuer Role = iota

	// RolePayout is the operating treasury that spends already-issued
	// asset balance.
	RolePayout

	// RoleEphemeral marks sandbox wallets created and discarded per demo
	// run.
	RoleEphemeral
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleIssuer:
		return "issuer"
	case RolePayout:
		return "payout"
	case RoleEphemeral:
		return "ephemeral"
	default:
		return "unknown"
	}
}

// ed25519PubKeyPrefix tags an ed25519 signing public key on the wire.
const ed25519PubKeyPrefix = 0xed

// Wallet is a signing identity derived from a family seed. Key material is
// read-only after construction.
type Wallet struct {
	role    Role
	keyType KeyType
	address string

	// pubKey is the wire-format signing public key: a 33-byte compressed
	// point for secp256k1, or 0xED followed by the 32-byte ed25519 key.
	pubKey []byte

	secpPriv *btcec.PrivateKey
	edPriv   ed25519.PrivateKey
}

// FromSeed derives a wallet from a family seed string.
func FromSeed(seed string, role Role) (*Wallet, error) {
	entropy, keyType, err := decodeSeed(seed)
	if err != nil {
		return nil, err
	}

	w := &Wallet{
		role:    role,
		keyType: keyType,
	}

	switch keyType {
	case KeyTypeEd25519:
		w.edPriv = ed25519.NewKeyFromSeed(sha512Half(entropy))
		edPub := w.edPriv.Public().(ed25519.PublicKey)
		w.pubKey = append([]byte{ed25519PubKeyPrefix}, edPub...)

	case KeyTypeSecp256k1:
		w.secpPriv, err = deriveSecpAccountKey(entropy)
		if err != nil {
			return nil, err
		}
		w.pubKey = w.secpPriv.PubKey().SerializeCompressed()
	}

	w.address = EncodeClassicAddress(AccountID(w.pubKey))
	return w, nil
}

// Generate creates a fresh ed25519 wallet from random entropy and returns it
// together with its encoded seed.
func Generate(role Role) (*Wallet, string, error) {
	entropy, err := randomEntropy()
	if err != nil {
		return nil, "", err
	}

	seed, err := encodeSeed(entropy, KeyTypeEd25519)
	if err != nil {
		return nil, "", err
	}

	w, err := FromSeed(seed, role)
	if err != nil {
		return nil, "", err
	}

	return w, seed, nil
}

// Address returns the wallet's classic address.
func (w *Wallet) Address() string {
	return w.address
}

// Role returns the wallet's configured role.
func (w *Wallet) Role() Role {
	return w.role
}

// KeyType returns the wallet's signing algorithm.
func (w *Wallet) KeyType() KeyType {
	return w.keyType
}

// PublicKey returns the wire-format signing public key.
func (w *Wallet) PublicKey() []byte {
	pub := make([]byte, len(w.pubKey))
	copy(pub, w.pubKey)
	return pub
}

// Sign signs a serialized signing blob. For secp256k1 the signature is a
// canonical DER-encoded ECDSA signature over SHA512Half of the blob; for
// ed25519 the blob itself is signed.
func (w *Wallet) Sign(signingData []byte) ([]byte, error) {
	switch w.keyType {
	case KeyTypeEd25519:
		return ed25519.Sign(w.edPriv, signingData), nil

	case KeyTypeSecp256k1:
		digest := sha512Half(signingData)
		return ecdsa.Sign(w.secpPriv, digest).Serialize(), nil

	default:
		return nil, fmt.Errorf("unsupported key type %v", w.keyType)
	}
}

// Verify reports whether sig is a valid signature by this wallet over
// signingData.
func (w *Wallet) Verify(signingData, sig []byte) bool {
	switch w.keyType {
	case KeyTypeEd25519:
		return ed25519.Verify(
			w.edPriv.Public().(ed25519.PublicKey), signingData, sig,
		)

	case KeyTypeSecp256k1:
		parsed, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return false
		}
		return parsed.Verify(sha512Half(signingData), w.secpPriv.PubKey())

	default:
		return false
	}
}

// sha512Half returns the first 32 bytes of a SHA-512 digest.
func sha512Half(data []byte) []byte {
	sum := sha512.Sum512(data)
	return sum[:32]
}

// deriveSecpAccountKey runs the secp256k1 family seed derivation: a root
// generator keypair is derived from the entropy, then the account key for
// account index zero is the root scalar plus an intermediate scalar derived
// from the generator public key, mod the curve order.
func deriveSecpAccountKey(entropy []byte) (*btcec.PrivateKey, error) {
	rootScalar, err := deriveScalar(entropy)
	if err != nil {
		return nil, err
	}

	rootPriv, _ := btcec.PrivKeyFromBytes(scalarBytes(rootScalar))
	rootPub := rootPriv.PubKey().SerializeCompressed()

	// Intermediate scalar input: generator public key followed by the
	// big-endian account index.
	interSeed := make([]byte, 0, len(rootPub)+4)
	interSeed = append(interSeed, rootPub...)
	interSeed = binary.BigEndian.AppendUint32(interSeed, 0)

	interScalar, err := deriveScalar(interSeed)
	if err != nil {
		return nil, err
	}

	account := new(big.Int).Add(rootScalar, interScalar)
	account.Mod(account, btcec.S256().N)
	if account.Sign() == 0 {
		return nil, fmt.Errorf("%w: derived zero account key",
			ErrInvalidSeed)
	}

	priv, _ := btcec.PrivKeyFromBytes(scalarBytes(account))
	return priv, nil
}

// deriveScalar hashes prefix with an incrementing big-endian sequence until
// the result is a valid non-zero scalar below the curve order.
func deriveScalar(prefix []byte) (*big.Int, error) {
	curveOrder := btcec.S256().N

	for seq := uint32(0); seq < 1<<16; seq++ {
		buf := make([]byte, 0, len(prefix)+4)
		buf = append(buf, prefix...)
		buf = binary.BigEndian.AppendUint32(buf, seq)

		candidate := new(big.Int).SetBytes(sha512Half(buf))
		if candidate.Sign() > 0 && candidate.Cmp(curveOrder) < 0 {
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("%w: no valid scalar found", ErrInvalidSeed)
}

// scalarBytes encodes a scalar as a fixed 32-byte big-endian value.
func scalarBytes(v *big.Int) []byte {
	return v.FillBytes(make([]byte, 32))
}
