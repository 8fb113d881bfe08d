package tx

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ledgerpay/settlement/wallet"
)

// Issued-amount mantissa and exponent bounds of the ledger's custom decimal
// format: 15 significant digits, exponent between -96 and 80.
var (
	minMantissa = new(big.Int).SetUint64(1_000_000_000_000_000)
	maxMantissa = new(big.Int).SetUint64(10_000_000_000_000_000)
)

const (
	minExponent = -96
	maxExponent = 80

	// exponentBias is added to the normalized exponent before packing.
	exponentBias = 97

	// notXRPBit marks an issued (non-drops) amount.
	notXRPBit = uint64(1) << 63

	// positiveBit is the sign bit; set means positive.
	positiveBit = uint64(1) << 62

	// maxDrops is the total possible supply in drops.
	maxDrops = uint64(100_000_000_000) * 1_000_000
)

// encodeDrops packs a native-currency amount (the transaction fee) into its
// 8-byte representation.
func encodeDrops(drops uint64) ([]byte, error) {
	if drops > maxDrops {
		return nil, fmt.Errorf("%w: %d drops exceeds total supply",
			ErrInvalidAmount, drops)
	}

	return binary.BigEndian.AppendUint64(nil, positiveBit|drops), nil
}

// encodeIssuedAmount packs an issuer-attributed amount into its 48-byte
// representation: an 8-byte value followed by the 20-byte currency code and
// the 20-byte issuer account ID.
func encodeIssuedAmount(amount IssuedAmount) ([]byte, error) {
	value, err := encodeIssuedValue(amount.Value)
	if err != nil {
		return nil, err
	}

	currency, err := encodeCurrency(amount.Currency)
	if err != nil {
		return nil, err
	}

	issuer, err := wallet.DecodeClassicAddress(amount.Issuer)
	if err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}

	buf := make([]byte, 0, 48)
	buf = append(buf, value...)
	buf = append(buf, currency...)
	buf = append(buf, issuer[:]...)
	return buf, nil
}

// encodeIssuedValue normalizes a decimal to the ledger's mantissa/exponent
// form and packs it into 8 bytes. Values that cannot be represented without
// losing precision are rejected rather than rounded.
func encodeIssuedValue(value decimal.Decimal) ([]byte, error) {
	if value.IsZero() {
		return binary.BigEndian.AppendUint64(nil, notXRPBit), nil
	}

	if value.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s",
			ErrInvalidAmount, value)
	}

	mantissa := new(big.Int).Abs(value.Coefficient())
	exponent := int64(value.Exponent())

	ten := big.NewInt(10)
	remainder := new(big.Int)

	for mantissa.Cmp(minMantissa) < 0 {
		mantissa.Mul(mantissa, ten)
		exponent--
	}

	for mantissa.Cmp(maxMantissa) >= 0 {
		mantissa.QuoRem(mantissa, ten, remainder)
		if remainder.Sign() != 0 {
			return nil, fmt.Errorf(
				"%w: %s exceeds 15 significant digits",
				ErrInvalidAmount, value,
			)
		}
		exponent++
	}

	if exponent < minExponent || exponent > maxExponent {
		return nil, fmt.Errorf("%w: exponent %d out of range",
			ErrInvalidAmount, exponent)
	}

	packed := notXRPBit | positiveBit |
		uint64(exponent+exponentBias)<<54 |
		mantissa.Uint64()

	return binary.BigEndian.AppendUint64(nil, packed), nil
}

// encodeCurrency packs a three-character asset code into the standard
// 160-bit currency format.
func encodeCurrency(code string) ([]byte, error) {
	if len(code) != 3 || code == "XRP" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}

	for _, c := range code {
		if c < '!' || c > '~' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCurrency,
				code)
		}
	}

	buf := make([]byte, 20)
	copy(buf[12:15], code)
	return buf, nil
}
