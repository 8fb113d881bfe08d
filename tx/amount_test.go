package tx

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testIssuer = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"

// dec is a test helper for decimal literals.
func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// TestEncodeIssuedValue checks the packed value encoding against known
// vectors of the ledger's decimal format.
func TestEncodeIssuedValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  string
	}{
		{value: "1", want: "D4838D7EA4C68000"},
		{value: "0", want: "8000000000000000"},
		{value: "0.5", want: "D451C37937E08000"},
		{value: "25", want: "D4C8E1BC9BF04000"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.value, func(t *testing.T) {
			t.Parallel()

			got, err := encodeIssuedValue(dec(t, test.value))
			require.NoError(t, err)
			require.Equal(t, test.want,
				strings.ToUpper(hex.EncodeToString(got)))
		})
	}
}

// TestEncodeIssuedValueRejections verifies unrepresentable values fail
// rather than round.
func TestEncodeIssuedValueRejections(t *testing.T) {
	t.Parallel()

	for _, value := range []string{
		"-1",
		"1.0000000000000001",   // 17 significant digits
		"123456789012345678.9", // 19 significant digits
	} {
		_, err := encodeIssuedValue(dec(t, value))
		require.ErrorIs(t, err, ErrInvalidAmount, value)
	}
}

// TestEncodeDrops checks the native-amount encoding.
func TestEncodeDrops(t *testing.T) {
	t.Parallel()

	got, err := encodeDrops(12)
	require.NoError(t, err)
	require.Equal(t, "400000000000000C",
		strings.ToUpper(hex.EncodeToString(got)))

	_, err = encodeDrops(maxDrops + 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

// TestEncodeCurrency checks the 160-bit currency layout.
func TestEncodeCurrency(t *testing.T) {
	t.Parallel()

	buf, err := encodeCurrency("USD")
	require.NoError(t, err)
	require.Len(t, buf, 20)

	for i, b := range buf {
		if i >= 12 && i < 15 {
			continue
		}
		require.Zero(t, b)
	}
	require.Equal(t, "USD", string(buf[12:15]))

	for _, code := range []string{"", "US", "USDT", "XRP", "U\x19D"} {
		_, err := encodeCurrency(code)
		require.ErrorIs(t, err, ErrInvalidCurrency, code)
	}
}

// TestEncodeIssuedAmount checks the full 48-byte issued amount layout.
func TestEncodeIssuedAmount(t *testing.T) {
	t.Parallel()

	buf, err := encodeIssuedAmount(IssuedAmount{
		Currency: "USD",
		Issuer:   testIssuer,
		Value:    dec(t, "1"),
	})
	require.NoError(t, err)
	require.Len(t, buf, 48)

	require.Equal(t, "D4838D7EA4C68000",
		strings.ToUpper(hex.EncodeToString(buf[:8])))
	require.Equal(t, "USD", string(buf[20:23]))

	_, err = encodeIssuedAmount(IssuedAmount{
		Currency: "USD",
		Issuer:   "not-an-address",
		Value:    dec(t, "1"),
	})
	require.Error(t, err)
}
