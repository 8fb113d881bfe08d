package tx

import (
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ledgerpay/settlement/wallet"
)

// Serialization hash prefixes. The signing digest and the transaction ID are
// computed over the serialized body with a distinct four-byte prefix each.
var (
	signingPrefix = []byte{0x53, 0x54, 0x58, 0x00} // "STX\0"
	txIDPrefix    = []byte{0x54, 0x58, 0x4e, 0x00} // "TXN\0"
)

// Field type codes of the canonical binary format.
const (
	typeUInt16    = 1
	typeUInt32    = 2
	typeAmount    = 6
	typeBlob      = 7
	typeAccountID = 8
)

// Field codes within their type, for every field this module serializes.
const (
	fieldTransactionType    = 2  // UInt16
	fieldFlags              = 2  // UInt32
	fieldSequence           = 4  // UInt32
	fieldLastLedgerSequence = 27 // UInt32
	fieldSetFlag            = 33 // UInt32
	fieldAmount             = 1  // Amount
	fieldLimitAmount        = 3  // Amount
	fieldFee                = 8  // Amount
	fieldSigningPubKey      = 3  // Blob
	fieldTxnSignature       = 4  // Blob
	fieldAccount            = 1  // AccountID
	fieldDestination        = 3  // AccountID
)

// field is one encoded field awaiting canonical ordering.
type field struct {
	typeCode  int
	fieldCode int
	data      []byte
}

// SigningBlob serializes the transaction for signing: every signing field in
// canonical order, without the signature, prefixed with the signing hash
// prefix.
func SigningBlob(t Transaction) ([]byte, error) {
	fields, err := collectFields(t, false)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, 256)
	blob = append(blob, signingPrefix...)
	return appendFields(blob, fields), nil
}

// SignedBlob serializes the fully signed transaction for submission.
func SignedBlob(t Transaction) ([]byte, error) {
	if len(t.Common().TxnSignature) == 0 {
		return nil, fmt.Errorf("%w: TxnSignature", ErrMissingField)
	}

	fields, err := collectFields(t, true)
	if err != nil {
		return nil, err
	}

	return appendFields(make([]byte, 0, 256), fields), nil
}

// TxID computes the transaction identifier of a signed blob as uppercase
// hex.
func TxID(signedBlob []byte) string {
	buf := make([]byte, 0, len(txIDPrefix)+len(signedBlob))
	buf = append(buf, txIDPrefix...)
	buf = append(buf, signedBlob...)

	sum := sha512.Sum512(buf)
	return strings.ToUpper(hex.EncodeToString(sum[:32]))
}

// BlobHex renders a serialized blob as the uppercase hex string the ledger's
// submit command expects.
func BlobHex(blob []byte) string {
	return strings.ToUpper(hex.EncodeToString(blob))
}

// collectFields encodes every present field of the transaction.
func collectFields(t Transaction, withSignature bool) ([]field, error) {
	c := t.Common()

	if c.Account == "" {
		return nil, fmt.Errorf("%w: Account", ErrMissingField)
	}
	if c.Sequence == 0 {
		return nil, fmt.Errorf("%w: Sequence", ErrMissingField)
	}
	if c.Fee == 0 {
		return nil, fmt.Errorf("%w: Fee", ErrMissingField)
	}
	if c.LastLedgerSequence == 0 {
		return nil, fmt.Errorf("%w: LastLedgerSequence", ErrMissingField)
	}
	if len(c.SigningPubKey) == 0 {
		return nil, fmt.Errorf("%w: SigningPubKey", ErrMissingField)
	}

	fee, err := encodeDrops(c.Fee)
	if err != nil {
		return nil, err
	}

	account, err := wallet.DecodeClassicAddress(c.Account)
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}

	fields := []field{
		{typeUInt16, fieldTransactionType, encodeUInt16(t.TxType())},
		{typeUInt32, fieldSequence, encodeUInt32(c.Sequence)},
		{typeUInt32, fieldLastLedgerSequence,
			encodeUInt32(c.LastLedgerSequence)},
		{typeAmount, fieldFee, fee},
		{typeBlob, fieldSigningPubKey, encodeVL(c.SigningPubKey)},
		{typeAccountID, fieldAccount, encodeVL(account[:])},
	}

	if c.Flags != 0 {
		fields = append(fields, field{
			typeUInt32, fieldFlags, encodeUInt32(c.Flags),
		})
	}

	if withSignature {
		fields = append(fields, field{
			typeBlob, fieldTxnSignature, encodeVL(c.TxnSignature),
		})
	}

	switch v := t.(type) {
	case *Payment:
		amount, err := encodeIssuedAmount(v.Amount)
		if err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}

		destination, err := wallet.DecodeClassicAddress(v.Destination)
		if err != nil {
			return nil, fmt.Errorf("destination: %w", err)
		}

		fields = append(fields,
			field{typeAmount, fieldAmount, amount},
			field{typeAccountID, fieldDestination,
				encodeVL(destination[:])},
		)

	case *TrustSet:
		limit, err := encodeIssuedAmount(v.LimitAmount)
		if err != nil {
			return nil, fmt.Errorf("limit: %w", err)
		}

		fields = append(fields, field{
			typeAmount, fieldLimitAmount, limit,
		})

	case *AccountSet:
		if v.SetFlag == 0 {
			return nil, fmt.Errorf("%w: SetFlag", ErrMissingField)
		}

		fields = append(fields, field{
			typeUInt32, fieldSetFlag, encodeUInt32(v.SetFlag),
		})

	default:
		return nil, fmt.Errorf("unsupported transaction type %T", t)
	}

	return fields, nil
}

// appendFields emits fields in canonical (type code, field code) order.
func appendFields(blob []byte, fields []field) []byte {
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].typeCode != fields[j].typeCode {
			return fields[i].typeCode < fields[j].typeCode
		}
		return fields[i].fieldCode < fields[j].fieldCode
	})

	for _, f := range fields {
		blob = appendFieldHeader(blob, f.typeCode, f.fieldCode)
		blob = append(blob, f.data...)
	}
	return blob
}

// appendFieldHeader emits the compact field identifier.
func appendFieldHeader(blob []byte, typeCode, fieldCode int) []byte {
	switch {
	case typeCode < 16 && fieldCode < 16:
		return append(blob, byte(typeCode<<4|fieldCode))
	case typeCode < 16:
		return append(blob, byte(typeCode<<4), byte(fieldCode))
	case fieldCode < 16:
		return append(blob, byte(fieldCode), byte(typeCode))
	default:
		return append(blob, 0x00, byte(typeCode), byte(fieldCode))
	}
}

func encodeUInt16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func encodeUInt32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// encodeVL prefixes data with the variable-length encoding of its size.
func encodeVL(data []byte) []byte {
	n := len(data)

	var prefix []byte
	switch {
	case n <= 192:
		prefix = []byte{byte(n)}
	case n <= 12480:
		n -= 193
		prefix = []byte{byte(193 + n>>8), byte(n & 0xff)}
	default:
		n -= 12481
		prefix = []byte{
			byte(241 + n>>16), byte(n >> 8 & 0xff), byte(n & 0xff),
		}
	}

	buf := make([]byte, 0, len(prefix)+len(data))
	buf = append(buf, prefix...)
	buf = append(buf, data...)
	return buf
}
