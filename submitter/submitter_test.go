package submitter

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerpay/settlement/chain/xrpld"
	"github.com/ledgerpay/settlement/tx"
	"github.com/ledgerpay/settlement/wallet"
)

const (
	testIssuer      = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	testDestination = "rrrrrrrrrrrrrrrrrrrrrhoLvTp"
)

// submission captures one SubmitAndAwait call.
type submission struct {
	blobHex       string
	hash          string
	lastLedgerSeq uint32
}

// fakeLedger answers the submission pipeline with canned values and records
// what was submitted.
type fakeLedger struct {
	current  uint32
	sequence uint32
	fee      uint64

	outcome   *xrpld.Outcome
	submitErr error

	mu          sync.Mutex
	submissions []submission

	inFlight   atomic.Int32
	overlapped atomic.Bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		current:  1000,
		sequence: 7,
		fee:      12,
	}
}

func (f *fakeLedger) LedgerCurrent(_ context.Context) (uint32, error) {
	return f.current, nil
}

func (f *fakeLedger) AccountInfo(_ context.Context,
	address string) (*xrpld.AccountInfo, error) {

	return &xrpld.AccountInfo{
		Address:  address,
		Sequence: f.sequence,
	}, nil
}

func (f *fakeLedger) Fee(_ context.Context) (uint64, error) {
	return f.fee, nil
}

func (f *fakeLedger) SubmitAndAwait(_ context.Context, blobHex, hash string,
	lastLedgerSeq uint32) (*xrpld.Outcome, error) {

	if f.inFlight.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	time.Sleep(time.Millisecond)
	f.inFlight.Add(-1)

	f.mu.Lock()
	f.submissions = append(f.submissions, submission{
		blobHex:       blobHex,
		hash:          hash,
		lastLedgerSeq: lastLedgerSeq,
	})
	f.mu.Unlock()

	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.outcome != nil {
		return f.outcome, nil
	}

	return &xrpld.Outcome{
		Status:     xrpld.OutcomeSuccess,
		Hash:       hash,
		ResultCode: "tesSUCCESS",
		LastLedger: lastLedgerSeq,
	}, nil
}

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()

	w, _, err := wallet.Generate(wallet.RolePayout)
	require.NoError(t, err)
	return w
}

func testAmount(t *testing.T) tx.IssuedAmount {
	t.Helper()

	value, err := decimal.NewFromString("25")
	require.NoError(t, err)

	return tx.IssuedAmount{
		Currency: "USD",
		Issuer:   testIssuer,
		Value:    value,
	}
}

// TestSubmitPaymentPipeline verifies the pipeline stamps ledger-derived
// fields and submits a blob whose hash matches the reported one.
func TestSubmitPaymentPipeline(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	s := New(&Config{
		Ledger:        ledger,
		ExpiryHorizon: 100,
	})

	outcome, err := s.SubmitPayment(
		context.Background(), testWallet(t), testDestination,
		testAmount(t),
	)
	require.NoError(t, err)
	require.True(t, outcome.Settled())

	require.Len(t, ledger.submissions, 1)
	sub := ledger.submissions[0]

	// Expiry ledger is current index plus the configured horizon.
	require.EqualValues(t, 1100, sub.lastLedgerSeq)

	// The reported hash is the ID of the submitted blob.
	blob, err := hex.DecodeString(sub.blobHex)
	require.NoError(t, err)
	require.Equal(t, tx.TxID(blob), sub.hash)
	require.Equal(t, sub.hash, outcome.Hash)
}

// TestSubmitDefaultHorizon verifies the default expiry horizon applies.
func TestSubmitDefaultHorizon(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	s := New(&Config{Ledger: ledger})

	_, err := s.SubmitTrustSet(
		context.Background(), testWallet(t), testAmount(t),
	)
	require.NoError(t, err)

	require.Len(t, ledger.submissions, 1)
	require.EqualValues(t, 1000+DefaultExpiryHorizon,
		ledger.submissions[0].lastLedgerSeq)
}

// TestSubmitConnectionLost verifies a lost connection during submission
// yields an unresolved outcome carrying the hash, never an error.
func TestSubmitConnectionLost(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	ledger.submitErr = xrpld.ErrConnectionLost

	s := New(&Config{Ledger: ledger})

	outcome, err := s.SubmitPayment(
		context.Background(), testWallet(t), testDestination,
		testAmount(t),
	)
	require.NoError(t, err)
	require.Equal(t, xrpld.OutcomeUnresolved, outcome.Status)
	require.NotEmpty(t, outcome.Hash)
	require.EqualValues(t, 1000+DefaultExpiryHorizon,
		outcome.LastLedger)
}

// TestSubmitAccountSet verifies flag updates flow through the pipeline.
func TestSubmitAccountSet(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	s := New(&Config{Ledger: ledger})

	outcome, err := s.SubmitAccountSet(
		context.Background(), testWallet(t), tx.FlagDefaultRipple,
	)
	require.NoError(t, err)
	require.True(t, outcome.Settled())
	require.Len(t, ledger.submissions, 1)
}

// TestSubmitSerializesPerAccount verifies submissions from one account
// never overlap.
func TestSubmitSerializesPerAccount(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	s := New(&Config{Ledger: ledger})

	signer := testWallet(t)
	amount := testAmount(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.SubmitPayment(
				context.Background(), signer,
				testDestination, amount,
			)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, ledger.submissions, 5)
	require.False(t, ledger.overlapped.Load())
}
