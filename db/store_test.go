package db

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testDestination = "rrrrrrrrrrrrrrrrrrrrrhoLvTp"
	testHash        = "0123456789ABCDEF0123456789ABCDEF" +
		"0123456789ABCDEF0123456789ABCDEF"
)

// newTestStore opens an in-memory store on a deterministic clock.
func newTestStore(t *testing.T) (*Store, *clock.TestClock) {
	t.Helper()

	testClock := clock.NewTestClock(
		time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	)

	store, err := NewStore(&Config{
		UseMemory: true,
		Clock:     testClock,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store, testClock
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// recordFor inserts a pending record for the given beneficiary.
func recordFor(t *testing.T, store *Store,
	beneficiary string) *TransactionRecord {

	t.Helper()

	rec, err := store.RecordAttempt(
		context.Background(), beneficiary, testDestination, "USD",
		dec(t, "25"),
	)
	require.NoError(t, err)
	return rec
}

// TestRecordAttempt verifies the initial pending record.
func TestRecordAttempt(t *testing.T) {
	t.Parallel()

	store, testClock := newTestStore(t)

	rec := recordFor(t, store, "alice")
	require.NotZero(t, rec.ID)
	require.Equal(t, StatusPending, rec.Status)
	require.Equal(t, testClock.Now().UTC(), rec.CreatedAt)

	stored, err := store.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", stored.Beneficiary)
	require.Equal(t, testDestination, stored.Destination)
	require.Equal(t, "25", stored.Amount.String())
	require.Equal(t, StatusPending, stored.Status)
	require.Empty(t, stored.TxHash)
	require.True(t, stored.FinalizedAt.IsZero())
}

// TestFinalizeOnce verifies a record can reach a terminal status exactly
// once.
func TestFinalizeOnce(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := recordFor(t, store, "alice")

	err := store.Finalize(
		ctx, rec.ID, StatusSuccess, testHash, "tesSUCCESS", "25", 42,
	)
	require.NoError(t, err)

	stored, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, stored.Status)
	require.Equal(t, testHash, stored.TxHash)
	require.Equal(t, "tesSUCCESS", stored.ResultCode)
	require.Equal(t, "25", stored.DeliveredAmount)
	require.EqualValues(t, 42, stored.LedgerIndex)
	require.False(t, stored.FinalizedAt.IsZero())

	// A second finalization never rewrites a terminal record.
	err = store.Finalize(
		ctx, rec.ID, StatusFailure, testHash, "tecPATH_DRY", "", 43,
	)
	require.ErrorIs(t, err, ErrAlreadyFinalized)

	unchanged, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, unchanged.Status)
}

// TestFinalizeValidation verifies status and existence checks.
func TestFinalizeValidation(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := recordFor(t, store, "alice")

	err := store.Finalize(ctx, rec.ID, StatusPending, "", "", "", 0)
	require.ErrorIs(t, err, ErrNotTerminal)

	err = store.Finalize(ctx, 9999, StatusFailure, "", "", "", 0)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

// TestAttachHash verifies hash attachment on pending records only.
func TestAttachHash(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := recordFor(t, store, "alice")

	require.NoError(t, store.AttachHash(ctx, rec.ID, testHash, 1500))

	stored, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Equal(t, testHash, stored.TxHash)
	require.EqualValues(t, 1500, stored.LastLedger)

	// Finalizing with an empty hash keeps the attached one.
	err = store.Finalize(ctx, rec.ID, StatusFailure, "", "expired", "", 0)
	require.NoError(t, err)

	stored, err = store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, testHash, stored.TxHash)

	err = store.AttachHash(ctx, rec.ID, testHash, 1500)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

// TestListQueries verifies the history views.
func TestListQueries(t *testing.T) {
	t.Parallel()

	store, testClock := newTestStore(t)
	ctx := context.Background()

	first := recordFor(t, store, "alice")
	testClock.SetTime(testClock.Now().Add(time.Minute))
	second := recordFor(t, store, "bob")
	testClock.SetTime(testClock.Now().Add(time.Minute))
	third := recordFor(t, store, "alice")

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, third.ID, all[0].ID)
	require.Equal(t, first.ID, all[2].ID)

	alice, err := store.ListByBeneficiary(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	require.Equal(t, third.ID, alice[0].ID)

	latest, err := store.LatestPerBeneficiary(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, third.ID, latest[0].ID)
	require.Equal(t, second.ID, latest[1].ID)
}

// TestListUnresolved verifies only pending records with hashes are listed.
func TestListUnresolved(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	// Pending without hash: not yet submitted, nothing to reconcile.
	recordFor(t, store, "alice")

	withHash := recordFor(t, store, "bob")
	require.NoError(t, store.AttachHash(ctx, withHash.ID, testHash, 900))

	finalized := recordFor(t, store, "carol")
	err := store.Finalize(
		ctx, finalized.ID, StatusSuccess,
		"F000000000000000000000000000000000000000000000000000000000000000",
		"tesSUCCESS", "25", 41,
	)
	require.NoError(t, err)

	unresolved, err := store.ListUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	require.Equal(t, withHash.ID, unresolved[0].ID)
	require.Equal(t, testHash, unresolved[0].TxHash)
}

// TestGetRecordNotFound verifies the missing record error.
func TestGetRecordNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.GetRecord(context.Background(), 12345)
	require.ErrorIs(t, err, ErrRecordNotFound)
}
