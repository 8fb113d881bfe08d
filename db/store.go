// Package db persists one durable record per submitted settlement, the
// source of truth for what this deployment attempted and how it ended.
// Records are written before submission and finalized exactly once; a
// pending record carrying a transaction hash marks an outcome that still
// needs reconciling against the ledger.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite" // SQLite driver
)

var (
	// ErrRecordNotFound is returned when no record exists for the given
	// identifier.
	ErrRecordNotFound = errors.New("settlement record not found")

	// ErrAlreadyFinalized is returned when a terminal record is finalized
	// or mutated again.
	ErrAlreadyFinalized = errors.New("settlement record already finalized")

	// ErrNotTerminal is returned when Finalize is called with a
	// non-terminal status.
	ErrNotTerminal = errors.New("finalize requires a terminal status")
)

// Status is the lifecycle state of a settlement record.
type Status string

const (
	// StatusPending means the outcome is not yet known.
	StatusPending Status = "pending"

	// StatusSuccess means the ledger validated the payment with a
	// success code.
	StatusSuccess Status = "success"

	// StatusFailure means the payment terminally failed.
	StatusFailure Status = "failure"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// TransactionRecord is one durable settlement record.
type TransactionRecord struct {
	// ID is the store-assigned record identifier.
	ID int64

	// Beneficiary is the caller-facing identity the payout was addressed
	// to, before resolution to a ledger address.
	Beneficiary string

	// Destination is the resolved classic address.
	Destination string

	// Currency is the asset code of the payout.
	Currency string

	// Amount is the payout amount.
	Amount decimal.Decimal

	// Status is the record's lifecycle state.
	Status Status

	// TxHash is the transaction identifier, empty until a transaction
	// was signed.
	TxHash string

	// LastLedger is the ledger index past which the signed transaction
	// can no longer validate. Zero until a transaction was signed.
	LastLedger uint32

	// ResultCode is the ledger's final result code, set at finalization.
	ResultCode string

	// DeliveredAmount is the amount the ledger reports as delivered.
	DeliveredAmount string

	// LedgerIndex is the validated ledger that settled the transaction.
	LedgerIndex uint32

	// CreatedAt is when the attempt was recorded, before submission.
	CreatedAt time.Time

	// FinalizedAt is when the record reached a terminal status. Zero
	// while pending.
	FinalizedAt time.Time
}

// Config holds configuration for the settlement store.
type Config struct {
	// Path is the database file path.
	Path string

	// UseMemory selects an in-memory database, useful for testing.
	UseMemory bool

	// SkipMigrations skips schema migrations on open.
	SkipMigrations bool

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock
}

// Store is the settlement record store backed by a single SQLite database.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// NewStore opens (and if needed creates) the settlement store.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	dbPath := cfg.Path
	if cfg.UseMemory {
		dbPath = ":memory:"
	}
	if dbPath == "" {
		return nil, fmt.Errorf("database path required")
	}

	dsn := fmt.Sprintf(
		"%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath,
	)
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The driver is not safe for concurrent writers on one file.
	database.SetMaxOpenConns(1)

	if !cfg.SkipMigrations {
		if err := runMigrations(database); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	c := cfg.Clock
	if c == nil {
		c = clock.NewDefaultClock()
	}

	return &Store{
		db:    database,
		clock: c,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAttempt writes a new pending record for a payout that cleared
// preflight and is about to be submitted.
func (s *Store) RecordAttempt(ctx context.Context, beneficiary, destination,
	currency string, amount decimal.Decimal) (*TransactionRecord, error) {

	now := s.clock.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_records (
			beneficiary, destination, currency, amount, status,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		beneficiary, destination, currency, amount.String(),
		string(StatusPending), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read record id: %w", err)
	}

	return &TransactionRecord{
		ID:          id,
		Beneficiary: beneficiary,
		Destination: destination,
		Currency:    currency,
		Amount:      amount,
		Status:      StatusPending,
		CreatedAt:   now,
	}, nil
}

// AttachHash stores the transaction hash and expiry ledger on a
// still-pending record, tying the record to the signed transaction before
// its outcome is known.
func (s *Store) AttachHash(ctx context.Context, id int64, hash string,
	lastLedger uint32) error {

	res, err := s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET tx_hash = ?, last_ledger = ?
		WHERE id = ? AND status = ?`,
		hash, lastLedger, id, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to attach hash: %w", err)
	}

	return s.checkUpdated(ctx, res, id)
}

// Finalize moves a pending record to a terminal status, exactly once. A
// record that already reached a terminal status is never rewritten,
// regardless of what a later reconciliation claims.
func (s *Store) Finalize(ctx context.Context, id int64, status Status, hash,
	resultCode, deliveredAmount string, ledgerIndex uint32) error {

	if !status.Terminal() {
		return fmt.Errorf("%w: %s", ErrNotTerminal, status)
	}

	now := s.clock.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET status = ?,
		    tx_hash = COALESCE(NULLIF(?, ''), tx_hash),
		    result_code = ?,
		    delivered_amount = ?,
		    ledger_index = ?,
		    finalized_at = ?
		WHERE id = ? AND status = ?`,
		string(status), hash, resultCode, deliveredAmount, ledgerIndex,
		now, id, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize record %d: %w", id, err)
	}

	return s.checkUpdated(ctx, res, id)
}

// checkUpdated distinguishes "no such record" from "record no longer
// pending" after a guarded update touched zero rows.
func (s *Store) checkUpdated(ctx context.Context, res sql.Result,
	id int64) error {

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of record %d: %w",
			id, err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.GetRecord(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("record %d: %w", id, ErrAlreadyFinalized)
}

// GetRecord fetches one record by identifier.
func (s *Store) GetRecord(ctx context.Context,
	id int64) (*TransactionRecord, error) {

	row := s.db.QueryRowContext(ctx, `
		SELECT id, beneficiary, destination, currency, amount, status,
		       tx_hash, last_ledger, result_code, delivered_amount,
		       ledger_index, created_at, finalized_at
		FROM transaction_records
		WHERE id = ?`, id,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, ErrRecordNotFound)
	}
	return rec, err
}

// ListAll returns every record, newest first.
func (s *Store) ListAll(ctx context.Context) ([]*TransactionRecord, error) {
	return s.queryRecords(ctx, `
		SELECT id, beneficiary, destination, currency, amount, status,
		       tx_hash, last_ledger, result_code, delivered_amount,
		       ledger_index, created_at, finalized_at
		FROM transaction_records
		ORDER BY created_at DESC, id DESC`,
	)
}

// ListByBeneficiary returns every record for one beneficiary, newest first.
func (s *Store) ListByBeneficiary(ctx context.Context,
	beneficiary string) ([]*TransactionRecord, error) {

	return s.queryRecords(ctx, `
		SELECT id, beneficiary, destination, currency, amount, status,
		       tx_hash, last_ledger, result_code, delivered_amount,
		       ledger_index, created_at, finalized_at
		FROM transaction_records
		WHERE beneficiary = ?
		ORDER BY created_at DESC, id DESC`,
		beneficiary,
	)
}

// LatestPerBeneficiary returns each beneficiary's most recent record.
func (s *Store) LatestPerBeneficiary(
	ctx context.Context) ([]*TransactionRecord, error) {

	return s.queryRecords(ctx, `
		SELECT id, beneficiary, destination, currency, amount, status,
		       tx_hash, last_ledger, result_code, delivered_amount,
		       ledger_index, created_at, finalized_at
		FROM transaction_records
		WHERE id IN (
			SELECT MAX(id) FROM transaction_records
			GROUP BY beneficiary
		)
		ORDER BY created_at DESC, id DESC`,
	)
}

// ListUnresolved returns pending records that carry a transaction hash:
// submissions whose outcome was never observed and that need reconciling
// against the ledger.
func (s *Store) ListUnresolved(
	ctx context.Context) ([]*TransactionRecord, error) {

	return s.queryRecords(ctx, `
		SELECT id, beneficiary, destination, currency, amount, status,
		       tx_hash, last_ledger, result_code, delivered_amount,
		       ledger_index, created_at, finalized_at
		FROM transaction_records
		WHERE status = ? AND tx_hash IS NOT NULL
		ORDER BY created_at ASC, id ASC`,
		string(StatusPending),
	)
}

// queryRecords runs a record query and scans all rows.
func (s *Store) queryRecords(ctx context.Context, query string,
	args ...any) ([]*TransactionRecord, error) {

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one record row.
func scanRecord(row rowScanner) (*TransactionRecord, error) {
	var (
		rec         TransactionRecord
		amount      string
		status      string
		txHash      sql.NullString
		finalizedAt sql.NullTime
	)

	err := row.Scan(
		&rec.ID, &rec.Beneficiary, &rec.Destination, &rec.Currency,
		&amount, &status, &txHash, &rec.LastLedger, &rec.ResultCode,
		&rec.DeliveredAmount, &rec.LedgerIndex, &rec.CreatedAt,
		&finalizedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount %q: %w",
			amount, err)
	}

	rec.Status = Status(status)
	rec.TxHash = txHash.String
	if finalizedAt.Valid {
		rec.FinalizedAt = finalizedAt.Time
	}

	return &rec, nil
}
