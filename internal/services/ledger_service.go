package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/brazapay/backend/internal/models"
)

// TransitionResult reports the outcome of a terminal transition.
// Applied is false when the entry was already terminal; in that case
// the balance was not touched. NewBalanceCents is meaningful only for
// an applied APPROVED deposit.
type TransitionResult struct {
	Applied         bool
	NewBalanceCents int64
}

// DebitResult reports the outcome of a withdrawal debit attempt.
// NewBalanceCents carries the post-debit balance when applied and the
// untouched balance when rejected.
type DebitResult struct {
	Applied         bool
	NewBalanceCents int64
}

// EntryFilter narrows ListEntries.
type EntryFilter struct {
	Kind   string
	Status string
	Limit  int
	Offset int
}

// LedgerStore is the only component permitted to mutate account
// balances or ledger entry statuses. Every mutation runs as a single
// database transaction serialized by row locks, so concurrent callbacks
// for one entry or racing debits on one account cannot interleave.
type LedgerStore interface {
	CreatePendingEntry(ctx context.Context, entry *models.LedgerEntry) error
	RecordSettledWithdrawal(ctx context.Context, entry *models.LedgerEntry) error
	AttachExternalID(ctx context.Context, internalID, externalID string) error
	ResolveByAnyID(ctx context.Context, candidateID string) (*models.LedgerEntry, error)
	ApplyTerminalTransition(ctx context.Context, internalID, outcome string) (TransitionResult, error)
	DebitForWithdrawal(ctx context.Context, userID string, totalDebitCents int64) (DebitResult, error)
	CreditBack(ctx context.Context, userID string, amountCents int64) (int64, error)
	GetEntry(ctx context.Context, userID, entryID string) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]models.LedgerEntry, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
}

// SQLLedgerStore implements LedgerStore on a relational store through
// database/sql.
type SQLLedgerStore struct {
	db *sql.DB
}

func NewSQLLedgerStore(db *sql.DB) *SQLLedgerStore {
	return &SQLLedgerStore{db: db}
}

const entryColumns = `id, external_id, user_id, kind, gross_cents, net_cents, own_fee_cents, processor_fee_cents, status, pix_key, pix_key_type, description, qrcode_url, copy_paste, created_at, updated_at`

func scanEntry(row *sql.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var externalID sql.NullString
	err := row.Scan(&e.ID, &externalID, &e.UserID, &e.Kind, &e.GrossCents, &e.NetCents,
		&e.OwnFeeCents, &e.ProcessorFeeCents, &e.Status, &e.PixKey, &e.PixKeyType,
		&e.Description, &e.QRCodeURL, &e.CopyPaste, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.ExternalID = externalID.String
	return &e, nil
}

func (s *SQLLedgerStore) insertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	var externalID sql.NullString
	if entry.ExternalID != "" {
		externalID = sql.NullString{String: entry.ExternalID, Valid: true}
	}

	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, external_id, user_id, kind, gross_cents, net_cents,
			own_fee_cents, processor_fee_cents, status, pix_key,
			pix_key_type, description, qrcode_url, copy_paste,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		entry.ID, externalID, entry.UserID, entry.Kind, entry.GrossCents, entry.NetCents,
		entry.OwnFeeCents, entry.ProcessorFeeCents, entry.Status, entry.PixKey,
		entry.PixKeyType, entry.Description, entry.QRCodeURL, entry.CopyPaste,
		entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEntry
		}
		return err
	}
	return nil
}

// CreatePendingEntry inserts a new entry awaiting asynchronous
// confirmation. An id collision means our unique-id generation broke
// and is surfaced as ErrDuplicateEntry.
func (s *SQLLedgerStore) CreatePendingEntry(ctx context.Context, entry *models.LedgerEntry) error {
	entry.Status = models.StatusPending
	return s.insertEntry(ctx, entry)
}

// RecordSettledWithdrawal inserts a withdrawal that was settled
// synchronously against the processor. The debit happened beforehand
// through DebitForWithdrawal.
func (s *SQLLedgerStore) RecordSettledWithdrawal(ctx context.Context, entry *models.LedgerEntry) error {
	entry.Kind = models.KindWithdrawal
	entry.Status = models.StatusApproved
	return s.insertEntry(ctx, entry)
}

// AttachExternalID backfills the processor-assigned identifier on an
// entry. Re-attaching the same value is a no-op; attaching a different
// value over an existing one is an integrity violation.
func (s *SQLLedgerStore) AttachExternalID(ctx context.Context, internalID, externalID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET external_id = $2, updated_at = NOW()
		WHERE id = $1 AND (external_id IS NULL OR external_id = $2)`,
		internalID, externalID)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	var current sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT external_id FROM transactions WHERE id = $1`, internalID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrEntryNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: entry %s has %q, refusing %q", ErrInconsistentExternalID, internalID, current.String, externalID)
}

// ResolveByAnyID finds an entry by exact external-id match first, then
// by exact internal-id match. Callback payloads do not use a consistent
// identifier field, so both are tried; nothing beyond the two exact
// matches is ever guessed.
func (s *SQLLedgerStore) ResolveByAnyID(ctx context.Context, candidateID string) (*models.LedgerEntry, error) {
	if candidateID == "" {
		return nil, ErrEntryNotFound
	}

	entry, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM transactions WHERE external_id = $1`, candidateID))
	if err == nil {
		return entry, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// The id column is uuid typed. A candidate that is not a well-formed
	// uuid cannot match any internal id and would make the cast fail, so
	// it resolves to not-found without hitting the store.
	if _, parseErr := uuid.Parse(candidateID); parseErr != nil {
		return nil, ErrEntryNotFound
	}

	entry, err = scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM transactions WHERE id = $1`, candidateID))
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyTerminalTransition moves a pending entry to APPROVED or REFUSED
// exactly once. The entry row is locked for the duration, so a
// concurrent duplicate callback blocks, re-reads the terminal status
// and returns Applied=false without touching the balance. An APPROVED
// deposit credits the net amount; the user-row update takes the same
// lock DebitForWithdrawal takes, serializing both against the account.
func (s *SQLLedgerStore) ApplyTerminalTransition(ctx context.Context, internalID, outcome string) (TransitionResult, error) {
	if outcome != models.StatusApproved && outcome != models.StatusRefused {
		return TransitionResult{}, fmt.Errorf("invalid terminal outcome %q", outcome)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TransitionResult{}, err
	}
	defer tx.Rollback()

	var userID, kind, status string
	var netCents int64
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, kind, status, net_cents FROM transactions
		WHERE id = $1 FOR UPDATE`, internalID).Scan(&userID, &kind, &status, &netCents)
	if err == sql.ErrNoRows {
		return TransitionResult{}, ErrEntryNotFound
	}
	if err != nil {
		return TransitionResult{}, err
	}

	if status != models.StatusPending {
		// Already terminal: idempotent no-op.
		return TransitionResult{Applied: false}, nil
	}

	var newBalance int64
	if outcome == models.StatusApproved && kind == models.KindDeposit {
		err = tx.QueryRowContext(ctx, `
			UPDATE users SET balance_cents = balance_cents + $2, updated_at = NOW()
			WHERE id = $1 RETURNING balance_cents`, userID, netCents).Scan(&newBalance)
		if err == sql.ErrNoRows {
			return TransitionResult{}, fmt.Errorf("crediting entry %s: %w", internalID, ErrUserNotFound)
		}
		if err != nil {
			return TransitionResult{}, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`, internalID, outcome, models.StatusPending)
	if err != nil {
		return TransitionResult{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return TransitionResult{}, err
	}
	if rows != 1 {
		return TransitionResult{}, fmt.Errorf("entry %s changed status under lock", internalID)
	}

	if err := tx.Commit(); err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Applied: true, NewBalanceCents: newBalance}, nil
}

// DebitForWithdrawal atomically checks and debits the account. The row
// lock serializes concurrent debits and deposit credits on the same
// account, so exactly one of two racing withdrawals against a balance
// that covers only one can succeed.
func (s *SQLLedgerStore) DebitForWithdrawal(ctx context.Context, userID string, totalDebitCents int64) (DebitResult, error) {
	if totalDebitCents <= 0 {
		return DebitResult{}, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DebitResult{}, err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT balance_cents FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return DebitResult{}, ErrUserNotFound
	}
	if err != nil {
		return DebitResult{}, err
	}

	if balance < totalDebitCents {
		return DebitResult{Applied: false, NewBalanceCents: balance}, nil
	}

	newBalance := balance - totalDebitCents
	_, err = tx.ExecContext(ctx, `
		UPDATE users SET balance_cents = $2, updated_at = NOW() WHERE id = $1`,
		userID, newBalance)
	if err != nil {
		return DebitResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return DebitResult{}, err
	}
	return DebitResult{Applied: true, NewBalanceCents: newBalance}, nil
}

// CreditBack reverses a withdrawal debit after a failed payout call.
func (s *SQLLedgerStore) CreditBack(ctx context.Context, userID string, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET balance_cents = balance_cents + $2, updated_at = NOW()
		WHERE id = $1 RETURNING balance_cents`, userID, amountCents).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// GetEntry fetches one entry scoped to its owner.
func (s *SQLLedgerStore) GetEntry(ctx context.Context, userID, entryID string) (*models.LedgerEntry, error) {
	if _, err := uuid.Parse(entryID); err != nil {
		return nil, ErrEntryNotFound
	}

	entry, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, entryID, userID))
	if err == sql.ErrNoRows {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns a user's entries, newest first.
func (s *SQLLedgerStore) ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM transactions WHERE user_id = $1`
	args := []any{userID}

	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var externalID sql.NullString
		if err := rows.Scan(&e.ID, &externalID, &e.UserID, &e.Kind, &e.GrossCents, &e.NetCents,
			&e.OwnFeeCents, &e.ProcessorFeeCents, &e.Status, &e.PixKey, &e.PixKeyType,
			&e.Description, &e.QRCodeURL, &e.CopyPaste, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.ExternalID = externalID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetUser fetches an account holder's profile, needed when creating
// processor transactions on their behalf.
func (s *SQLLedgerStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, cpf, phone, email, role, balance_cents, created_at, updated_at
		FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Name, &u.CPF, &u.Phone, &u.Email, &u.Role, &u.BalanceCents, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetBalance reads the current balance.
func (s *SQLLedgerStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance_cents FROM users WHERE id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}
