package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	JournalTx
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccountByID(ctx context.Context, id int64) (Account, error)
	InsertAccount(ctx context.Context, account Account) (Account, error)
	UpdateAccount(ctx context.Context, account Account) (Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	AccountHasPostings(ctx context.Context, id int64) (bool, error)
	ListJournalEntries(ctx context.Context) ([]JournalEntry, error)
	GetJournalEntry(ctx context.Context, number string) (JournalEntry, error)
	FindReversalOf(ctx context.Context, number string) (JournalEntry, error)
	JournalWatermark(ctx context.Context) (int64, error)
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	*JournalStore
}

// NewTxRepository binds the accounting queries to an open transaction. Other
// modules use it to read the ledger inside their own transactions.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{JournalStore: NewJournalTx(tx)}
}

// JournalStore implements JournalTx on a pgx transaction.
type JournalStore struct {
	*shared.PgSequencer
	tx pgx.Tx
}

// NewJournalTx returns the posting surface for tx.
func NewJournalTx(tx pgx.Tx) *JournalStore {
	return &JournalStore{PgSequencer: shared.NewPgSequencer(tx), tx: tx}
}

const accountColumns = `id, code, name, type, is_system, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.IsSystem, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

// GetAccountByCode implements JournalTx.
func (s *JournalStore) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(s.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

// InsertJournalEntry implements JournalTx.
func (s *JournalStore) InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO journal_entries (number, date, description, reference_id, source_module, reversal_of)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		entry.Number, entry.Date, entry.Description, nullString(entry.ReferenceID), entry.SourceModule, nullString(entry.ReversalOf)).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_reversal" {
			return JournalEntry{}, ErrAlreadyReversed
		}
		return JournalEntry{}, err
	}
	for idx, line := range entry.Lines {
		if _, err := s.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, line_no, account_id, account_code, account_name, debit, credit)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, entry.ID, idx+1, line.AccountID, line.AccountCode, line.AccountName, line.Debit, line.Credit); err != nil {
			return JournalEntry{}, err
		}
	}
	return entry, nil
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) GetAccountByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertAccount(ctx context.Context, account Account) (Account, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, is_system) VALUES ($1,$2,$3,$4)
RETURNING id, created_at, updated_at`, account.Code, account.Name, account.Type, account.IsSystem).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, fmt.Errorf("%s: %w", account.Code, ErrDuplicateCode)
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, account Account) (Account, error) {
	err := r.tx.QueryRow(ctx, `UPDATE accounts SET code=$2, name=$3, type=$4, updated_at=NOW() WHERE id=$1 RETURNING updated_at`,
		account.ID, account.Code, account.Name, account.Type).Scan(&account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return account, err
}

func (r *txRepository) DeleteAccount(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1 AND NOT is_system`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) AccountHasPostings(ctx context.Context, id int64) (bool, error) {
	var used bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_lines WHERE account_id=$1)`, id).Scan(&used)
	return used, err
}

const entryColumns = `id, number, date, description, COALESCE(reference_id, ''), source_module, COALESCE(reversal_of, ''), created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.Description, &e.ReferenceID, &e.SourceModule, &e.ReversalOf, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, ErrJournalNotFound
	}
	return e, err
}

// ListJournalEntries returns entries in posting order with their lines.
func (r *txRepository) ListJournalEntries(ctx context.Context) ([]JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var entries []JournalEntry
	index := make(map[int64]int)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lineRows, err := r.tx.Query(ctx, `SELECT je_id, account_id, account_code, account_name, debit, credit FROM journal_lines ORDER BY je_id, line_no`)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var entryID int64
		var line JournalLine
		if err := lineRows.Scan(&entryID, &line.AccountID, &line.AccountCode, &line.AccountName, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		if pos, ok := index[entryID]; ok {
			entries[pos].Lines = append(entries[pos].Lines, line)
		}
	}
	return entries, lineRows.Err()
}

func (r *txRepository) GetJournalEntry(ctx context.Context, number string) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE number=$1`, number))
	if err != nil {
		return JournalEntry{}, err
	}
	return r.loadLines(ctx, entry)
}

func (r *txRepository) FindReversalOf(ctx context.Context, number string) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reversal_of=$1`, number))
	if err != nil {
		return JournalEntry{}, err
	}
	return r.loadLines(ctx, entry)
}

func (r *txRepository) JournalWatermark(ctx context.Context) (int64, error) {
	var mark int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM journal_entries`).Scan(&mark)
	return mark, err
}

func (r *txRepository) loadLines(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT account_id, account_code, account_name, debit, credit FROM journal_lines WHERE je_id=$1 ORDER BY line_no`, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.AccountID, &line.AccountCode, &line.AccountName, &line.Debit, &line.Credit); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
