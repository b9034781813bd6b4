package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service coordinates the chart of accounts and manual journal postings.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditPort
	locker *shared.DocumentLocker
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit shared.AuditPort, locker *shared.DocumentLocker) *Service {
	return &Service{repo: repo, audit: audit, locker: locker, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ManualEntryInput is a journal entry keyed by the operator.
type ManualEntryInput struct {
	Date        time.Time
	Description string
	ReferenceID string
	Lines       []PostingLineInput
}

// AccountInput carries editable account fields.
type AccountInput struct {
	Code string
	Name string
	Type AccountType
}

// CreateJournalEntry validates and posts a manual entry.
func (s *Service) CreateJournalEntry(ctx context.Context, input ManualEntryInput) (JournalEntry, error) {
	posting := PostingInput{
		Date:         input.Date,
		Description:  strings.TrimSpace(input.Description),
		ReferenceID:  input.ReferenceID,
		SourceModule: SourceManual,
		Lines:        input.Lines,
	}
	if posting.Date.IsZero() {
		posting.Date = s.now()
	}
	if err := posting.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = Post(ctx, tx, posting)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, "journal.post", "journal_entry", entry.Number, map[string]any{
		"source_module": entry.SourceModule,
	})
	return entry, nil
}

// ReverseJournalEntry posts the mirror image of number. Reversals cannot be
// reversed and an entry can be reversed only once.
func (s *Service) ReverseJournalEntry(ctx context.Context, number string, date time.Time) (JournalEntry, error) {
	if strings.TrimSpace(number) == "" {
		return JournalEntry{}, fmt.Errorf("accounting: entry id required: %w", shared.ErrValidation)
	}
	var reversal JournalEntry
	err := s.locker.WithLock(ctx, shared.DocumentLockKey("journal", number), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			original, err := tx.GetJournalEntry(ctx, number)
			if err != nil {
				return err
			}
			if original.ReversalOf != "" {
				return fmt.Errorf("%s is itself a reversal: %w", number, ErrAlreadyReversed)
			}
			existing, err := tx.FindReversalOf(ctx, number)
			if err == nil {
				return fmt.Errorf("%s reversed by %s: %w", number, existing.Number, ErrAlreadyReversed)
			}
			if !errors.Is(err, ErrJournalNotFound) {
				return err
			}
			if date.IsZero() {
				date = s.now()
			}
			reversal, err = Post(ctx, tx, ReversalInput(original, date))
			return err
		})
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, "journal.reverse", "journal_entry", number, map[string]any{
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

// ListJournalEntries retrieves all journal entries, most recent first.
func (s *Service) ListJournalEntries(ctx context.Context) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListJournalEntries(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// GetJournalEntry loads a single entry by number.
func (s *Service) GetJournalEntry(ctx context.Context, number string) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournalEntry(ctx, number)
		return err
	})
	return entry, err
}

// ListAccounts retrieves all chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// CreateAccount adds a non-system account.
func (s *Service) CreateAccount(ctx context.Context, input AccountInput) (Account, error) {
	account := Account{
		Code: strings.TrimSpace(input.Code),
		Name: strings.TrimSpace(input.Name),
		Type: input.Type,
	}
	if err := account.Validate(); err != nil {
		return Account{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccountByCode(ctx, account.Code); err == nil {
			return fmt.Errorf("%s: %w", account.Code, ErrDuplicateCode)
		} else if !errors.Is(err, ErrAccountNotFound) {
			return err
		}
		var err error
		account, err = tx.InsertAccount(ctx, account)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.create", "account", account.Code, nil)
	return account, nil
}

// UpdateAccount edits a non-system account.
func (s *Service) UpdateAccount(ctx context.Context, id int64, input AccountInput) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccountByID(ctx, id)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return fmt.Errorf("%s: %w", current.Code, ErrSystemAccount)
		}
		next := current
		if code := strings.TrimSpace(input.Code); code != "" && code != current.Code {
			if _, err := tx.GetAccountByCode(ctx, code); err == nil {
				return fmt.Errorf("%s: %w", code, ErrDuplicateCode)
			} else if !errors.Is(err, ErrAccountNotFound) {
				return err
			}
			next.Code = code
		}
		if name := strings.TrimSpace(input.Name); name != "" {
			next.Name = name
		}
		if input.Type != "" {
			next.Type = input.Type
		}
		if err := next.Validate(); err != nil {
			return err
		}
		account, err = tx.UpdateAccount(ctx, next)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.update", "account", account.Code, nil)
	return account, nil
}

// DeleteAccount removes a non-system account that has never been posted to.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccountByID(ctx, id)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return fmt.Errorf("%s: %w", current.Code, ErrSystemAccount)
		}
		used, err := tx.AccountHasPostings(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%s: %w", current.Code, ErrAccountInUse)
		}
		code = current.Code
		return tx.DeleteAccount(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "account.delete", "account", code, nil)
	return nil
}

// SeedChart inserts any missing system accounts. Existing codes are left untouched.
func (s *Service) SeedChart(ctx context.Context) (int, error) {
	inserted := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, account := range DefaultChart() {
			if _, err := tx.GetAccountByCode(ctx, account.Code); err == nil {
				continue
			} else if !errors.Is(err, ErrAccountNotFound) {
				return err
			}
			if _, err := tx.InsertAccount(ctx, account); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	return inserted, err
}

func (s *Service) record(ctx context.Context, action, entity, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["correlation_id"] = uuid.NewString()
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
		At:       s.now(),
	})
}
