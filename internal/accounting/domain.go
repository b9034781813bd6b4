package accounting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this type grow with debits.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account codes referenced by the posting templates.
const (
	CodeCash               = "111"
	CodeBank               = "112"
	CodeAccountsReceivable = "131"
	CodeVATReceivable      = "133"
	CodeInventory          = "156"
	CodeAccountsPayable    = "331"
	CodeVATPayable         = "3331"
	CodeOwnerEquity        = "411"
	CodeRevenue            = "511"
	CodeCOGS               = "632"
	CodeOtherIncome        = "711"
	CodeOtherExpense       = "811"
)

// JournalPrefix numbers journal entries (JE001, JE002, ...).
const JournalPrefix = "JE"

// Source modules stamped on generated entries.
const (
	SourceManual        = "accounting"
	SourceReversal      = "accounting:reversal"
	SourceSales         = "sales"
	SourceProcurement   = "procurement"
	SourceInventory     = "inventory"
	SourceManufacturing = "manufacturing"
)

// Account models a chart of accounts node.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	IsSystem  bool        `json:"isSystemAccount"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Balance applies the sign convention of the account type to raw totals.
func (a Account) Balance(debit, credit decimal.Decimal) decimal.Decimal {
	if a.Type.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64         `json:"-"`
	Number       string        `json:"id"`
	Date         time.Time     `json:"date"`
	Description  string        `json:"description"`
	ReferenceID  string        `json:"referenceId,omitempty"`
	SourceModule string        `json:"sourceModule"`
	ReversalOf   string        `json:"reversalOf,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	Lines        []JournalLine `json:"lines"`
}

// Totals returns the debit and credit sums of the entry.
func (e JournalEntry) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// JournalLine stores debit or credit amount for an account. Code and name are
// snapshots taken when the entry was posted.
type JournalLine struct {
	AccountID   int64           `json:"accountId"`
	AccountCode string          `json:"accountCode"`
	AccountName string          `json:"accountName"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountCode string          `json:"accountCode" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Debit builds a debit line.
func Debit(code string, amount decimal.Decimal) PostingLineInput {
	return PostingLineInput{AccountCode: code, Debit: amount}
}

// Credit builds a credit line.
func Credit(code string, amount decimal.Decimal) PostingLineInput {
	return PostingLineInput{AccountCode: code, Credit: amount}
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	Description  string
	ReferenceID  string
	SourceModule string
	ReversalOf   string
	Lines        []PostingLineInput
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("accounting: journal lines must balance: %w", shared.ErrValidation)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("accounting: journal requires at least two lines: %w", shared.ErrValidation)
	// ErrEmptyEntry indicates an entry whose totals are zero.
	ErrEmptyEntry = fmt.Errorf("accounting: journal total must be greater than zero: %w", shared.ErrValidation)
	// ErrMixedLine indicates a line carrying both a debit and a credit.
	ErrMixedLine = fmt.Errorf("accounting: line cannot be both debit and credit: %w", shared.ErrValidation)
	// ErrAccountNotFound indicates an unknown account code or id.
	ErrAccountNotFound = fmt.Errorf("accounting: account not found: %w", shared.ErrNotFound)
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = fmt.Errorf("accounting: journal entry not found: %w", shared.ErrNotFound)
	// ErrSystemAccount indicates an attempt to edit or delete a system account.
	ErrSystemAccount = fmt.Errorf("accounting: system accounts cannot be modified: %w", shared.ErrConflict)
	// ErrAccountInUse indicates an attempt to delete an account with postings.
	ErrAccountInUse = fmt.Errorf("accounting: account has postings: %w", shared.ErrConflict)
	// ErrDuplicateCode indicates the account code is taken.
	ErrDuplicateCode = fmt.Errorf("accounting: account code already exists: %w", shared.ErrConflict)
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = fmt.Errorf("accounting: journal entry already reversed: %w", shared.ErrConflict)
	// ErrInvalidAccount indicates invalid account master data.
	ErrInvalidAccount = fmt.Errorf("accounting: invalid account: %w", shared.ErrValidation)
)

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("accounting: line %d missing account: %w", idx, shared.ErrValidation)
		}
		// Lines are stored in cents, so every check runs on the stored amount.
		lineDebit, lineCredit := line.Debit.Round(2), line.Credit.Round(2)
		if lineDebit.IsNegative() || lineCredit.IsNegative() {
			return fmt.Errorf("accounting: line %d negative amount: %w", idx, shared.ErrValidation)
		}
		if lineDebit.IsPositive() && lineCredit.IsPositive() {
			return fmt.Errorf("line %d: %w", idx, ErrMixedLine)
		}
		if lineDebit.IsZero() && lineCredit.IsZero() {
			return fmt.Errorf("accounting: line %d has no amount: %w", idx, shared.ErrValidation)
		}
		debit = debit.Add(lineDebit)
		credit = credit.Add(lineCredit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("debit %s credit %s: %w", debit.StringFixed(2), credit.StringFixed(2), ErrUnbalanced)
	}
	if !debit.IsPositive() {
		return ErrEmptyEntry
	}
	if in.Date.IsZero() {
		return fmt.Errorf("accounting: date required: %w", shared.ErrValidation)
	}
	if in.SourceModule == "" {
		return fmt.Errorf("accounting: source module required: %w", shared.ErrValidation)
	}
	return nil
}

// Validate checks account master data.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Code) == "" || strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("code and name required: %w", ErrInvalidAccount)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("type %q: %w", a.Type, ErrInvalidAccount)
	}
	return nil
}

// IsNotFound reports whether err is an accounting not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
