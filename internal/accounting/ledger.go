package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// JournalTx is the posting surface every module transaction exposes so that
// stock and journal writes commit together.
type JournalTx interface {
	shared.Sequencer
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
}

// Post validates in, resolves account snapshots, numbers the entry and
// appends it through tx.
func Post(ctx context.Context, tx JournalTx, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	lines := make([]JournalLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		account, err := tx.GetAccountByCode(ctx, line.AccountCode)
		if err != nil {
			return JournalEntry{}, fmt.Errorf("account %s: %w", line.AccountCode, err)
		}
		lines = append(lines, JournalLine{
			AccountID:   account.ID,
			AccountCode: account.Code,
			AccountName: account.Name,
			Debit:       line.Debit.Round(2),
			Credit:      line.Credit.Round(2),
		})
	}
	number, err := shared.NextNumber(ctx, tx, JournalPrefix)
	if err != nil {
		return JournalEntry{}, err
	}
	return tx.InsertJournalEntry(ctx, JournalEntry{
		Number:       number,
		Date:         in.Date,
		Description:  in.Description,
		ReferenceID:  in.ReferenceID,
		SourceModule: in.SourceModule,
		ReversalOf:   in.ReversalOf,
		Lines:        lines,
	})
}

// PostAll posts each input in order and stops at the first failure.
func PostAll(ctx context.Context, tx JournalTx, inputs ...PostingInput) ([]JournalEntry, error) {
	entries := make([]JournalEntry, 0, len(inputs))
	for _, in := range inputs {
		entry, err := Post(ctx, tx, in)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ReversalInput mirrors entry: each debit becomes a credit and vice versa.
func ReversalInput(entry JournalEntry, date time.Time) PostingInput {
	lines := make([]PostingLineInput, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		lines = append(lines, PostingLineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	if date.IsZero() {
		date = entry.Date
	}
	return PostingInput{
		Date:         date,
		Description:  fmt.Sprintf("Reversal of %s", entry.Number),
		ReferenceID:  entry.ReferenceID,
		SourceModule: SourceReversal,
		ReversalOf:   entry.Number,
		Lines:        lines,
	}
}

// DefaultChart returns the system chart of accounts seeded at setup.
func DefaultChart() []Account {
	return []Account{
		{Code: CodeCash, Name: "Cash", Type: AccountTypeAsset, IsSystem: true},
		{Code: CodeBank, Name: "Bank", Type: AccountTypeAsset, IsSystem: true},
		{Code: CodeAccountsReceivable, Name: "Accounts Receivable", Type: AccountTypeAsset, IsSystem: true},
		{Code: CodeVATReceivable, Name: "VAT Receivable", Type: AccountTypeAsset, IsSystem: true},
		{Code: CodeInventory, Name: "Inventory", Type: AccountTypeAsset, IsSystem: true},
		{Code: CodeAccountsPayable, Name: "Accounts Payable", Type: AccountTypeLiability, IsSystem: true},
		{Code: CodeVATPayable, Name: "VAT Payable", Type: AccountTypeLiability, IsSystem: true},
		{Code: CodeOwnerEquity, Name: "Owner Equity", Type: AccountTypeEquity, IsSystem: true},
		{Code: CodeRevenue, Name: "Sales Revenue", Type: AccountTypeRevenue, IsSystem: true},
		{Code: CodeCOGS, Name: "Cost of Goods Sold", Type: AccountTypeExpense, IsSystem: true},
		{Code: CodeOtherIncome, Name: "Other Income", Type: AccountTypeRevenue, IsSystem: true},
		{Code: CodeOtherExpense, Name: "Other Expenses", Type: AccountTypeExpense, IsSystem: true},
	}
}
