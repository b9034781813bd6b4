package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// LedgerLine is one posting in an account history.
type LedgerLine struct {
	EntryNumber string          `json:"entryId"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	ReferenceID string          `json:"referenceId,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Running     decimal.Decimal `json:"runningBalance"`
}

// LedgerAccount is the general ledger page of a single account.
type LedgerAccount struct {
	Code    string                 `json:"code"`
	Name    string                 `json:"name"`
	Type    accounting.AccountType `json:"type"`
	Opening decimal.Decimal        `json:"opening"`
	Lines   []LedgerLine           `json:"lines"`
	Closing decimal.Decimal        `json:"closing"`
}

// GeneralLedger lists every account with its postings inside the window.
type GeneralLedger struct {
	Period   Window          `json:"period"`
	Accounts []LedgerAccount `json:"accounts"`
}

// BuildGeneralLedger folds entries per account. Postings dated before the
// window start feed the opening balance; the running balance follows the
// sign convention of the account type. When code is non-empty only that
// account is returned.
func BuildGeneralLedger(accounts []accounting.Account, entries []accounting.JournalEntry, w Window, code string) GeneralLedger {
	pages := make(map[int64]*LedgerAccount, len(accounts))
	types := make(map[int64]accounting.AccountType, len(accounts))
	order := make([]int64, 0, len(accounts))
	for _, acc := range accounts {
		if code != "" && acc.Code != code {
			continue
		}
		pages[acc.ID] = &LedgerAccount{Code: acc.Code, Name: acc.Name, Type: acc.Type, Opening: decimal.Zero, Closing: decimal.Zero}
		types[acc.ID] = acc.Type
		order = append(order, acc.ID)
	}

	sorted := make([]accounting.JournalEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	for _, entry := range sorted {
		before := !w.From.IsZero() && entry.Date.Before(w.From)
		if !before && !w.Contains(entry.Date) {
			continue
		}
		for _, line := range entry.Lines {
			page, ok := pages[line.AccountID]
			if !ok {
				continue
			}
			delta := line.Credit.Sub(line.Debit)
			if types[line.AccountID].DebitNormal() {
				delta = delta.Neg()
			}
			page.Closing = page.Closing.Add(delta)
			if before {
				page.Opening = page.Closing
				continue
			}
			page.Lines = append(page.Lines, LedgerLine{
				EntryNumber: entry.Number,
				Date:        entry.Date,
				Description: entry.Description,
				ReferenceID: entry.ReferenceID,
				Debit:       line.Debit,
				Credit:      line.Credit,
				Running:     page.Closing,
			})
		}
	}

	out := GeneralLedger{Period: w, Accounts: make([]LedgerAccount, 0, len(order))}
	for _, id := range order {
		out.Accounts = append(out.Accounts, *pages[id])
	}
	sort.Slice(out.Accounts, func(i, j int) bool { return out.Accounts[i].Code < out.Accounts[j].Code })
	return out
}
