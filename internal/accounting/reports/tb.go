package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// AccountBalance models a general ledger account with aggregated totals.
type AccountBalance struct {
	ID     int64                  `json:"id"`
	Code   string                 `json:"code"`
	Name   string                 `json:"name"`
	Type   accounting.AccountType `json:"type"`
	Debit  decimal.Decimal        `json:"debit"`
	Credit decimal.Decimal        `json:"credit"`
}

// Balance applies the sign convention of the account type.
func (a AccountBalance) Balance() decimal.Decimal {
	if a.Type.DebitNormal() {
		return a.Debit.Sub(a.Credit)
	}
	return a.Credit.Sub(a.Debit)
}

// GroupKey returns the chart class (first code digit) used for grouping.
func (a AccountBalance) GroupKey() string {
	if a.Code == "" {
		return ""
	}
	return a.Code[:1]
}

// Window bounds a report by entry date. Zero values are open ends.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// BuildBalances folds every line of entries inside w into per-account totals.
// Accounts without postings are returned with zero totals, ordered by code.
func BuildBalances(accounts []accounting.Account, entries []accounting.JournalEntry, w Window) []AccountBalance {
	byID := make(map[int64]*AccountBalance, len(accounts))
	out := make([]AccountBalance, len(accounts))
	for i, acc := range accounts {
		out[i] = AccountBalance{ID: acc.ID, Code: acc.Code, Name: acc.Name, Type: acc.Type, Debit: decimal.Zero, Credit: decimal.Zero}
		byID[acc.ID] = &out[i]
	}
	for _, entry := range entries {
		if !w.Contains(entry.Date) {
			continue
		}
		for _, line := range entry.Lines {
			bal, ok := byID[line.AccountID]
			if !ok {
				continue
			}
			bal.Debit = bal.Debit.Add(line.Debit)
			bal.Credit = bal.Credit.Add(line.Credit)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// TrialBalanceAccount represents a row inside a trial balance group. Exactly
// one of Debit or Credit carries the signed balance.
type TrialBalanceAccount struct {
	Code   string                 `json:"code"`
	Name   string                 `json:"name"`
	Type   accounting.AccountType `json:"type"`
	Debit  decimal.Decimal        `json:"debit"`
	Credit decimal.Decimal        `json:"credit"`
}

// TrialBalanceGroup aggregates accounts of one chart class.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// TrialBalance is the final structure returned to callers.
type TrialBalance struct {
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"totalDebit"`
	TotalCredit decimal.Decimal     `json:"totalCredit"`
}

// Balanced reports whether both columns agree.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// BuildTrialBalance places each signed balance back in the column of its
// normal side, flipping to the opposite column when the balance is negative.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range accounts {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{Code: acc.Code, Name: acc.Name, Type: acc.Type, Debit: decimal.Zero, Credit: decimal.Zero}
		balance := acc.Balance()
		debitSide := acc.Type.DebitNormal()
		if balance.IsNegative() {
			debitSide = !debitSide
			balance = balance.Neg()
		}
		if debitSide {
			row.Debit = balance
		} else {
			row.Credit = balance
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	return result
}
