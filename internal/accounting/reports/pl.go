package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// ProfitAndLossAccount represents a revenue or expense account summary.
type ProfitAndLossAccount struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string                 `json:"label"`
	Accounts []ProfitAndLossAccount `json:"accounts"`
	Total    decimal.Decimal        `json:"total"`
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	Period        Window               `json:"period"`
	Revenue       ProfitAndLossSection `json:"revenue"`
	COGS          decimal.Decimal      `json:"cogs"`
	OtherExpenses ProfitAndLossSection `json:"otherExpenses"`
	GrossProfit   decimal.Decimal      `json:"grossProfit"`
	NetProfit     decimal.Decimal      `json:"netProfit"`
}

// MonthWindow covers the calendar month containing now.
func MonthWindow(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Window{From: start, To: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// QuarterWindow covers the calendar quarter containing now.
func QuarterWindow(now time.Time) Window {
	first := time.Month((int(now.Month())-1)/3*3 + 1)
	start := time.Date(now.Year(), first, 1, 0, 0, 0, 0, now.Location())
	return Window{From: start, To: start.AddDate(0, 3, 0).Add(-time.Nanosecond)}
}

// BuildProfitAndLoss folds entries inside w. Revenue is the credits posted to
// revenue accounts, COGS the debits to the COGS account and other expenses the
// debits to every other expense account.
func BuildProfitAndLoss(accounts []accounting.Account, entries []accounting.JournalEntry, w Window) ProfitAndLoss {
	byID := make(map[int64]accounting.Account, len(accounts))
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	revenue := map[string]*ProfitAndLossAccount{}
	expense := map[string]*ProfitAndLossAccount{}
	cogs := decimal.Zero
	add := func(bucket map[string]*ProfitAndLossAccount, acc accounting.Account, amount decimal.Decimal) {
		row, ok := bucket[acc.Code]
		if !ok {
			row = &ProfitAndLossAccount{Code: acc.Code, Name: acc.Name, Amount: decimal.Zero}
			bucket[acc.Code] = row
		}
		row.Amount = row.Amount.Add(amount)
	}

	for _, entry := range entries {
		if !w.Contains(entry.Date) {
			continue
		}
		for _, line := range entry.Lines {
			acc, ok := byID[line.AccountID]
			if !ok {
				continue
			}
			switch {
			case acc.Type == accounting.AccountTypeRevenue && line.Credit.IsPositive():
				add(revenue, acc, line.Credit)
			case acc.Code == accounting.CodeCOGS:
				cogs = cogs.Add(line.Debit)
			case acc.Type == accounting.AccountTypeExpense && line.Debit.IsPositive():
				add(expense, acc, line.Debit)
			}
		}
	}

	result := ProfitAndLoss{
		Period:        w,
		Revenue:       section("Revenue", revenue),
		COGS:          cogs,
		OtherExpenses: section("Other Expenses", expense),
	}
	result.GrossProfit = result.Revenue.Total.Sub(cogs)
	result.NetProfit = result.GrossProfit.Sub(result.OtherExpenses.Total)
	return result
}

func section(label string, rows map[string]*ProfitAndLossAccount) ProfitAndLossSection {
	out := ProfitAndLossSection{Label: label, Accounts: make([]ProfitAndLossAccount, 0, len(rows)), Total: decimal.Zero}
	for _, row := range rows {
		out.Accounts = append(out.Accounts, *row)
		out.Total = out.Total.Add(row.Amount)
	}
	sort.Slice(out.Accounts, func(i, j int) bool { return out.Accounts[i].Code < out.Accounts[j].Code })
	return out
}
