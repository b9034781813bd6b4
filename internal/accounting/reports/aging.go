package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// OpenDocument is an order or purchase order with an outstanding balance.
type OpenDocument struct {
	Number       string
	Counterparty string
	Date         time.Time
	Total        decimal.Decimal
	AmountPaid   decimal.Decimal
}

// Outstanding returns total minus amount paid.
func (d OpenDocument) Outstanding() decimal.Decimal {
	return d.Total.Sub(d.AmountPaid)
}

// AgingRow summarises the open debt of one counterparty.
type AgingRow struct {
	Counterparty string          `json:"counterparty"`
	Documents    []string        `json:"documents"`
	TotalDebt    decimal.Decimal `json:"totalDebt"`
	OldestDate   time.Time       `json:"oldestDate"`
}

// Aging is the receivables or payables aging report.
type Aging struct {
	Rows  []AgingRow      `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

// BuildAging groups documents with a positive outstanding amount by
// counterparty, ordered by total debt descending.
func BuildAging(docs []OpenDocument) Aging {
	rows := make(map[string]*AgingRow)
	for _, doc := range docs {
		debt := doc.Outstanding()
		if !debt.IsPositive() {
			continue
		}
		row, ok := rows[doc.Counterparty]
		if !ok {
			row = &AgingRow{Counterparty: doc.Counterparty, TotalDebt: decimal.Zero, OldestDate: doc.Date}
			rows[doc.Counterparty] = row
		}
		row.Documents = append(row.Documents, doc.Number)
		row.TotalDebt = row.TotalDebt.Add(debt)
		if doc.Date.Before(row.OldestDate) {
			row.OldestDate = doc.Date
		}
	}

	out := Aging{Rows: make([]AgingRow, 0, len(rows)), Total: decimal.Zero}
	for _, row := range rows {
		out.Rows = append(out.Rows, *row)
		out.Total = out.Total.Add(row.TotalDebt)
	}
	sort.Slice(out.Rows, func(i, j int) bool {
		if !out.Rows[i].TotalDebt.Equal(out.Rows[j].TotalDebt) {
			return out.Rows[i].TotalDebt.GreaterThan(out.Rows[j].TotalDebt)
		}
		return out.Rows[i].Counterparty < out.Rows[j].Counterparty
	})
	return out
}
