package accounting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPostingInputValidate(t *testing.T) {
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	valid := PostingInput{
		Date:         date,
		SourceModule: SourceManual,
		Lines:        []PostingLineInput{Debit(CodeCash, d("10.004")), Credit(CodeRevenue, d("10.00"))},
	}
	require.NoError(t, valid.Validate(), "totals compare at cent precision")

	zero := valid
	zero.Lines = []PostingLineInput{Debit(CodeCash, d("0")), Credit(CodeRevenue, d("0"))}
	require.ErrorIs(t, zero.Validate(), shared.ErrValidation)

	negative := valid
	negative.Lines = []PostingLineInput{Debit(CodeCash, d("-5")), Credit(CodeRevenue, d("-5"))}
	require.ErrorIs(t, negative.Validate(), shared.ErrValidation)

	undated := valid
	undated.Date = time.Time{}
	require.ErrorIs(t, undated.Validate(), shared.ErrValidation)

	sourceless := valid
	sourceless.SourceModule = ""
	require.ErrorIs(t, sourceless.Validate(), shared.ErrValidation)
}

func TestReversalInputMirrorsLines(t *testing.T) {
	entry := JournalEntry{
		Number:      "JE007",
		Date:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		ReferenceID: "DH001",
		Lines: []JournalLine{
			{AccountCode: CodeAccountsReceivable, Debit: d("110"), Credit: decimal.Zero},
			{AccountCode: CodeRevenue, Debit: decimal.Zero, Credit: d("100")},
			{AccountCode: CodeVATPayable, Debit: decimal.Zero, Credit: d("10")},
		},
	}
	in := ReversalInput(entry, time.Time{})
	require.Equal(t, entry.Date, in.Date)
	require.Equal(t, "JE007", in.ReversalOf)
	require.Equal(t, SourceReversal, in.SourceModule)
	require.NoError(t, in.Validate())
	require.True(t, in.Lines[0].Credit.Equal(d("110")))
	require.True(t, in.Lines[1].Debit.Equal(d("100")))
	require.True(t, in.Lines[2].Debit.Equal(d("10")))
}

func TestAccountBalanceSign(t *testing.T) {
	asset := Account{Type: AccountTypeAsset}
	liability := Account{Type: AccountTypeLiability}
	require.True(t, asset.Balance(d("30"), d("10")).Equal(d("20")))
	require.True(t, liability.Balance(d("30"), d("10")).Equal(d("-20")))
}

func TestDefaultChartIsSystem(t *testing.T) {
	codes := map[string]bool{}
	for _, acc := range DefaultChart() {
		require.True(t, acc.IsSystem)
		require.NoError(t, acc.Validate())
		require.False(t, codes[acc.Code], "duplicate code %s", acc.Code)
		codes[acc.Code] = true
	}
	for _, code := range []string{CodeCash, CodeBank, CodeAccountsReceivable, CodeVATReceivable, CodeInventory,
		CodeAccountsPayable, CodeVATPayable, CodeOwnerEquity, CodeRevenue, CodeCOGS, CodeOtherIncome, CodeOtherExpense} {
		require.True(t, codes[code], code)
	}
}
