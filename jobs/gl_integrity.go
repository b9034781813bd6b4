package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
)

// GLIntegrityReport lists journal entries that break double entry.
type GLIntegrityReport struct {
	Entries     int             `json:"entries"`
	Findings    []string        `json:"findings"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

// OK reports whether the check found nothing.
func (r GLIntegrityReport) OK() bool {
	return len(r.Findings) == 0
}

// GLIntegrityJob scans the journal inside one snapshot.
type GLIntegrityJob struct {
	repo    reports.RepositoryPort
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewGLIntegrityJob builds the job. metrics may be nil.
func NewGLIntegrityJob(repo reports.RepositoryPort, logger *slog.Logger, metrics *observability.Metrics) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{repo: repo, logger: logger, metrics: metrics}
}

// Run checks that every entry balances with a positive total, that every
// line carries exactly one side, and that the trial balance totals agree.
func (j *GLIntegrityJob) Run(ctx context.Context) (GLIntegrityReport, error) {
	report := GLIntegrityReport{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	err := j.repo.WithSnapshot(ctx, func(ctx context.Context, r reports.Reader) error {
		accounts, err := r.ListAccounts(ctx)
		if err != nil {
			return err
		}
		entries, err := r.ListJournalEntries(ctx)
		if err != nil {
			return err
		}
		report.Entries = len(entries)
		for _, entry := range entries {
			debit, credit := entry.Totals()
			if !debit.Equal(credit) {
				report.Findings = append(report.Findings, fmt.Sprintf("%s: debit %s != credit %s", entry.Number, debit.StringFixed(2), credit.StringFixed(2)))
			}
			if !debit.IsPositive() {
				report.Findings = append(report.Findings, fmt.Sprintf("%s: zero total", entry.Number))
			}
			for idx, line := range entry.Lines {
				if line.Debit.IsPositive() == line.Credit.IsPositive() {
					report.Findings = append(report.Findings, fmt.Sprintf("%s line %d: must carry exactly one side", entry.Number, idx+1))
				}
			}
		}
		tb := reports.BuildTrialBalance(reports.BuildBalances(accounts, entries, reports.Window{}))
		report.TotalDebit, report.TotalCredit = tb.TotalDebit, tb.TotalCredit
		if !tb.Balanced() {
			report.Findings = append(report.Findings, fmt.Sprintf("trial balance: debit %s != credit %s", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2)))
		}
		return nil
	})
	if err != nil {
		return GLIntegrityReport{}, err
	}
	return report, nil
}

// Handle processes TaskGLIntegrity. Findings are logged and published as a
// gauge; they do not fail the task since a retry would find the same thing.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeCheck(t)
	if err != nil {
		return err
	}
	report, err := j.Run(ctx)
	j.metrics.ObserveJob(TaskGLIntegrity, err)
	if err != nil {
		j.logger.Error("gl integrity check", slog.Any("error", err))
		return err
	}
	j.metrics.SetDrift("journal", len(report.Findings))
	if !report.OK() {
		j.logger.Warn("gl integrity drift",
			slog.Int("findings", len(report.Findings)),
			slog.Any("details", report.Findings),
			slog.String("reason", payload.Reason))
		return nil
	}
	j.logger.Info("gl integrity ok", slog.Int("entries", report.Entries), slog.String("total", report.TotalDebit.StringFixed(2)))
	return nil
}
