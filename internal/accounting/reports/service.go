package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Reader is the read-only ledger surface reports fold over.
type Reader interface {
	ListAccounts(ctx context.Context) ([]accounting.Account, error)
	ListJournalEntries(ctx context.Context) ([]accounting.JournalEntry, error)
	JournalWatermark(ctx context.Context) (int64, error)
}

// RepositoryPort opens a consistent snapshot of the ledger.
type RepositoryPort interface {
	WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error
}

// Service builds reports from a single snapshot, caching results per journal
// watermark and chart version and collapsing concurrent identical builds.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the reporting service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Period kinds accepted by ProfitAndLoss.
const (
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodRange   = "range"
)

// ResolvePeriod turns a period kind into a window relative to now.
func (s *Service) ResolvePeriod(kind string, from, to time.Time) (Window, error) {
	switch strings.ToLower(kind) {
	case "", PeriodMonth:
		return MonthWindow(s.now()), nil
	case PeriodQuarter:
		return QuarterWindow(s.now()), nil
	case PeriodRange:
		if !from.IsZero() && !to.IsZero() && to.Before(from) {
			return Window{}, fmt.Errorf("reports: range end before start: %w", shared.ErrValidation)
		}
		return Window{From: from, To: to}, nil
	default:
		return Window{}, fmt.Errorf("reports: unknown period %q: %w", kind, shared.ErrValidation)
	}
}

// AccountBalances returns per-account totals and signed balances.
func (s *Service) AccountBalances(ctx context.Context, w Window) ([]AccountBalance, error) {
	var out []AccountBalance
	err := s.build(ctx, &out, func(accounts []accounting.Account, entries []accounting.JournalEntry) any {
		return BuildBalances(accounts, entries, w)
	}, "balances", windowKey(w))
	return out, err
}

// GeneralLedger returns account histories with running balances.
func (s *Service) GeneralLedger(ctx context.Context, w Window, code string) (GeneralLedger, error) {
	var out GeneralLedger
	err := s.build(ctx, &out, func(accounts []accounting.Account, entries []accounting.JournalEntry) any {
		return BuildGeneralLedger(accounts, entries, w, code)
	}, "gl", windowKey(w), code)
	return out, err
}

// TrialBalance returns the trial balance of every posting up to asOf.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	w := Window{To: asOf}
	var out TrialBalance
	err := s.build(ctx, &out, func(accounts []accounting.Account, entries []accounting.JournalEntry) any {
		return BuildTrialBalance(BuildBalances(accounts, entries, w))
	}, "tb", windowKey(w))
	return out, err
}

// ProfitAndLoss returns revenue, COGS and expenses inside w.
func (s *Service) ProfitAndLoss(ctx context.Context, w Window) (ProfitAndLoss, error) {
	var out ProfitAndLoss
	err := s.build(ctx, &out, func(accounts []accounting.Account, entries []accounting.JournalEntry) any {
		return BuildProfitAndLoss(accounts, entries, w)
	}, "pl", windowKey(w))
	return out, err
}

// BalanceSheet returns the balance sheet as of asOf.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	w := Window{To: asOf}
	var out BalanceSheet
	err := s.build(ctx, &out, func(accounts []accounting.Account, entries []accounting.JournalEntry) any {
		return BuildBalanceSheet(BuildBalances(accounts, entries, w))
	}, "bs", windowKey(w))
	return out, err
}

func (s *Service) build(ctx context.Context, dest any, fold func([]accounting.Account, []accounting.JournalEntry) any, parts ...string) error {
	flightKey := strings.Join(parts, ":")
	// Joined callers share the build; it outlives any one caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(flightKey, func() (any, error) {
		var payload any
		err := s.repo.WithSnapshot(flightCtx, func(ctx context.Context, r Reader) error {
			mark, err := r.JournalWatermark(ctx)
			if err != nil {
				return err
			}
			accounts, err := r.ListAccounts(ctx)
			if err != nil {
				return err
			}
			key := BuildKey(mark, append([]string{ChartVersion(accounts)}, parts...)...)
			var raw rawReport
			err = s.cache.FetchJSON(ctx, key, &raw, func(ctx context.Context) (any, error) {
				entries, err := r.ListJournalEntries(ctx)
				if err != nil {
					return nil, err
				}
				return fold(accounts, entries), nil
			})
			payload = raw
			return err
		})
		return payload, err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn("build report", slog.String("report", flightKey), slog.Any("error", res.Err))
			return res.Err
		}
		return roundTrip(res.Val, dest)
	}
}

// rawReport keeps the cached payload encoded until each caller decodes its own copy.
type rawReport = json.RawMessage

func windowKey(w Window) string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return format(w.From) + "_" + format(w.To)
}
