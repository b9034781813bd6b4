package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler serves the financial statements.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes. Aging lives with sales and procurement
// and is mounted next to these by the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/general-ledger", h.generalLedger)
	r.Get("/account-balances", h.accountBalances)
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/profit-and-loss", h.profitAndLoss)
	r.Get("/balance-sheet", h.balanceSheet)
}

// window reads ?period=month|quarter|range&from=&to=.
func (h *Handler) window(r *http.Request) (Window, error) {
	q := r.URL.Query()
	from, err := accounting.ParseDate(q.Get("from"))
	if err != nil {
		return Window{}, err
	}
	to, err := accounting.ParseDate(q.Get("to"))
	if err != nil {
		return Window{}, err
	}
	if !to.IsZero() && len(q.Get("to")) == len(time.DateOnly) {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	return h.service.ResolvePeriod(q.Get("period"), from, to)
}

func asOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("asOf")
	t, err := accounting.ParseDate(raw)
	if err != nil || t.IsZero() {
		return t, err
	}
	if len(raw) == len(time.DateOnly) {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (h *Handler) generalLedger(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	gl, err := h.service.GeneralLedger(r.Context(), win, r.URL.Query().Get("account"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"generalLedger": gl})
}

func (h *Handler) accountBalances(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	balances, err := h.service.AccountBalances(r.Context(), win)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"balances": balances})
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), at)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"trialBalance": tb})
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	win, err := h.window(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), win)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"profitAndLoss": pl})
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), at)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"balanceSheet": bs})
}
