package accounting

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler wires ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journal-entries", h.listEntries)
	r.Post("/journal-entries", h.createEntry)
	r.Get("/journal-entries/{id}", h.getEntry)
	r.Post("/journal-entries/{id}/reverse", h.reverseEntry)
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Put("/accounts/{id}", h.updateAccount)
	r.Delete("/accounts/{id}", h.deleteAccount)
}

type entryRequest struct {
	Date        string             `json:"date"`
	Description string             `json:"description" validate:"required"`
	ReferenceID string             `json:"referenceId"`
	Lines       []PostingLineInput `json:"lines" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	Date string `json:"date"`
}

type accountRequest struct {
	Code string `json:"code" validate:"omitempty,max=16"`
	Name string `json:"name" validate:"omitempty,max=120"`
	Type string `json:"type" validate:"omitempty,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.CreateJournalEntry(r.Context(), ManualEntryInput{
		Date:        date,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
		Lines:       req.Lines,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"newJournalEntry": entry})
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	date, err := ParseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.ReverseJournalEntry(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"newJournalEntry": entry})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListJournalEntries(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"journalEntries": entries})
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetJournalEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"journalEntry": entry})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"accounts": accounts})
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), AccountInput{Code: req.Code, Name: req.Name, Type: AccountType(req.Type)})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, httpx.Envelope{"newAccount": account})
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), id, AccountInput{Code: req.Code, Name: req.Name, Type: AccountType(req.Type)})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"updatedAccount": account})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, httpx.Envelope{"deletedAccountId": id})
}

func accountID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("accounting: invalid account id: %w", shared.ErrValidation)
	}
	return id, nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339. An empty string yields the zero
// time so callers fall back to their clock.
func ParseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("accounting: invalid date %q: %w", raw, shared.ErrValidation)
	}
	return t, nil
}
