package app_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/manufacturing"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func newServer(t *testing.T) (*ledgertest.Fixture, *httptest.Server) {
	t.Helper()
	f := ledgertest.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               &app.Config{StoreDriver: app.StoreDriverMemory, RateLimitPerMin: 1000},
		AccountingHandler:    accounting.NewHandler(logger, f.Services.Accounting),
		ReportsHandler:       reports.NewHandler(logger, f.Services.Reports),
		InventoryHandler:     inventory.NewHandler(logger, f.Services.Inventory),
		SalesHandler:         sales.NewHandler(logger, f.Services.Sales),
		ProcurementHandler:   procurement.NewHandler(logger, f.Services.Procurement),
		ManufacturingHandler: manufacturing.NewHandler(logger, f.Services.Manufacturing),
		JobHandler:           jobs.NewHandler(nil, logger),
		Metrics:              observability.NewMetrics(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return f, srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, headers ...string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealthAndFallbacks(t *testing.T) {
	_, srv := newServer(t)

	resp, body := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `"ok"`, string(body["status"]))
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.NotEmpty(t, resp.Header.Get("X-Ratelimit-Limit"))

	resp, body = do(t, srv, http.MethodGet, "/api/unknown", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.JSONEq(t, `"route not found"`, string(body["message"]))

	resp, body = do(t, srv, http.MethodGet, "/api/orders", "", app.ActorHeader, "abc")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.JSONEq(t, `false`, string(body["success"]))

	resp, body = do(t, srv, http.MethodGet, "/jobs/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `0`, string(body["pending"]))
}

func TestPOSThroughAPI(t *testing.T) {
	f, srv := newServer(t)
	f.Receive(t, f.Widget, 10, ledgertest.MainWarehouse)

	resp, body := do(t, srv, http.MethodPost, "/api/orders/pos",
		`{"customer":"Walk-in","warehouse":"Main","items":[{"productId":`+jsonInt(f.Widget.ID)+`,"quantity":3}],"paymentMethod":"cash"}`,
		app.ActorHeader, "7")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body["message"]))
	var order sales.Order
	require.NoError(t, json.Unmarshal(body["newOrder"], &order))
	require.Equal(t, sales.OrderStatusCompleted, order.Status)
	require.True(t, order.Total.Equal(decimal.NewFromInt(30)), order.Total.String())
	require.InDelta(t, 7, f.Stock(t, f.Widget, ledgertest.MainWarehouse), 1e-9)

	logs := f.Store.AuditLogs()
	require.NotEmpty(t, logs)
	require.Equal(t, int64(7), logs[len(logs)-1].ActorID)

	resp, body = do(t, srv, http.MethodGet, "/api/reports/trial-balance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tb reports.TrialBalance
	require.NoError(t, json.Unmarshal(body["trialBalance"], &tb))
	require.True(t, tb.Balanced())
	require.True(t, tb.TotalDebit.IsPositive())

	resp, body = do(t, srv, http.MethodPost, "/api/orders/pos",
		`{"customer":"Walk-in","warehouse":"Main","items":[{"productId":`+jsonInt(f.Widget.ID)+`,"quantity":50}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, string(body["message"]), "insufficient")

	resp, _ = do(t, srv, http.MethodPost, "/api/orders/pos", `{"customer":"Walk-in","bogus":1}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/orders/SO999", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func jsonInt(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
