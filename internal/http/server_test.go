package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvester/internal/core"
	"harvester/internal/services"
	"harvester/internal/store"
)

type memReplica struct {
	mu   sync.Mutex
	docs int
	err  error
}

func (m *memReplica) Name() string { return "memory" }

func (m *memReplica) Save(context.Context, core.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs++
	return m.err
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendBill(_ context.Context, r core.FarmerRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, r.ID)
	return "wamid.1", nil
}

func newTestServer(t *testing.T, opts Options, replicas ...store.Replica) *Server {
	t.Helper()
	ledger := services.NewLedgerService(store.New(replicas...), nil, nil)
	srv := NewServer(ledger, nil, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

const billJSON = `{"name":"Ramesh Patil","date":"2024-06-01","contact":"98765 43210",
"place":"Nashik","crop":"Paddy","acres":2,"rate":"1,500","paidAmount":500}`

func createBill(t *testing.T, srv *Server) farmerView {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/farmers", billJSON, "application/json")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var v farmerView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})
	createBill(t, srv)

	rr := do(t, srv, http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Harvester Ledger")
	assert.Contains(t, rr.Body.String(), "Ramesh Patil")
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))

	for _, path := range []string{"/healthz", "/readyz", "/static/app.css"} {
		rr := do(t, srv, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestReadyNeedsReplica(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestFarmerLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})

	created := createBill(t, srv)
	assert.Equal(t, core.BillNo(1001), created.BillNo)
	assert.Equal(t, "3000", created.Total.String())
	assert.Equal(t, "2500", created.Balance.String())
	assert.Equal(t, core.StatusPartial, created.Status)
	assert.Equal(t, "9876543210", created.Contact)

	form := url.Values{
		"name": {"Ramesh Patil"}, "date": {"2024-06-01"}, "contact": {"9876543210"},
		"place": {"Nashik"}, "crop": {"Paddy"}, "acres": {"2"}, "rate": {"1500"},
		"paidAmount": {"3000"},
	}
	rr := do(t, srv, http.MethodPut, "/api/farmers/"+created.ID, form.Encode(), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var edited farmerView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &edited))
	assert.Equal(t, created.ID, edited.ID)
	assert.Equal(t, core.BillNo(1001), edited.BillNo)
	assert.Equal(t, core.StatusPaid, edited.Status)

	rr = do(t, srv, http.MethodGet, "/api/farmers/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/farmers?q=nashik", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Farmers []farmerView `json:"farmers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Farmers, 1)

	rr = do(t, srv, http.MethodGet, "/api/farmers?q=pune", "", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Empty(t, list.Farmers)

	rr = do(t, srv, http.MethodDelete, "/api/farmers/"+created.ID, "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, srv, http.MethodGet, "/api/farmers/"+created.ID, "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, srv, http.MethodDelete, "/api/farmers/"+created.ID, "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code, "delete is idempotent")
}

func TestSaveFarmerErrors(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})

	bad := strings.Replace(billJSON, "98765 43210", "123", 1)
	rr := do(t, srv, http.MethodPost, "/api/farmers", bad, "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "contact", body.Field)

	rr = do(t, srv, http.MethodPut, "/api/farmers/missing", billJSON, "application/json")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodPost, "/api/farmers", `{"name":`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReplicaFailureIsWarning(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{err: errors.New("disk full")})
	rr := do(t, srv, http.MethodPost, "/api/farmers", billJSON, "application/json")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Header().Get(warningHeader), "disk full")
}

func TestListFilterValidation(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})
	for _, q := range []string{"from=yesterday", "to=2024-13-01", "range=fortnight"} {
		rr := do(t, srv, http.MethodGet, "/api/farmers?"+q, "", "")
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, q)
	}
	rr := do(t, srv, http.MethodGet, "/api/farmers?range=month&from=2024-01-01", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestShareAndReceipt(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})
	bill := createBill(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/farmers/"+bill.ID+"/share", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sh shareResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sh))
	assert.Contains(t, sh.Text, "Name: Ramesh Patil")
	assert.True(t, strings.HasPrefix(sh.Link, "https://wa.me/?text="))

	rr = do(t, srv, http.MethodPost, "/api/farmers/"+bill.ID+"/share", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	sender := &fakeSender{}
	srv.sender = sender
	rr = do(t, srv, http.MethodPost, "/api/farmers/"+bill.ID+"/share", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{bill.ID}, sender.sent)

	sender.err = errors.New("token expired")
	rr = do(t, srv, http.MethodPost, "/api/farmers/"+bill.ID+"/share", "", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/farmers/"+bill.ID+"/receipt.png", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "Receipt_Ramesh_Patil.png")
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	rr = do(t, srv, http.MethodGet, "/api/farmers/nope/receipt.png", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExpenses(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})

	form := url.Values{"date": {"2024-06-02"}, "category": {"Diesel"}, "amount": {"450"}}
	rr := do(t, srv, http.MethodPost, "/api/expenses", form.Encode(), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var e core.ExpenseRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "450", e.Amount.String())

	rr = do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-06-02","amount":0}`, "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/expenses", "", "")
	var list struct {
		Expenses []core.ExpenseRecord `json:"expenses"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Expenses, 1)

	rr = do(t, srv, http.MethodPut, "/api/expenses/"+e.ID, `{"date":"2024-06-03","category":"Diesel","amount":500}`, "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, srv, http.MethodPut, "/api/expenses/does-not-exist", `{"date":"2024-06-03","category":"Diesel","amount":500}`, "application/json")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, srv, http.MethodGet, "/api/expenses", "", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Expenses, 1)
	assert.Equal(t, "500", list.Expenses[0].Amount.String())

	rr = do(t, srv, http.MethodDelete, "/api/expenses/"+e.ID, "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, srv, http.MethodGet, "/api/expenses", "", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Empty(t, list.Expenses)
}

func TestSummaryIsCachedPerVersion(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})
	createBill(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/summary", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))
	var sum core.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.Count)
	assert.Equal(t, "2500", sum.Pending.String())

	rr = do(t, srv, http.MethodGet, "/api/summary", "", "")
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))

	form := url.Values{"date": {"2024-06-02"}, "amount": {"100"}}
	do(t, srv, http.MethodPost, "/api/expenses", form.Encode(), "application/x-www-form-urlencoded")
	rr = do(t, srv, http.MethodGet, "/api/summary", "", "")
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, "400", sum.NetProfit.String())

	rr = do(t, srv, http.MethodGet, "/api/charts", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var charts core.Charts
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &charts))
	require.Len(t, charts.Monthly, 1)
	assert.Equal(t, "Jun 2024", charts.Monthly[0].Label)
}

func TestExportAndDatabase(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})
	createBill(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/export.xlsx", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))

	rr = do(t, srv, http.MethodGet, "/api/database", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "harvester_backup_")
	doc, err := core.DecodeDocument(rr.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, doc.Farmers, 1)

	other := newTestServer(t, Options{}, &memReplica{})
	rr = do(t, other, http.MethodPost, "/api/database", rr.Body.String(), "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, other.ledger.Store().Farmers(core.Filter{}), 1)

	rr = do(t, other, http.MethodPost, "/api/database", `not json`, "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, other, http.MethodPost, "/api/database", `{"farmers":[]}`, "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Len(t, other.ledger.Store().Farmers(core.Filter{}), 1, "rejected import leaves data alone")
}

func TestBackupStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})
	rr := do(t, srv, http.MethodGet, "/api/backup", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body backupResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Due)
	assert.Empty(t, body.Message)
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	srv := newTestServer(t, Options{RequestsPerMinute: 1}, &memReplica{})

	rr := do(t, srv, http.MethodPost, "/api/farmers", billJSON, "application/json")
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, srv, http.MethodPost, "/api/farmers", billJSON, "application/json")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr = do(t, srv, http.MethodGet, "/api/farmers", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})
	req := httptest.NewRequest(http.MethodOptions, "/api/farmers", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{}, &memReplica{})
	createBill(t, srv)
	do(t, srv, http.MethodGet, "/api/summary", "", "")

	rr := do(t, srv, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "harvester_http_requests_total")
	assert.Contains(t, body, "harvester_store_version 1")
	assert.Contains(t, body, `harvester_summary_cache_requests_total{result="miss"} 1`)
}
