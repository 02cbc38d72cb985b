package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/backend/internal/alerts"
	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/finance"
	"pharmacy/backend/internal/metrics"
	"pharmacy/backend/internal/service"
	"pharmacy/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	m := metrics.New()
	svc := service.New(repo, finance.NewEngine(nil, 0), nil, m, alerts.DefaultThresholds())
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, Options{Metrics: m, Driver: "memory"})
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func loginAsAdmin(t *testing.T, api *API) string {
	return login(t, api, "admin", "admin123")
}

// call sends an authenticated JSON request and decodes the response into
// out when out is non-nil.
func call(t *testing.T, api *API, token, method, path string, payload any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if out != nil && res.Code < 300 {
		require.NoError(t, json.NewDecoder(bytes.NewReader(res.Body.Bytes())).Decode(out), res.Body.String())
	}
	return res
}

func createMedicine(t *testing.T, api *API, token string, name string, qty int) domain.Medicine {
	t.Helper()

	var created domain.Medicine
	res := call(t, api, token, http.MethodPost, "/api/v1/medicines", domain.MedicineCreateRequest{
		Name:           name,
		Category:       "Pain Relievers",
		Manufacturer:   "Generic Labs",
		ProductionDate: "2025-01-01",
		ExpiryDate:     "2028-01-01",
		Quantity:       qty,
		PurchasePrice:  decimal.NewFromInt(3),
		SellingPrice:   decimal.NewFromInt(5),
	}, &created)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	return created
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	res := call(t, api, "", http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "memory", body["driver"])
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	res := call(t, api, "", http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMedicinesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	res := call(t, api, "", http.MethodGet, "/api/v1/medicines", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = call(t, api, "not-a-token", http.MethodGet, "/api/v1/medicines", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestSaleReturnDamagedFlowThroughHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	med := createMedicine(t, api, token, "ParacetamolX", 100)

	var sale domain.SaleResponse
	res := call(t, api, token, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleLine{{MedicineID: med.ID, Quantity: 10}},
	}, &sale)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	require.Len(t, sale.Sales, 1)
	assert.True(t, decimal.NewFromInt(50).Equal(sale.TotalPrice))
	assert.Equal(t, "admin", sale.Sales[0].Seller)

	res = call(t, api, token, http.MethodPost, "/api/v1/returns", domain.AdjustmentRequest{MedicineID: med.ID, Quantity: 5, Reason: "unopened"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = call(t, api, token, http.MethodPost, "/api/v1/damaged", domain.AdjustmentRequest{MedicineID: med.ID, Quantity: 3, Reason: "broken seal"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var current domain.Medicine
	res = call(t, api, token, http.MethodGet, "/api/v1/medicines/"+med.ID, nil, &current)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 92, current.Quantity)

	var stock []domain.StockEntry
	res = call(t, api, token, http.MethodGet, "/api/v1/stock", nil, &stock)
	require.Equal(t, http.StatusOK, res.Code)
	found := false
	for _, entry := range stock {
		if entry.MedicineID == med.ID {
			found = true
			assert.Equal(t, 92, entry.Quantity)
		}
	}
	assert.True(t, found, "stock entry for new medicine")

	var summary domain.FinancialSummary
	res = call(t, api, token, http.MethodGet, "/api/v1/finance/advanced?period=monthly", nil, &summary)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.True(t, decimal.NewFromInt(50).Equal(summary.Summary.TotalRevenue))
	assert.True(t, decimal.NewFromInt(30).Equal(summary.Summary.TotalCost))
	assert.True(t, decimal.NewFromInt(26).Equal(summary.Summary.AdjustedProfit))
	assert.True(t, decimal.NewFromInt(52).Equal(summary.Summary.ProfitMargin))

	var returns []domain.AdjustmentRecord
	res = call(t, api, token, http.MethodGet, "/api/v1/returns", nil, &returns)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, returns, 1)
	assert.Equal(t, domain.AdjustmentReturn, returns[0].Kind)
}

func TestSaleErrorsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	med := createMedicine(t, api, token, "Scarce", 2)

	res := call(t, api, token, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleLine{{MedicineID: med.ID, Quantity: 3}},
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = call(t, api, token, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleLine{{MedicineID: med.ID, Quantity: 0}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = call(t, api, token, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleLine{{MedicineID: "med-missing", Quantity: 1}},
	}, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = call(t, api, token, http.MethodPost, "/api/v1/damaged", domain.AdjustmentRequest{MedicineID: med.ID, Quantity: 5}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	var current domain.Medicine
	call(t, api, token, http.MethodGet, "/api/v1/medicines/"+med.ID, nil, &current)
	assert.Equal(t, 2, current.Quantity)
}

func TestDuplicateMedicineNameConflicts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	createMedicine(t, api, token, "Unique", 1)

	res := call(t, api, token, http.MethodPost, "/api/v1/medicines", domain.MedicineCreateRequest{
		Name:          "Unique",
		Category:      "Pain Relievers",
		ExpiryDate:    "2028-01-01",
		Quantity:      1,
		PurchasePrice: decimal.NewFromInt(1),
		SellingPrice:  decimal.NewFromInt(2),
	}, nil)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestDeleteMedicineKeepsLedgerAndMirror(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	med := createMedicine(t, api, token, "Discontinued", 10)

	res := call(t, api, token, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleLine{{MedicineName: "Discontinued", Quantity: 4}},
	}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = call(t, api, token, http.MethodDelete, "/api/v1/medicines/"+med.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = call(t, api, token, http.MethodGet, "/api/v1/medicines/"+med.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	var sales []domain.SaleRecord
	call(t, api, token, http.MethodGet, "/api/v1/sales", nil, &sales)
	require.Len(t, sales, 1)
	assert.Equal(t, "Discontinued", sales[0].MedicineName)

	var report domain.StockConsistencyReport
	res = call(t, api, token, http.MethodGet, "/api/v1/stock/consistency", nil, &report)
	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, report.Consistent)
}

func TestSellerPermissions(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "seller", "seller123")

	res := call(t, api, token, http.MethodGet, "/api/v1/medicines", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotContains(t, res.Body.String(), "purchase_price")
	assert.Contains(t, res.Body.String(), "selling_price")

	res = call(t, api, token, http.MethodGet, "/api/v1/finance/advanced", nil, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = call(t, api, token, http.MethodPost, "/api/v1/damaged", domain.AdjustmentRequest{MedicineID: "x", Quantity: 1}, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	var medicines []domain.ShelfMedicine
	call(t, api, token, http.MethodGet, "/api/v1/medicines", nil, &medicines)
	require.NotEmpty(t, medicines)

	var sale domain.CounterSaleResponse
	res = call(t, api, token, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items:  []domain.SaleLine{{MedicineID: medicines[0].ID, Quantity: 1}},
		Seller: "someone-else",
	}, &sale)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.Equal(t, "seller", sale.Sales[0].Seller)
	assert.NotContains(t, res.Body.String(), "purchase_price_at_time")
	assert.NotContains(t, res.Body.String(), "profit")

	admin := loginAsAdmin(t, api)
	res = call(t, api, admin, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleLine{{MedicineID: medicines[0].ID, Quantity: 1}},
	}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	var own []domain.CounterSale
	res = call(t, api, token, http.MethodGet, "/api/v1/sales", nil, &own)
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotContains(t, res.Body.String(), "purchase_price_at_time")
	assert.NotContains(t, res.Body.String(), "profit_at_time")
	require.Len(t, own, 1)
	assert.Equal(t, "seller", own[0].Seller)

	var all []domain.SaleRecord
	res = call(t, api, admin, http.MethodGet, "/api/v1/sales", nil, &all)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, all, 2)
	assert.Contains(t, res.Body.String(), "profit_at_time")
}

func TestSaleBodyUsesNameAndSellingPrice(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	createMedicine(t, api, token, "Loratadine", 20)

	payload := map[string]any{
		"items": []map[string]any{
			{"name": "Loratadine", "quantity": 2, "selling_price": 6},
		},
		"seller": "admin",
	}
	var sale domain.SaleResponse
	res := call(t, api, token, http.MethodPost, "/api/v1/sales", payload, &sale)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	require.Len(t, sale.Sales, 1)
	assert.Equal(t, "Loratadine", sale.Sales[0].MedicineName)
	assert.True(t, decimal.NewFromInt(6).Equal(sale.Sales[0].SalePriceAtTime))
	assert.True(t, decimal.NewFromInt(12).Equal(sale.TotalPrice))
	assert.True(t, decimal.NewFromInt(6).Equal(sale.TotalProfit))

	res = call(t, api, token, http.MethodPost, "/api/v1/sales", map[string]any{
		"items": []map[string]any{{"medicine_name": "Loratadine", "quantity": 1}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestFinanceRejectsBadCustomWindow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	res := call(t, api, token, http.MethodGet, "/api/v1/finance/advanced?period=custom&from=2026-02-01&to=2026-01-01", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = call(t, api, token, http.MethodGet, "/api/v1/sales?from=tomorrow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestNotificationScanAndDelete(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "pharmacist", "pharmacist123")

	var scan domain.NotificationScanResponse
	res := call(t, api, token, http.MethodPost, "/api/v1/notifications/scan", nil, &scan)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.NotEmpty(t, scan.Created)

	var again domain.NotificationScanResponse
	call(t, api, token, http.MethodPost, "/api/v1/notifications/scan", nil, &again)
	assert.Empty(t, again.Created)

	res = call(t, api, token, http.MethodDelete, "/api/v1/notifications/"+scan.Created[0].ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	var remaining []domain.Notification
	call(t, api, token, http.MethodGet, "/api/v1/notifications", nil, &remaining)
	assert.Len(t, remaining, len(scan.Created)-1)
}

func TestBranchAndUserAdministration(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	var branch domain.Branch
	res := call(t, api, token, http.MethodPost, "/api/v1/branches", domain.BranchRequest{Name: "Downtown", Address: "1 Main St"}, &branch)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = call(t, api, token, http.MethodPut, "/api/v1/branches/"+branch.ID, domain.BranchRequest{Name: "Downtown", Phone: "555-0100"}, &branch)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "555-0100", branch.Phone)
	res = call(t, api, token, http.MethodDelete, "/api/v1/branches/"+branch.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = call(t, api, token, http.MethodPost, "/api/v1/users", domain.UserCreateRequest{Username: "nightshift", Password: "pass1234", Role: domain.RoleSeller}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = call(t, api, token, http.MethodPost, "/api/v1/users", domain.UserCreateRequest{Username: "nightshift", Password: "pass1234"}, nil)
	assert.Equal(t, http.StatusConflict, res.Code)

	sellerToken := login(t, api, "nightshift", "pass1234")
	res = call(t, api, token, http.MethodPut, "/api/v1/users/nightshift/status", domain.UserStatusRequest{Active: false}, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = call(t, api, sellerToken, http.MethodGet, "/api/v1/medicines", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = call(t, api, token, http.MethodPut, "/api/v1/users/nightshift/password", domain.UserPasswordRequest{Password: "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	var users []domain.User
	call(t, api, token, http.MethodGet, "/api/v1/users", nil, &users)
	assert.Len(t, users, 4)
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	call(t, api, token, http.MethodGet, "/api/v1/medicines/categories", nil, nil)

	res := call(t, api, "", http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.True(t, strings.Contains(body, `route="/api/v1/medicines/categories"`), body)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	api := newTestAPI(t)

	res := call(t, api, "", http.MethodGet, "/api/v1/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "route not found")
}
