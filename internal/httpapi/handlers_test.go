package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/lock"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/service"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, a real AuthManager
// and a real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *AuthManager) {
	t.Helper()
	return newTestAPIWith(t, service.Options{})
}

func newTestAPIWith(t *testing.T, opts service.Options) (*API, *AuthManager) {
	t.Helper()

	opts.CommissionRate = decimal.RequireFromString("0.06")
	svc := service.New(memory.New(), opts)
	auth := NewAuthManager(testSecret, time.Hour)
	return New(svc, auth, "*", nil), auth
}

func tokenFor(t *testing.T, auth *AuthManager, username string, role string) string {
	t.Helper()
	token, _, err := auth.IssueToken(domain.Actor{Username: username, Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func call(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d (body: %s)", want, rec.Code, rec.Body.String())
	}
}

// seedOverHTTP creates a supplier with a stocked shipment and an empty next
// shipment, returning both shipment ids.
func seedOverHTTP(t *testing.T, handler http.Handler, token string) (int64, int64) {
	t.Helper()

	rec := call(t, handler, http.MethodPost, "/api/v1/suppliers", token, map[string]any{"name": "Nile Valley Farms"})
	expectStatus(t, rec, http.StatusCreated)
	var supplier domain.Supplier
	decodeInto(t, rec, &supplier)

	ids := make([]int64, 0, 2)
	for i := 0; i < 2; i++ {
		rec = call(t, handler, http.MethodPost, "/api/v1/shipments", token, map[string]any{
			"supplier_id":  supplier.ID,
			"arrival_date": "2026-03-01",
		})
		expectStatus(t, rec, http.StatusCreated)
		var shipment domain.Shipment
		decodeInto(t, rec, &shipment)
		ids = append(ids, shipment.ID)
	}

	rec = call(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/shipments/%d/items", ids[0]), token, map[string]any{
		"product_id":      "tomato",
		"weight_per_unit": "10",
		"quantity":        100,
	})
	expectStatus(t, rec, http.StatusCreated)
	return ids[0], ids[1]
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := call(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusOK)

	var body map[string]any
	decodeInto(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestStockRequiresBearerToken(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := call(t, api.Handler(), http.MethodGet, "/api/v1/stock/tomato", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestSettleForbiddenForSalesRole(t *testing.T) {
	api, auth := newTestAPI(t)
	clerk := tokenFor(t, auth, "omar", domain.RoleSales)

	rec := call(t, api.Handler(), http.MethodPost, "/api/v1/shipments/1/settle", clerk, map[string]any{
		"next_shipment_id": 2,
		"working_date":     "2026-03-02",
	})
	expectStatus(t, rec, http.StatusForbidden)
}

func TestLedgerFlowOverHTTP(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	accountant := tokenFor(t, auth, "layla", domain.RoleAccountant)
	clerk := tokenFor(t, auth, "omar", domain.RoleSales)

	first, next := seedOverHTTP(t, handler, accountant)

	rec := call(t, handler, http.MethodPost, "/api/v1/invoices/INV-1/lines", clerk, map[string]any{
		"product_id":   "tomato",
		"quantity":     30,
		"unit_price":   "50",
		"working_date": "2026-03-01",
	})
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		Lines []domain.InvoiceLine `json:"lines"`
	}
	decodeInto(t, rec, &created)
	if len(created.Lines) != 1 || created.Lines[0].Quantity != 30 || created.Lines[0].ShipmentID != first {
		t.Fatalf("unexpected lines %+v", created.Lines)
	}

	rec = call(t, handler, http.MethodGet, "/api/v1/stock/tomato", clerk, nil)
	expectStatus(t, rec, http.StatusOK)
	var level domain.StockLevel
	decodeInto(t, rec, &level)
	if level.Available != 70 || len(level.Breakdown) != 1 {
		t.Fatalf("expected 70 available in one item, got %+v", level)
	}

	rec = call(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/shipments/%d/settle", first), accountant, map[string]any{
		"next_shipment_id": next,
		"working_date":     "2026-03-02",
	})
	expectStatus(t, rec, http.StatusOK)
	var settled domain.Shipment
	decodeInto(t, rec, &settled)
	if settled.Status != domain.ShipmentSettled {
		t.Fatalf("expected settled status, got %s", settled.Status)
	}
	if !settled.FinalSupplierBalance.Equal(decimal.NewFromInt(1410)) {
		t.Fatalf("expected final balance 1410, got %s", settled.FinalSupplierBalance)
	}

	rec = call(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/shipments/%d/settlement-report", first), accountant, nil)
	expectStatus(t, rec, http.StatusOK)
	var report domain.SettlementReport
	decodeInto(t, rec, &report)
	if !report.Consistent {
		t.Fatalf("expected consistent report, got %v", report.Discrepancies)
	}

	rec = call(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/shipments/%d/settle", first), accountant, map[string]any{
		"next_shipment_id": next,
		"working_date":     "2026-03-02",
	})
	expectStatus(t, rec, http.StatusConflict)
}

func TestInsufficientStockCarriesNumbers(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	accountant := tokenFor(t, auth, "layla", domain.RoleAccountant)
	seedOverHTTP(t, handler, accountant)

	rec := call(t, handler, http.MethodPost, "/api/v1/invoices/INV-2/lines", accountant, map[string]any{
		"product_id":   "tomato",
		"quantity":     1000,
		"unit_price":   "50",
		"working_date": "2026-03-01",
	})
	expectStatus(t, rec, http.StatusConflict)

	var body struct {
		ProductID string `json:"product_id"`
		Requested int64  `json:"requested"`
		Available int64  `json:"available"`
	}
	decodeInto(t, rec, &body)
	if body.ProductID != "tomato" || body.Requested != 1000 || body.Available != 100 {
		t.Fatalf("unexpected conflict body %+v", body)
	}
}

func TestValidationErrorsListFields(t *testing.T) {
	api, auth := newTestAPI(t)
	clerk := tokenFor(t, auth, "omar", domain.RoleSales)

	rec := call(t, api.Handler(), http.MethodPost, "/api/v1/invoices/INV-3/lines", clerk, map[string]any{
		"product_id": "tomato",
		"quantity":   0,
		"unit_price": "50",
	})
	expectStatus(t, rec, http.StatusBadRequest)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decodeInto(t, rec, &body)
	if body.Fields["quantity"] != "gt" {
		t.Fatalf("expected quantity gt failure, got %v", body.Fields)
	}
	if body.Fields["working_date"] != "required" {
		t.Fatalf("expected working_date required failure, got %v", body.Fields)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	api, auth := newTestAPI(t)
	accountant := tokenFor(t, auth, "layla", domain.RoleAccountant)

	rec := call(t, api.Handler(), http.MethodPost, "/api/v1/suppliers", accountant, map[string]any{
		"name":   "Delta Farms",
		"rating": 5,
	})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestUnknownShipmentIs404(t *testing.T) {
	api, auth := newTestAPI(t)
	accountant := tokenFor(t, auth, "layla", domain.RoleAccountant)

	rec := call(t, api.Handler(), http.MethodGet, "/api/v1/shipments/999", accountant, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestReverseTwiceIsConflict(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	accountant := tokenFor(t, auth, "layla", domain.RoleAccountant)
	seedOverHTTP(t, handler, accountant)

	rec := call(t, handler, http.MethodPost, "/api/v1/invoices/INV-4/lines", accountant, map[string]any{
		"product_id":   "tomato",
		"quantity":     10,
		"unit_price":   "50",
		"working_date": "2026-03-01",
	})
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		Lines []domain.InvoiceLine `json:"lines"`
	}
	decodeInto(t, rec, &created)

	path := fmt.Sprintf("/api/v1/invoice-lines/%d/reverse", created.Lines[0].ID)
	body := map[string]any{"working_date": "2026-03-01"}
	expectStatus(t, call(t, handler, http.MethodPost, path, accountant, body), http.StatusOK)
	expectStatus(t, call(t, handler, http.MethodPost, path, accountant, body), http.StatusConflict)
}

type busyGuard struct{}

func (busyGuard) Acquire(_ context.Context, key string) (func(), error) {
	return nil, errors.Join(lock.ErrBusy, errors.New(key))
}

func TestContentionIsRetryable503(t *testing.T) {
	api, auth := newTestAPIWith(t, service.Options{Guard: busyGuard{}})
	handler := api.Handler()
	accountant := tokenFor(t, auth, "layla", domain.RoleAccountant)
	first, next := seedOverHTTP(t, handler, accountant)

	rec := call(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/shipments/%d/settle", first), accountant, map[string]any{
		"next_shipment_id": next,
		"working_date":     "2026-03-02",
	})
	expectStatus(t, rec, http.StatusServiceUnavailable)

	var body map[string]any
	decodeInto(t, rec, &body)
	if body["retryable"] != true {
		t.Fatalf("expected retryable:true, got %v", body)
	}
}

func TestAuditLogsAdminOnly(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	accountant := tokenFor(t, auth, "layla", domain.RoleAccountant)
	admin := tokenFor(t, auth, "root", domain.RoleAdmin)
	first, _ := seedOverHTTP(t, handler, accountant)

	path := fmt.Sprintf("/api/v1/audit-logs?kind=shipment&id=%d", first)
	expectStatus(t, call(t, handler, http.MethodGet, path, accountant, nil), http.StatusForbidden)

	rec := call(t, handler, http.MethodGet, path, admin, nil)
	expectStatus(t, rec, http.StatusOK)
	var body struct {
		Logs []domain.AuditLog `json:"logs"`
	}
	decodeInto(t, rec, &body)
	if len(body.Logs) == 0 {
		t.Fatalf("expected audit entries for shipment %d", first)
	}
}
