package httpapi

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
)

type allocationPreviewBody struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

type invoiceLineBody struct {
	ProductID   string          `json:"product_id" validate:"required,max=64"`
	Quantity    int64           `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	WorkingDate string          `json:"working_date" validate:"required,datetime=2006-01-02"`
}

type workingDateBody struct {
	WorkingDate string `json:"working_date" validate:"required,datetime=2006-01-02"`
}

type lateReturnBody struct {
	TargetShipmentID int64  `json:"target_shipment_id" validate:"gt=0"`
	Quantity         int64  `json:"quantity" validate:"gt=0"`
	WorkingDate      string `json:"working_date" validate:"required,datetime=2006-01-02"`
}

type supplierBody struct {
	Name           string          `json:"name" validate:"required,max=200"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type shipmentBody struct {
	SupplierID  string `json:"supplier_id" validate:"required"`
	ArrivalDate string `json:"arrival_date" validate:"required,datetime=2006-01-02"`
}

type shipmentItemBody struct {
	ProductID     string        `json:"product_id" validate:"required,max=64"`
	WeightPerUnit domain.Weight `json:"weight_per_unit"`
	Quantity      int64         `json:"quantity" validate:"gt=0"`
}

type settleBody struct {
	NextShipmentID int64  `json:"next_shipment_id" validate:"gt=0"`
	WorkingDate    string `json:"working_date" validate:"required,datetime=2006-01-02"`
}

type wastageBody struct {
	Weight domain.Weight `json:"weight"`
}

type expenseBody struct {
	Kind        string          `json:"kind" validate:"required,oneof=supplier company"`
	Amount      decimal.Decimal `json:"amount"`
	WorkingDate string          `json:"working_date" validate:"required,datetime=2006-01-02"`
}

type paymentBody struct {
	Amount      decimal.Decimal `json:"amount"`
	WorkingDate string          `json:"working_date" validate:"required,datetime=2006-01-02"`
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	level, err := a.service.StockLevel(r.Context(), r.PathValue("productID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (a *API) handleAllocationPreview(w http.ResponseWriter, r *http.Request) {
	var body allocationPreviewBody
	if !a.bind(w, r, &body) {
		return
	}

	plan, err := a.service.Allocate(r.Context(), body.ProductID, domain.Cartons(body.Quantity))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handleInvoiceLines(w http.ResponseWriter, r *http.Request) {
	invoiceID := strings.TrimSpace(r.PathValue("invoiceID"))
	var body invoiceLineBody
	if !a.bind(w, r, &body) {
		return
	}
	asOf, err := parseWorkingDate(body.WorkingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lines, err := a.service.AllocateAndCreate(r.Context(), domain.AllocateRequest{
		InvoiceID: invoiceID,
		ProductID: body.ProductID,
		Quantity:  domain.Cartons(body.Quantity),
		UnitPrice: body.UnitPrice,
		Actor:     actorFrom(r),
		AsOf:      asOf,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lines": lines})
}

func (a *API) handleReverse(w http.ResponseWriter, r *http.Request) {
	lineID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body workingDateBody
	if !a.bind(w, r, &body) {
		return
	}
	asOf, err := parseWorkingDate(body.WorkingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	line, err := a.service.ReverseAllocation(r.Context(), domain.ReverseRequest{
		InvoiceLineID: lineID,
		Actor:         actorFrom(r),
		AsOf:          asOf,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (a *API) handleLateReturn(w http.ResponseWriter, r *http.Request) {
	lineID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body lateReturnBody
	if !a.bind(w, r, &body) {
		return
	}
	asOf, err := parseWorkingDate(body.WorkingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	carryover, err := a.service.RecordLateReturn(r.Context(), domain.LateReturnRequest{
		InvoiceLineID:    lineID,
		TargetShipmentID: body.TargetShipmentID,
		Quantity:         domain.Cartons(body.Quantity),
		Actor:            actorFrom(r),
		AsOf:             asOf,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, carryover)
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var body supplierBody
	if !a.bind(w, r, &body) {
		return
	}

	supplier, err := a.service.CreateSupplier(r.Context(), domain.SupplierCreateRequest{
		Name:           body.Name,
		OpeningBalance: body.OpeningBalance,
		Actor:          actorFrom(r),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, supplier)
}

func (a *API) handleSupplierPayment(w http.ResponseWriter, r *http.Request) {
	supplierID := strings.TrimSpace(r.PathValue("id"))
	var body paymentBody
	if !a.bind(w, r, &body) {
		return
	}
	asOf, err := parseWorkingDate(body.WorkingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payment, err := a.service.PostSupplierPayment(r.Context(), domain.SupplierPaymentRequest{
		SupplierID: supplierID,
		Amount:     body.Amount,
		Actor:      actorFrom(r),
		AsOf:       asOf,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (a *API) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	var body shipmentBody
	if !a.bind(w, r, &body) {
		return
	}
	arrival, err := parseWorkingDate(body.ArrivalDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shipment, err := a.service.CreateShipment(r.Context(), domain.ShipmentCreateRequest{
		SupplierID:  body.SupplierID,
		ArrivalDate: arrival,
		Actor:       actorFrom(r),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shipment)
}

func (a *API) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shipment, items, err := a.service.Shipment(r.Context(), shipmentID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipment": shipment, "items": items})
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body shipmentItemBody
	if !a.bind(w, r, &body) {
		return
	}

	item, err := a.service.AddShipmentItem(r.Context(), domain.ShipmentItemCreateRequest{
		ShipmentID:    shipmentID,
		ProductID:     body.ProductID,
		WeightPerUnit: body.WeightPerUnit,
		Quantity:      domain.Cartons(body.Quantity),
		Actor:         actorFrom(r),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleCloseShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shipment, err := a.service.CloseShipment(r.Context(), shipmentID, actorFrom(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shipment)
}

func (a *API) handleSupplierExpense(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body expenseBody
	if !a.bind(w, r, &body) {
		return
	}
	asOf, err := parseWorkingDate(body.WorkingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	expense, err := a.service.PostSupplierExpense(r.Context(), domain.SupplierExpenseRequest{
		ShipmentID: shipmentID,
		Kind:       domain.ExpenseKind(body.Kind),
		Amount:     body.Amount,
		Actor:      actorFrom(r),
		AsOf:       asOf,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (a *API) handleSettle(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body settleBody
	if !a.bind(w, r, &body) {
		return
	}
	asOf, err := parseWorkingDate(body.WorkingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	settled, err := a.service.Settle(r.Context(), domain.SettleRequest{
		ShipmentID:     shipmentID,
		NextShipmentID: body.NextShipmentID,
		Actor:          actorFrom(r),
		AsOf:           asOf,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settled)
}

func (a *API) handleUnsettle(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body workingDateBody
	if !a.bind(w, r, &body) {
		return
	}
	asOf, err := parseWorkingDate(body.WorkingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	restored, err := a.service.Unsettle(r.Context(), domain.UnsettleRequest{
		ShipmentID: shipmentID,
		Actor:      actorFrom(r),
		AsOf:       asOf,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, restored)
}

func (a *API) handleSettlementReport(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := a.service.GenerateSettlementReport(r.Context(), shipmentID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleWastage(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body wastageBody
	if !a.bind(w, r, &body) {
		return
	}

	item, err := a.service.RecordWastage(r.Context(), domain.WastageRequest{
		ShipmentItemID: itemID,
		Weight:         body.Weight,
		Actor:          actorFrom(r),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	ref := domain.EntityRef{
		Kind: domain.EntityKind(strings.TrimSpace(r.URL.Query().Get("kind"))),
		ID:   strings.TrimSpace(r.URL.Query().Get("id")),
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), ref, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
