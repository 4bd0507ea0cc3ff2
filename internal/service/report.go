package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

// GenerateSettlementReport recomputes a shipment's figures from its items and
// invoice lines and checks them against what settlement stored. It never
// writes to the ledger. Reports of settled shipments are cached until the
// shipment is unsettled.
func (s *Service) GenerateSettlementReport(ctx context.Context, shipmentID int64) (domain.SettlementReport, error) {
	if shipmentID <= 0 {
		return domain.SettlementReport{}, invalidf("shipment is required")
	}

	key := reportCacheKey(shipmentID)
	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		s.log.WithField("shipment_id", shipmentID).WithError(err).Warn("report cache read failed")
	} else if ok {
		return *cached, nil
	}

	var report domain.SettlementReport
	err := s.repo.View(ctx, func(r store.Reader) error {
		var err error
		report, err = s.projectReport(ctx, r, shipmentID)
		return err
	})
	if err != nil {
		return domain.SettlementReport{}, err
	}

	if !report.Consistent {
		s.log.WithFields(logrus.Fields{
			"shipment_id":   shipmentID,
			"discrepancies": report.Discrepancies,
		}).Error("settlement report disagrees with stored figures")
	}
	if report.Status == domain.ShipmentSettled {
		if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
			s.log.WithField("shipment_id", shipmentID).WithError(err).Warn("report cache write failed")
		}
	}
	return report, nil
}

func (s *Service) projectReport(ctx context.Context, r store.Reader, shipmentID int64) (domain.SettlementReport, error) {
	shipment, err := r.GetShipment(ctx, shipmentID)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("shipment %d: %w", shipmentID, err)
	}
	supplier, err := r.GetSupplier(ctx, shipment.SupplierID)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("supplier %s: %w", shipment.SupplierID, err)
	}
	items, err := r.ListShipmentItems(ctx, shipment.ID)
	if err != nil {
		return domain.SettlementReport{}, err
	}
	lines, err := r.ListInvoiceLinesByShipment(ctx, shipment.ID)
	if err != nil {
		return domain.SettlementReport{}, err
	}

	report := domain.SettlementReport{
		ShipmentID:   shipment.ID,
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		FIFOSequence: shipment.FIFOSequence,
		ArrivalDate:  shipment.ArrivalDate,
		Status:       shipment.Status,
		SettledOn:    shipment.SettledOn,
		TotalSales:   decimal.Zero,
		GeneratedAt:  s.now(),
	}

	byProduct := make(map[string]*domain.ProductSettlementLine)
	productLine := func(productID string) *domain.ProductSettlementLine {
		pl, ok := byProduct[productID]
		if !ok {
			pl = &domain.ProductSettlementLine{ProductID: productID, Revenue: decimal.Zero}
			byProduct[productID] = pl
		}
		return pl
	}

	for _, item := range items {
		pl := productLine(item.ProductID)
		pl.IncomingQuantity += item.InitialQuantity
		pl.IncomingWeight = pl.IncomingWeight.Add(item.IncomingWeight())
		pl.CarriedOutQuantity += item.CarryoverOutQuantity
		pl.CarriedOutWeight = pl.CarriedOutWeight.Add(item.CarriedOutWeight())
		pl.WastageWeight = pl.WastageWeight.Add(item.WastageWeight)
	}
	for _, line := range lines {
		if line.Status != domain.LineActive {
			continue
		}
		pl := productLine(line.ProductID)
		pl.SoldQuantity += line.Quantity
		pl.SoldWeight = pl.SoldWeight.Add(line.Weight)
		pl.Revenue = pl.Revenue.Add(line.Total)
	}

	report.Products = make([]domain.ProductSettlementLine, 0, len(byProduct))
	for _, pl := range byProduct {
		report.Products = append(report.Products, *pl)
		report.SoldQuantity += pl.SoldQuantity
		report.IncomingWeight = report.IncomingWeight.Add(pl.IncomingWeight)
		report.CarriedOutWeight = report.CarriedOutWeight.Add(pl.CarriedOutWeight)
		report.WastageWeight = report.WastageWeight.Add(pl.WastageWeight)
		report.TotalSales = report.TotalSales.Add(pl.Revenue)
	}
	sort.Slice(report.Products, func(i, j int) bool {
		return report.Products[i].ProductID < report.Products[j].ProductID
	})

	report.LateReturnsValue = shipment.LateReturnsValue
	report.CommissionRate = shipment.CommissionRate
	report.TotalSupplierExpenses = shipment.TotalSupplierExpenses
	report.PreviousSupplierBalance = shipment.PreviousSupplierBalance
	report.SupplierPayments = shipment.SupplierPayments
	report.StoredFinalBalance = shipment.FinalSupplierBalance

	if shipment.Status != domain.ShipmentSettled {
		// Nothing has been frozen yet; show the provisional sales figures only.
		report.NetSales = report.TotalSales
		report.Consistent = true
		return report, nil
	}

	result := computeBalance(balanceInputs{
		TotalSales:       shipment.TotalSales,
		LateReturnsValue: shipment.LateReturnsValue,
		CommissionRate:   shipment.CommissionRate,
		Expenses:         shipment.TotalSupplierExpenses,
		PreviousBalance:  shipment.PreviousSupplierBalance,
		Payments:         shipment.SupplierPayments,
	})
	report.NetSales = result.NetSales
	report.Commission = result.Commission
	report.ComputedFinalBalance = result.FinalBalance

	var discrepancies []string
	check := func(name string, ok bool, projected, stored any) {
		if !ok {
			discrepancies = append(discrepancies, fmt.Sprintf("%s: projected %v, stored %v", name, projected, stored))
		}
	}
	check("total_sales", report.TotalSales.Equal(shipment.TotalSales), report.TotalSales, shipment.TotalSales)
	check("total_sold_quantity", report.SoldQuantity == shipment.TotalSoldQuantity, report.SoldQuantity, shipment.TotalSoldQuantity)
	check("total_wastage", report.WastageWeight.Equal(shipment.TotalWastage), report.WastageWeight, shipment.TotalWastage)
	carriedOut := domain.Cartons(0)
	for _, pl := range report.Products {
		carriedOut += pl.CarriedOutQuantity
	}
	check("total_carryover_out", carriedOut == shipment.TotalCarryoverOut, carriedOut, shipment.TotalCarryoverOut)
	check("net_sales", result.NetSales.Equal(shipment.NetSales), result.NetSales, shipment.NetSales)
	check("commission", result.Commission.Equal(shipment.Commission), result.Commission, shipment.Commission)
	check("final_supplier_balance", result.FinalBalance.Equal(shipment.FinalSupplierBalance), result.FinalBalance, shipment.FinalSupplierBalance)

	report.Discrepancies = discrepancies
	report.Consistent = len(discrepancies) == 0
	return report, nil
}
