package service

import (
	"context"
	"strings"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

// FIFOBreakdown lists the stock Allocate would consume, in the same order,
// without locking it.
func (s *Service) FIFOBreakdown(ctx context.Context, productID string) ([]domain.EligibleItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, invalidf("product is required")
	}

	var items []domain.EligibleItem
	err := s.repo.View(ctx, func(r store.Reader) error {
		var err error
		items, err = r.ListEligibleItems(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) AvailableStock(ctx context.Context, productID string) (domain.Cartons, error) {
	items, err := s.FIFOBreakdown(ctx, productID)
	if err != nil {
		return 0, err
	}
	return sumRemaining(items), nil
}

// StockLevel returns the available total and its breakdown from one
// snapshot.
func (s *Service) StockLevel(ctx context.Context, productID string) (domain.StockLevel, error) {
	items, err := s.FIFOBreakdown(ctx, productID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	return domain.StockLevel{
		ProductID: strings.TrimSpace(productID),
		Available: sumRemaining(items),
		Breakdown: items,
	}, nil
}

func sumRemaining(items []domain.EligibleItem) domain.Cartons {
	total := domain.Cartons(0)
	for _, item := range items {
		total += item.RemainingQuantity
	}
	return total
}
