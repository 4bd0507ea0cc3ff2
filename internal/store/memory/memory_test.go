package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

func seedShipment(t *testing.T, s *Store, supplierID string, status domain.ShipmentStatus, qty domain.Cartons) (domain.Shipment, domain.ShipmentItem) {
	t.Helper()
	var (
		shipment *domain.Shipment
		item     *domain.ShipmentItem
	)
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		shipment, err = tx.CreateShipment(context.Background(), domain.Shipment{SupplierID: supplierID, Status: status})
		if err != nil {
			return err
		}
		item, err = tx.CreateItem(context.Background(), domain.NewIntakeItem(shipment.ID, "tomato", domain.MustKilograms("10"), qty))
		return err
	})
	require.NoError(t, err)
	return *shipment, *item
}

func decimalOf(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newStoreWithSupplier(t *testing.T) *Store {
	t.Helper()
	s := New()
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.CreateSupplier(context.Background(), domain.Supplier{ID: "sup-1", Name: "Supplier"})
		return err
	})
	require.NoError(t, err)
	return s
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	s := newStoreWithSupplier(t)
	_, item := seedShipment(t, s, "sup-1", domain.ShipmentOpen, 40)

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		locked, err := tx.LockItem(context.Background(), item.ID)
		if err != nil {
			return err
		}
		locked.SoldQuantity = 10
		locked.RemainingQuantity = 30
		if err := tx.UpdateItem(context.Background(), *locked); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(context.Background(), func(r store.Reader) error {
		got, err := r.GetShipmentItem(context.Background(), item.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, domain.Cartons(40), got.RemainingQuantity)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateItemRejectsImbalance(t *testing.T) {
	s := newStoreWithSupplier(t)
	_, item := seedShipment(t, s, "sup-1", domain.ShipmentOpen, 40)

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		item.RemainingQuantity = 41
		return tx.UpdateItem(context.Background(), item)
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
	assert.ErrorIs(t, err, domain.ErrItemImbalance)
}

func TestWriterWaitIsBounded(t *testing.T) {
	s := NewWithLockWait(20 * time.Millisecond)
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.WithTx(context.Background(), func(store.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.WithTx(context.Background(), func(store.Tx) error { return nil })
	assert.ErrorIs(t, err, store.ErrContention)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.WithTx(context.Background(), func(store.Tx) error { return nil }))
}

func TestEligibleItemsOrderAndFilter(t *testing.T) {
	s := newStoreWithSupplier(t)
	first, firstItem := seedShipment(t, s, "sup-1", domain.ShipmentClosed, 10)
	_, settledItem := seedShipment(t, s, "sup-1", domain.ShipmentSettled, 10)
	_, lastItem := seedShipment(t, s, "sup-1", domain.ShipmentOpen, 10)

	var eligible []domain.EligibleItem
	err := s.View(context.Background(), func(r store.Reader) error {
		var err error
		eligible, err = r.ListEligibleItems(context.Background(), "tomato")
		return err
	})
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	assert.Equal(t, firstItem.ID, eligible[0].ID)
	assert.Equal(t, first.FIFOSequence, eligible[0].FIFOSequence)
	assert.Equal(t, lastItem.ID, eligible[1].ID)
	for _, e := range eligible {
		assert.NotEqual(t, settledItem.ID, e.ID)
	}
}

func TestDeleteItemRefusesReferencedItem(t *testing.T) {
	s := newStoreWithSupplier(t)
	shipment, item := seedShipment(t, s, "sup-1", domain.ShipmentOpen, 10)

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.CreateInvoiceLine(context.Background(), domain.InvoiceLine{
			InvoiceID:      "INV-1",
			ShipmentItemID: item.ID,
			ShipmentID:     shipment.ID,
			ProductID:      "tomato",
			Quantity:       1,
			Status:         domain.LineActive,
		})
		if err != nil {
			return err
		}
		return tx.DeleteItem(context.Background(), item.ID)
	})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestConsumeSupplierPaymentsStampsOnlyOpenPayments(t *testing.T) {
	s := newStoreWithSupplier(t)
	first, _ := seedShipment(t, s, "sup-1", domain.ShipmentClosed, 10)
	second, _ := seedShipment(t, s, "sup-1", domain.ShipmentClosed, 10)
	d1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		for i, amount := range []int64{100, 200, 400} {
			if _, err := tx.CreateSupplierPayment(ctx, domain.SupplierPayment{
				SupplierID: "sup-1",
				Amount:     decimalOf(amount),
				PaidOn:     d1.AddDate(0, 0, i),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		total, err := tx.ConsumeSupplierPayments(ctx, "sup-1", d1.AddDate(0, 0, 1), first.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimalOf(300)), "got %s", total)

		total, err = tx.ConsumeSupplierPayments(ctx, "sup-1", d1.AddDate(0, 0, 2), second.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimalOf(400)), "got %s", total)
		return nil
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ReleaseSupplierPayments(ctx, second.ID); err != nil {
			return err
		}
		total, err := tx.ConsumeSupplierPayments(ctx, "sup-1", d1.AddDate(0, 0, 5), second.ID)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimalOf(400)), "released payment is consumed again, got %s", total)
		return nil
	})
	require.NoError(t, err)
}

func TestSeededStoreHasDemoStock(t *testing.T) {
	s := NewSeeded()
	err := s.View(context.Background(), func(r store.Reader) error {
		eligible, err := r.ListEligibleItems(context.Background(), "tomato")
		require.NoError(t, err)
		require.Len(t, eligible, 1)
		assert.Equal(t, domain.Cartons(120), eligible[0].RemainingQuantity)
		return nil
	})
	require.NoError(t, err)
}
