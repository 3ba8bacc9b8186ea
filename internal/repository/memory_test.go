package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"gearrent/internal/calendar"
	"gearrent/internal/config"
	"gearrent/internal/domain"
	"gearrent/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jun(d int) time.Time {
	return calendar.Date(2025, time.June, d)
}

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	err := store.SeedCatalog(context.Background(), &config.Catalog{
		Categories: []models.CategoryPricing{{ID: 1, Name: "Cameras", BasePriceFactor: decimal.NewFromInt(1), WeekendFactor: decimal.NewFromInt(1)}},
		Equipment:  []models.EquipmentOffer{{ID: 5, Code: "CAM-005", CategoryID: 1, DailyBasePrice: decimal.NewFromInt(100)}},
		Customers:  []models.CustomerProfile{{ID: 9, Name: "Ann", Tier: models.TierSilver}},
	})
	require.NoError(t, err)
	return store
}

func TestMemoryStoreReadsAndWrites(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	window := models.BookingWindow{EquipmentID: 5, CustomerID: 9, StartDate: jun(10), EndDate: jun(12)}

	var resID, rentalID int64
	err := store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		offer, err := tx.GetEquipment(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "CAM-005", offer.Code)

		res := &models.Reservation{Code: "RES-1", BookingWindow: window, Status: models.ReservationPending}
		require.NoError(t, tx.CreateReservation(ctx, res))
		resID = res.ID

		rental := &models.Rental{Code: "RENT-1", BookingWindow: window, ReservationID: &resID, Status: models.RentalActive}
		require.NoError(t, tx.CreateRental(ctx, rental))
		rentalID = rental.ID
		return tx.UpdateReservationStatus(ctx, resID, models.ReservationConfirmed)
	})
	require.NoError(t, err)

	err = store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		res, err := tx.GetReservation(ctx, resID)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationConfirmed, res.Status)

		active, err := tx.ActiveReservationsByEquipment(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		linked, err := tx.GetRentalByReservation(ctx, resID)
		require.NoError(t, err)
		require.NotNil(t, linked)
		assert.Equal(t, rentalID, linked.ID)

		none, err := tx.GetRentalByReservation(ctx, 999)
		assert.NoError(t, err)
		assert.Nil(t, none)

		byCustomer, err := tx.ActiveRentalsByCustomer(ctx, 9)
		require.NoError(t, err)
		assert.Len(t, byCustomer, 1)

		overdue, err := tx.OverdueRentals(ctx, jun(13))
		require.NoError(t, err)
		assert.Len(t, overdue, 1)

		overdue, err = tx.OverdueRentals(ctx, jun(12))
		require.NoError(t, err)
		assert.Empty(t, overdue)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		res := &models.Reservation{Code: "RES-1", BookingWindow: models.BookingWindow{EquipmentID: 5}, Status: models.ReservationPending}
		require.NoError(t, tx.CreateReservation(ctx, res))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		active, err := tx.ActiveReservationsByEquipment(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, active)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := seededStore(t)
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.GetCustomer(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetRental(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateRentalStatus(ctx, 404, models.RentalCancelled), domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreCompleteReturn(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	rental := &models.Rental{Code: "RENT-1", BookingWindow: models.BookingWindow{EquipmentID: 5, CustomerID: 9, StartDate: jun(1), EndDate: jun(3)}, Status: models.RentalActive}
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.CreateRental(ctx, rental)
	}))

	returned := *rental
	returned.Status = models.RentalReturned
	day := jun(4)
	returned.ActualReturnDate = &day
	settlement := &models.ReturnSettlement{RentalID: rental.ID, ReturnDate: day, RefundAmount: decimal.NewFromInt(10)}

	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.CompleteReturn(ctx, &returned, settlement)
	}))
	assert.NotZero(t, settlement.ID)

	stored, ok := store.Settlement(rental.ID)
	require.True(t, ok)
	assert.True(t, stored.RefundAmount.Equal(decimal.NewFromInt(10)))

	err := store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		r, err := tx.GetRental(ctx, rental.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RentalReturned, r.Status)
		require.NotNil(t, r.ActualReturnDate)
		assert.Equal(t, jun(4), *r.ActualReturnDate)

		return tx.CompleteReturn(ctx, &returned, &models.ReturnSettlement{RentalID: rental.ID})
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
}

func TestMemoryStoreSeedRejectsUnknownCategory(t *testing.T) {
	store := NewMemoryStore()
	err := store.SeedCatalog(context.Background(), &config.Catalog{
		Equipment: []models.EquipmentOffer{{ID: 1, CategoryID: 3}},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryStore().RunInTx(ctx, func(context.Context, domain.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
