package domain

import (
	"context"
	"time"

	"gearrent/internal/models"
)

// Store runs units of work. fn either commits as a whole or leaves nothing behind.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside one unit of work.
type Tx interface {
	GetEquipment(ctx context.Context, id int64) (*models.EquipmentOffer, error)
	GetCategory(ctx context.Context, id int64) (*models.CategoryPricing, error)
	GetCustomer(ctx context.Context, id int64) (*models.CustomerProfile, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetRental(ctx context.Context, id int64) (*models.Rental, error)
	// GetRentalByReservation returns nil, nil when the reservation was never converted.
	GetRentalByReservation(ctx context.Context, reservationID int64) (*models.Rental, error)

	ActiveRentalsByEquipment(ctx context.Context, equipmentID int64) ([]*models.Rental, error)
	ActiveReservationsByEquipment(ctx context.Context, equipmentID int64) ([]*models.Reservation, error)
	ActiveRentalsByCustomer(ctx context.Context, customerID int64) ([]*models.Rental, error)
	OverdueRentals(ctx context.Context, today time.Time) ([]*models.Rental, error)

	CreateReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, id int64, status models.ReservationStatus) error
	CreateRental(ctx context.Context, r *models.Rental) error
	UpdateRentalStatus(ctx context.Context, id int64, status models.RentalStatus) error
	CompleteReturn(ctx context.Context, rental *models.Rental, settlement *models.ReturnSettlement) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type Clock interface {
	Now() time.Time
}
