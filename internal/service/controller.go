package service

import (
	"fmt"
	"strings"
	"time"

	"gearrent/internal/availability"
	"gearrent/internal/calendar"
	"gearrent/internal/deposit"
	"gearrent/internal/domain"
	"gearrent/internal/models"
	"gearrent/internal/pricing"

	"github.com/google/uuid"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NewCode returns prefix followed by eight upper-case hex characters.
func NewCode(prefix string) string {
	return prefix + strings.ToUpper(uuid.NewString()[:8])
}

// BookingController applies the reservation and rental state machines to
// snapshots handed in by the caller. It keeps no state between calls and
// never touches storage.
type BookingController struct {
	pricing *pricing.Calculator
	clock   domain.Clock
	newCode func(prefix string) string
}

func NewBookingController(calc *pricing.Calculator, clock domain.Clock) *BookingController {
	if clock == nil {
		clock = realClock{}
	}
	return &BookingController{
		pricing: calc,
		clock:   clock,
		newCode: NewCode,
	}
}

func (c *BookingController) today() time.Time {
	return calendar.Day(c.clock.Now())
}

// ValidateWindow normalizes the window dates and checks them against today
// and the configured maximum span.
func (c *BookingController) ValidateWindow(w *models.BookingWindow) error {
	if w.StartDate.IsZero() || w.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", domain.ErrInvalidWindow)
	}
	w.StartDate = calendar.Day(w.StartDate)
	w.EndDate = calendar.Day(w.EndDate)

	if w.EndDate.Before(w.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s",
			domain.ErrInvalidWindow, w.EndDate.Format(calendar.Layout), w.StartDate.Format(calendar.Layout))
	}
	if w.StartDate.Before(c.today()) {
		return fmt.Errorf("%w: start date %s is in the past", domain.ErrInvalidWindow, w.StartDate.Format(calendar.Layout))
	}
	if days, limit := calendar.InclusiveDayCount(w.StartDate, w.EndDate), c.pricing.MaxBookingDays(); days > limit {
		return fmt.Errorf("%w: %d days exceeds the maximum of %d", domain.ErrInvalidWindow, days, limit)
	}
	return nil
}

func (c *BookingController) validateParties(w *models.BookingWindow, customer *models.CustomerProfile, offer *models.EquipmentOffer) error {
	if w.EquipmentID != offer.ID {
		return fmt.Errorf("%w: window is for equipment %d, offer is %d", domain.ErrInvalidWindow, w.EquipmentID, offer.ID)
	}
	if w.CustomerID != customer.ID {
		return fmt.Errorf("%w: window is for customer %d, profile is %d", domain.ErrInvalidWindow, w.CustomerID, customer.ID)
	}
	if w.BranchID == 0 {
		w.BranchID = offer.BranchID
	}
	return nil
}

func checkAvailable(w models.BookingWindow, rentals []*models.Rental, reservations []*models.Reservation) error {
	conflicts := availability.Conflicts(w.EquipmentID, w.StartDate, w.EndDate, rentals, reservations)
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: equipment %d is held by %s from %s to %s",
			domain.ErrEquipmentUnavailable, w.EquipmentID, conflicts[0].Code,
			conflicts[0].StartDate.Format(calendar.Layout), conflicts[0].EndDate.Format(calendar.Layout))
	}
	return nil
}

// CreateReservation returns a PENDING reservation for the window. Deposits are
// not checked until the reservation is converted.
func (c *BookingController) CreateReservation(
	window models.BookingWindow,
	customer *models.CustomerProfile,
	offer *models.EquipmentOffer,
	rentals []*models.Rental,
	reservations []*models.Reservation,
) (*models.Reservation, error) {
	if err := c.ValidateWindow(&window); err != nil {
		return nil, err
	}
	if err := c.validateParties(&window, customer, offer); err != nil {
		return nil, err
	}
	if err := checkAvailable(window, rentals, reservations); err != nil {
		return nil, err
	}

	return &models.Reservation{
		Code:          c.newCode(models.ReservationCodePrefix),
		BookingWindow: window,
		Status:        models.ReservationPending,
		CreatedAt:     c.clock.Now(),
	}, nil
}

// Conversion is the result of converting a reservation. Both values must be
// persisted together.
type Conversion struct {
	Rental      *models.Rental
	Reservation *models.Reservation
}

// ConvertToRental prices the reservation afresh and opens an ACTIVE rental for it.
// The reservation's window stays blocked by the reservation itself, so
// availability is not re-checked here.
func (c *BookingController) ConvertToRental(
	reservation *models.Reservation,
	offer *models.EquipmentOffer,
	category *models.CategoryPricing,
	customer *models.CustomerProfile,
	customerRentals []*models.Rental,
) (*Conversion, error) {
	if reservation.Status != models.ReservationPending {
		return nil, fmt.Errorf("%w: reservation %s is %s, only PENDING can be converted",
			domain.ErrInvalidState, reservation.Code, reservation.Status)
	}
	if reservation.EquipmentID != offer.ID || reservation.CustomerID != customer.ID {
		return nil, fmt.Errorf("%w: reservation %s does not match the offer or customer", domain.ErrInvalidWindow, reservation.Code)
	}

	rental, err := c.openRental(reservation.BookingWindow, customer, offer, category, customerRentals)
	if err != nil {
		return nil, err
	}
	id := reservation.ID
	rental.ReservationID = &id

	confirmed := *reservation
	confirmed.Status = models.ReservationConfirmed

	return &Conversion{Rental: rental, Reservation: &confirmed}, nil
}

// CreateRental opens a walk-in rental with no prior reservation.
func (c *BookingController) CreateRental(
	window models.BookingWindow,
	customer *models.CustomerProfile,
	offer *models.EquipmentOffer,
	category *models.CategoryPricing,
	rentals []*models.Rental,
	reservations []*models.Reservation,
	customerRentals []*models.Rental,
) (*models.Rental, error) {
	if err := c.ValidateWindow(&window); err != nil {
		return nil, err
	}
	if err := c.validateParties(&window, customer, offer); err != nil {
		return nil, err
	}
	if err := checkAvailable(window, rentals, reservations); err != nil {
		return nil, err
	}
	return c.openRental(window, customer, offer, category, customerRentals)
}

func (c *BookingController) openRental(
	window models.BookingWindow,
	customer *models.CustomerProfile,
	offer *models.EquipmentOffer,
	category *models.CategoryPricing,
	customerRentals []*models.Rental,
) (*models.Rental, error) {
	if offer.CategoryID != category.ID {
		return nil, fmt.Errorf("%w: equipment %d is not in category %d", domain.ErrInvalidWindow, offer.ID, category.ID)
	}
	quote := c.pricing.Quote(offer, category, customer, window.StartDate, window.EndDate)

	held := deposit.ActiveDeposits(customerRentals, customer.ID)
	if err := deposit.CheckDepositLimit(customer, held, quote.SecurityDeposit); err != nil {
		return nil, err
	}

	rental := &models.Rental{
		Code:          c.newCode(models.RentalCodePrefix),
		BookingWindow: window,
		Status:        models.RentalActive,
		PaymentStatus: models.PaymentUnpaid,
		CreatedAt:     c.clock.Now(),
	}
	quote.Apply(rental)
	return rental, nil
}

// Cancellation is the result of cancelling a reservation.
type Cancellation struct {
	Reservation *models.Reservation
	// Rental is the linked rental, cancelled alongside. Nil when there is none to change.
	Rental *models.Rental
	// RentalCancellationRequired is set when the reservation was CONFIRMED but
	// its rental was not supplied. The caller must cancel it in the same unit of work.
	RentalCancellationRequired bool
}

func (c *BookingController) CancelReservation(reservation *models.Reservation, linkedRental *models.Rental) (*Cancellation, error) {
	if !reservation.BlocksAvailability() {
		return nil, fmt.Errorf("%w: reservation %s is already %s", domain.ErrInvalidState, reservation.Code, reservation.Status)
	}

	cancelled := *reservation
	cancelled.Status = models.ReservationCancelled
	out := &Cancellation{Reservation: &cancelled}

	if reservation.Status != models.ReservationConfirmed {
		return out, nil
	}
	if linkedRental == nil {
		out.RentalCancellationRequired = true
		return out, nil
	}

	switch {
	case linkedRental.HoldsEquipment():
		rental, err := c.CancelRental(linkedRental)
		if err != nil {
			return nil, err
		}
		out.Rental = rental
	case linkedRental.Status == models.RentalReturned:
		return nil, fmt.Errorf("%w: rental %s of reservation %s was already returned",
			domain.ErrInvalidState, linkedRental.Code, reservation.Code)
	}
	return out, nil
}

// CancelRental moves an active or overdue rental to CANCELLED. No settlement is computed.
func (c *BookingController) CancelRental(rental *models.Rental) (*models.Rental, error) {
	if !rental.HoldsEquipment() {
		return nil, fmt.Errorf("%w: rental %s is %s", domain.ErrInvalidState, rental.Code, rental.Status)
	}
	cancelled := *rental
	cancelled.Status = models.RentalCancelled
	return &cancelled, nil
}
