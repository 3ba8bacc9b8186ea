package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gearrent/internal/availability"
	"gearrent/internal/calendar"
	"gearrent/internal/domain"
	"gearrent/internal/events"
	"gearrent/internal/lock"
	"gearrent/internal/metrics"
	"gearrent/internal/models"
	"gearrent/internal/pricing"
	"gearrent/internal/retry"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MaxCalendarDays bounds a single availability calendar request.
const MaxCalendarDays = 92

// RentalDesk runs the booking operations against a store. Every operation
// that changes bookings holds the equipment lock (and the customer lock when
// deposits are involved) for the whole read-decide-write transaction.
type RentalDesk struct {
	store      domain.Store
	locker     domain.Locker
	controller *BookingController
	settler    *ReturnSettler
	pricing    *pricing.Calculator
	eventBus   domain.EventPublisher
	retry      retry.Policy
	clock      domain.Clock
	logger     *zerolog.Logger
}

func NewRentalDesk(
	store domain.Store,
	locker domain.Locker,
	calc *pricing.Calculator,
	eventBus domain.EventPublisher,
	policy retry.Policy,
	clock domain.Clock,
	logger *zerolog.Logger,
) *RentalDesk {
	if clock == nil {
		clock = realClock{}
	}
	return &RentalDesk{
		store:      store,
		locker:     locker,
		controller: NewBookingController(calc, clock),
		settler:    NewReturnSettler(),
		pricing:    calc,
		eventBus:   eventBus,
		retry:      policy,
		clock:      clock,
		logger:     logger,
	}
}

func (d *RentalDesk) today() time.Time {
	return calendar.Day(d.clock.Now())
}

// lock acquires keys in the given order and returns a func releasing them in reverse.
func (d *RentalDesk) lock(ctx context.Context, keys ...string) (func(), error) {
	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, key := range keys {
		start := time.Now()
		unlock, err := d.locker.Lock(ctx, key)
		kind, _, _ := strings.Cut(key, ":")
		metrics.ObserveLockWait(kind, time.Since(start))
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

// transact runs fn in a transaction, retrying transient storage failures.
func (d *RentalDesk) transact(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return retry.Do(ctx, d.retry, isTransient, func(ctx context.Context) error {
		return d.store.RunInTx(ctx, fn)
	})
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrConcurrentModification)
}

// resultOf maps an operation error onto a metrics label.
func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrEquipmentUnavailable):
		return "conflict"
	case errors.Is(err, domain.ErrDepositLimitExceeded):
		return "deposit_limit"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "busy"
	case errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidReturnDate),
		errors.Is(err, domain.ErrInvalidCharge),
		errors.Is(err, domain.ErrInvalidConfiguration):
		return "rejected"
	default:
		return "error"
	}
}

func (d *RentalDesk) finish(operation string, err error) {
	result := resultOf(err)
	metrics.IncBooking(operation, result)
	if result == "error" {
		d.logger.Error().Err(err).Str("operation", operation).Msg("Booking operation failed")
	} else if err != nil {
		d.logger.Debug().Err(err).Str("operation", operation).Str("result", result).Msg("Booking operation rejected")
	}
}

func (d *RentalDesk) publish(eventType string, payload interface{}) {
	if d.eventBus == nil {
		return
	}
	if err := d.eventBus.PublishJSON(eventType, payload); err != nil {
		d.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func reservationPayload(r *models.Reservation) events.BookingEventPayload {
	return events.BookingEventPayload{
		ReservationID: r.ID,
		Code:          r.Code,
		EquipmentID:   r.EquipmentID,
		CustomerID:    r.CustomerID,
		BranchID:      r.BranchID,
		Status:        string(r.Status),
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
	}
}

func rentalPayload(r *models.Rental) events.BookingEventPayload {
	p := events.BookingEventPayload{
		RentalID:        r.ID,
		Code:            r.Code,
		EquipmentID:     r.EquipmentID,
		CustomerID:      r.CustomerID,
		BranchID:        r.BranchID,
		Status:          string(r.Status),
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		FinalPayable:    events.Money(r.FinalPayable),
		SecurityDeposit: events.Money(r.SecurityDeposit),
	}
	if r.ReservationID != nil {
		p.ReservationID = *r.ReservationID
	}
	return p
}

// Quote prices a window for a customer without booking anything.
func (d *RentalDesk) Quote(ctx context.Context, window models.BookingWindow) (*pricing.Quote, error) {
	if err := d.controller.ValidateWindow(&window); err != nil {
		return nil, err
	}

	var quote pricing.Quote
	err := d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		offer, err := tx.GetEquipment(ctx, window.EquipmentID)
		if err != nil {
			return err
		}
		category, err := tx.GetCategory(ctx, offer.CategoryID)
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, window.CustomerID)
		if err != nil {
			return err
		}
		quote = d.pricing.Quote(offer, category, customer, window.StartDate, window.EndDate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// Availability returns a day-by-day calendar for one unit.
func (d *RentalDesk) Availability(ctx context.Context, equipmentID int64, start time.Time, days int) ([]availability.Day, error) {
	if days < 1 || days > MaxCalendarDays {
		return nil, fmt.Errorf("%w: calendar length must be between 1 and %d days", domain.ErrInvalidWindow, MaxCalendarDays)
	}

	var out []availability.Day
	err := d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.GetEquipment(ctx, equipmentID); err != nil {
			return err
		}
		rentals, err := tx.ActiveRentalsByEquipment(ctx, equipmentID)
		if err != nil {
			return err
		}
		reservations, err := tx.ActiveReservationsByEquipment(ctx, equipmentID)
		if err != nil {
			return err
		}
		out = availability.Calendar(equipmentID, start, days, rentals, reservations)
		return nil
	})
	return out, err
}

// Reserve books a PENDING reservation for the window.
func (d *RentalDesk) Reserve(ctx context.Context, window models.BookingWindow) (res *models.Reservation, err error) {
	defer func() { d.finish("reserve", err) }()

	unlock, err := d.lock(ctx, lock.EquipmentKey(window.EquipmentID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		offer, err := tx.GetEquipment(ctx, window.EquipmentID)
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, window.CustomerID)
		if err != nil {
			return err
		}
		rentals, err := tx.ActiveRentalsByEquipment(ctx, window.EquipmentID)
		if err != nil {
			return err
		}
		reservations, err := tx.ActiveReservationsByEquipment(ctx, window.EquipmentID)
		if err != nil {
			return err
		}

		res, err = d.controller.CreateReservation(window, customer, offer, rentals, reservations)
		if err != nil {
			return err
		}
		return tx.CreateReservation(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info().Str("code", res.Code).Int64("equipment_id", res.EquipmentID).Int64("customer_id", res.CustomerID).Msg("Reservation created")
	d.publish(events.EventReservationCreated, reservationPayload(res))
	return res, nil
}

// RentNow opens a walk-in rental without a prior reservation.
func (d *RentalDesk) RentNow(ctx context.Context, window models.BookingWindow) (rental *models.Rental, err error) {
	defer func() { d.finish("rent", err) }()

	unlock, err := d.lock(ctx, lock.EquipmentKey(window.EquipmentID), lock.CustomerKey(window.CustomerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		offer, err := tx.GetEquipment(ctx, window.EquipmentID)
		if err != nil {
			return err
		}
		category, err := tx.GetCategory(ctx, offer.CategoryID)
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, window.CustomerID)
		if err != nil {
			return err
		}
		rentals, err := tx.ActiveRentalsByEquipment(ctx, window.EquipmentID)
		if err != nil {
			return err
		}
		reservations, err := tx.ActiveReservationsByEquipment(ctx, window.EquipmentID)
		if err != nil {
			return err
		}
		customerRentals, err := tx.ActiveRentalsByCustomer(ctx, window.CustomerID)
		if err != nil {
			return err
		}

		rental, err = d.controller.CreateRental(window, customer, offer, category, rentals, reservations, customerRentals)
		if err != nil {
			return err
		}
		return tx.CreateRental(ctx, rental)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info().Str("code", rental.Code).Str("final_payable", rental.FinalPayable.StringFixed(2)).Msg("Rental created")
	d.publish(events.EventRentalCreated, rentalPayload(rental))
	return rental, nil
}

func (d *RentalDesk) findReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	var res *models.Reservation
	err := d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		res, err = tx.GetReservation(ctx, id)
		return err
	})
	return res, err
}

func (d *RentalDesk) findRental(ctx context.Context, id int64) (*models.Rental, error) {
	var rental *models.Rental
	err := d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		rental, err = tx.GetRental(ctx, id)
		return err
	})
	return rental, err
}

// Reservation returns a stored reservation.
func (d *RentalDesk) Reservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return d.findReservation(ctx, id)
}

// Rental returns a stored rental with OVERDUE projected onto its status.
func (d *RentalDesk) Rental(ctx context.Context, id int64) (*models.Rental, error) {
	rental, err := d.findRental(ctx, id)
	if err != nil {
		return nil, err
	}
	rental.Status = rental.EffectiveStatus(d.today())
	return rental, nil
}

// ConvertReservation opens the rental for a PENDING reservation and confirms it.
func (d *RentalDesk) ConvertReservation(ctx context.Context, reservationID int64) (conv *Conversion, err error) {
	defer func() { d.finish("convert", err) }()

	// equipment and customer never change on a reservation, so the keys can
	// be taken from a read before locking
	found, err := d.findReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	unlock, err := d.lock(ctx, lock.EquipmentKey(found.EquipmentID), lock.CustomerKey(found.CustomerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		res, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		offer, err := tx.GetEquipment(ctx, res.EquipmentID)
		if err != nil {
			return err
		}
		category, err := tx.GetCategory(ctx, offer.CategoryID)
		if err != nil {
			return err
		}
		customer, err := tx.GetCustomer(ctx, res.CustomerID)
		if err != nil {
			return err
		}
		customerRentals, err := tx.ActiveRentalsByCustomer(ctx, res.CustomerID)
		if err != nil {
			return err
		}

		conv, err = d.controller.ConvertToRental(res, offer, category, customer, customerRentals)
		if err != nil {
			return err
		}
		if err := tx.CreateRental(ctx, conv.Rental); err != nil {
			return err
		}
		return tx.UpdateReservationStatus(ctx, res.ID, conv.Reservation.Status)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info().
		Str("reservation", conv.Reservation.Code).
		Str("rental", conv.Rental.Code).
		Str("final_payable", conv.Rental.FinalPayable.StringFixed(2)).
		Msg("Reservation converted")
	d.publish(events.EventRentalCreated, rentalPayload(conv.Rental))
	return conv, nil
}

// CancelReservation cancels a PENDING or CONFIRMED reservation together with
// the rental opened from it, if any.
func (d *RentalDesk) CancelReservation(ctx context.Context, reservationID int64) (out *Cancellation, err error) {
	defer func() { d.finish("cancel_reservation", err) }()

	found, err := d.findReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	unlock, err := d.lock(ctx, lock.EquipmentKey(found.EquipmentID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		res, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		var linked *models.Rental
		if res.Status == models.ReservationConfirmed {
			if linked, err = tx.GetRentalByReservation(ctx, res.ID); err != nil {
				return err
			}
		}

		out, err = d.controller.CancelReservation(res, linked)
		if err != nil {
			return err
		}
		if out.RentalCancellationRequired {
			d.logger.Warn().Str("reservation", res.Code).Msg("Confirmed reservation has no rental")
		}
		if err := tx.UpdateReservationStatus(ctx, res.ID, out.Reservation.Status); err != nil {
			return err
		}
		if out.Rental != nil {
			return tx.UpdateRentalStatus(ctx, out.Rental.ID, out.Rental.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info().Str("code", out.Reservation.Code).Bool("rental_cancelled", out.Rental != nil).Msg("Reservation cancelled")
	d.publish(events.EventReservationCancelled, reservationPayload(out.Reservation))
	if out.Rental != nil {
		d.publish(events.EventRentalCancelled, rentalPayload(out.Rental))
	}
	return out, nil
}

// CancelRental cancels an ACTIVE or OVERDUE rental. No charges are settled.
func (d *RentalDesk) CancelRental(ctx context.Context, rentalID int64) (rental *models.Rental, err error) {
	defer func() { d.finish("cancel_rental", err) }()

	found, err := d.findRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	unlock, err := d.lock(ctx, lock.EquipmentKey(found.EquipmentID), lock.CustomerKey(found.CustomerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := tx.GetRental(ctx, rentalID)
		if err != nil {
			return err
		}
		rental, err = d.controller.CancelRental(current)
		if err != nil {
			return err
		}
		return tx.UpdateRentalStatus(ctx, rental.ID, rental.Status)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info().Str("code", rental.Code).Msg("Rental cancelled")
	d.publish(events.EventRentalCancelled, rentalPayload(rental))
	return rental, nil
}

// ReturnRequest describes equipment coming back to the desk.
type ReturnRequest struct {
	ActualReturnDate  time.Time
	DamageDescription string
	DamageCharge      decimal.Decimal
	// LateFeeRate overrides the category's default per-day late fee when set.
	LateFeeRate *decimal.Decimal
}

// ProcessReturn settles the rental and marks it RETURNED in one transaction.
func (d *RentalDesk) ProcessReturn(ctx context.Context, rentalID int64, req ReturnRequest) (result *ReturnResult, err error) {
	defer func() { d.finish("return", err) }()

	found, err := d.findRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	unlock, err := d.lock(ctx, lock.EquipmentKey(found.EquipmentID), lock.CustomerKey(found.CustomerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		rental, err := tx.GetRental(ctx, rentalID)
		if err != nil {
			return err
		}
		var rate decimal.Decimal
		if req.LateFeeRate != nil {
			rate = *req.LateFeeRate
		} else {
			offer, err := tx.GetEquipment(ctx, rental.EquipmentID)
			if err != nil {
				return err
			}
			category, err := tx.GetCategory(ctx, offer.CategoryID)
			if err != nil {
				return err
			}
			rate = category.DefaultLateFee
		}

		result, err = d.settler.SettleReturn(rental, req.ActualReturnDate, req.DamageDescription, req.DamageCharge, rate)
		if err != nil {
			return err
		}
		return tx.CompleteReturn(ctx, result.Rental, result.Settlement)
	})
	if err != nil {
		return nil, err
	}

	s := result.Settlement
	d.logger.Info().
		Str("code", result.Rental.Code).
		Str("total_charges", s.TotalCharges.StringFixed(2)).
		Str("refund", s.RefundAmount.StringFixed(2)).
		Str("additional_payment", s.AdditionalPaymentRequired.StringFixed(2)).
		Msg("Rental returned")
	d.publish(events.EventRentalReturned, events.ReturnEventPayload{
		RentalID:          result.Rental.ID,
		Code:              result.Rental.Code,
		EquipmentID:       result.Rental.EquipmentID,
		CustomerID:        result.Rental.CustomerID,
		ReturnDate:        s.ReturnDate,
		TotalCharges:      events.Money(s.TotalCharges),
		RefundAmount:      events.Money(s.RefundAmount),
		AdditionalPayment: events.Money(s.AdditionalPaymentRequired),
	})
	return result, nil
}

// OverdueRentals lists ACTIVE rentals past their end date, reported as OVERDUE.
func (d *RentalDesk) OverdueRentals(ctx context.Context) ([]*models.Rental, error) {
	today := d.today()

	var rentals []*models.Rental
	err := d.transact(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		rentals, err = tx.OverdueRentals(ctx, today)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rentals {
		r.Status = r.EffectiveStatus(today)
	}
	return rentals, nil
}

// SetMembershipDiscount changes the discount of one tier for future quotes.
// Existing rentals keep their pricing snapshot.
func (d *RentalDesk) SetMembershipDiscount(tier models.MembershipTier, pct decimal.Decimal) (err error) {
	defer func() { d.finish("set_discount", err) }()

	if err := d.pricing.SetMembershipDiscount(tier, pct); err != nil {
		return err
	}
	d.logger.Info().Str("tier", string(tier)).Str("percent", pct.String()).Msg("Membership discount updated")
	return nil
}

// PricingConfig returns the pricing configuration in effect.
func (d *RentalDesk) PricingConfig() pricing.Config {
	return d.pricing.Config()
}
