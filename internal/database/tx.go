package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gearrent/internal/calendar"
	"gearrent/internal/domain"
	"gearrent/internal/models"

	"github.com/mattn/go-sqlite3"
)

type sqlTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const reservationColumns = `id, code, equipment_id, customer_id, branch_id, start_date, end_date, status, created_at`

const rentalColumns = `id, code, equipment_id, customer_id, branch_id, reservation_id, start_date, end_date,
	actual_return_date, daily_rate, rental_amount, long_rental_discount, membership_discount,
	final_payable, security_deposit, status, payment_status, created_at`

func notFound(kind string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %d: %w", kind, id, err)
}

func parseDays(start, end string) (time.Time, time.Time, error) {
	s, err := calendar.Parse(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := calendar.Parse(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return s, e, nil
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var start, end string
	if err := row.Scan(&r.ID, &r.Code, &r.EquipmentID, &r.CustomerID, &r.BranchID, &start, &end, &r.Status, &r.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if r.StartDate, r.EndDate, err = parseDays(start, end); err != nil {
		return nil, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	return &r, nil
}

func scanRental(row rowScanner) (*models.Rental, error) {
	var r models.Rental
	var start, end string
	var reservationID sql.NullInt64
	var returned sql.NullString
	err := row.Scan(&r.ID, &r.Code, &r.EquipmentID, &r.CustomerID, &r.BranchID, &reservationID, &start, &end,
		&returned, &r.DailyRate, &r.RentalAmount, &r.LongRentalDiscount, &r.MembershipDiscount,
		&r.FinalPayable, &r.SecurityDeposit, &r.Status, &r.PaymentStatus, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if r.StartDate, r.EndDate, err = parseDays(start, end); err != nil {
		return nil, fmt.Errorf("rental %d: %w", r.ID, err)
	}
	if reservationID.Valid {
		id := reservationID.Int64
		r.ReservationID = &id
	}
	if returned.Valid {
		d, err := calendar.Parse(returned.String)
		if err != nil {
			return nil, fmt.Errorf("rental %d: %w", r.ID, err)
		}
		r.ActualReturnDate = &d
	}
	return &r, nil
}

func (t *sqlTx) queryRentals(ctx context.Context, where string, args ...interface{}) ([]*models.Rental, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rentals: %w", err)
	}
	defer rows.Close()

	var out []*models.Rental
	for rows.Next() {
		r, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rental: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqlTx) GetEquipment(ctx context.Context, id int64) (*models.EquipmentOffer, error) {
	var e models.EquipmentOffer
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, code, name, branch_id, category_id, daily_base_price, security_deposit, status
		FROM equipment WHERE id = ?`, id).
		Scan(&e.ID, &e.Code, &e.Name, &e.BranchID, &e.CategoryID, &e.DailyBasePrice, &e.SecurityDeposit, &e.Status)
	if err != nil {
		return nil, notFound("equipment", id, err)
	}
	return &e, nil
}

func (t *sqlTx) GetCategory(ctx context.Context, id int64) (*models.CategoryPricing, error) {
	var c models.CategoryPricing
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, base_price_factor, weekend_factor, default_late_fee
		FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.BasePriceFactor, &c.WeekendFactor, &c.DefaultLateFee)
	if err != nil {
		return nil, notFound("category", id, err)
	}
	return &c, nil
}

func (t *sqlTx) GetCustomer(ctx context.Context, id int64) (*models.CustomerProfile, error) {
	var c models.CustomerProfile
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, code, name, tier, deposit_limit
		FROM customers WHERE id = ?`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Tier, &c.DepositLimit)
	if err != nil {
		return nil, notFound("customer", id, err)
	}
	return &c, nil
}

func (t *sqlTx) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if err != nil {
		return nil, notFound("reservation", id, err)
	}
	return r, nil
}

func (t *sqlTx) GetRental(ctx context.Context, id int64) (*models.Rental, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE id = ?`, id)
	r, err := scanRental(row)
	if err != nil {
		return nil, notFound("rental", id, err)
	}
	return r, nil
}

func (t *sqlTx) GetRentalByReservation(ctx context.Context, reservationID int64) (*models.Rental, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+rentalColumns+` FROM rentals WHERE reservation_id = ? ORDER BY id DESC LIMIT 1`, reservationID)
	r, err := scanRental(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rental of reservation %d: %w", reservationID, err)
	}
	return r, nil
}

func (t *sqlTx) ActiveRentalsByEquipment(ctx context.Context, equipmentID int64) ([]*models.Rental, error) {
	return t.queryRentals(ctx, `equipment_id = ? AND status IN (?, ?)`,
		equipmentID, models.RentalActive, models.RentalOverdue)
}

func (t *sqlTx) ActiveRentalsByCustomer(ctx context.Context, customerID int64) ([]*models.Rental, error) {
	return t.queryRentals(ctx, `customer_id = ? AND status IN (?, ?)`,
		customerID, models.RentalActive, models.RentalOverdue)
}

// OverdueRentals compares ISO dates as text, which orders them chronologically.
func (t *sqlTx) OverdueRentals(ctx context.Context, today time.Time) ([]*models.Rental, error) {
	return t.queryRentals(ctx, `status = ? AND end_date < ?`,
		models.RentalActive, calendar.Day(today).Format(calendar.Layout))
}

func (t *sqlTx) ActiveReservationsByEquipment(ctx context.Context, equipmentID int64) ([]*models.Reservation, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE equipment_id = ? AND status IN (?, ?) ORDER BY id`,
		equipmentID, models.ReservationPending, models.ReservationConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqlTx) CreateReservation(ctx context.Context, r *models.Reservation) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations (code, equipment_id, customer_id, branch_id, start_date, end_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Code, r.EquipmentID, r.CustomerID, r.BranchID,
		r.StartDate.Format(calendar.Layout), r.EndDate.Format(calendar.Layout),
		r.Status, r.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	return nil
}

func (t *sqlTx) update(ctx context.Context, kind, query string, args ...interface{}) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %v: %w", kind, args[len(args)-1], domain.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) UpdateReservationStatus(ctx context.Context, id int64, status models.ReservationStatus) error {
	return t.update(ctx, "reservation",
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
}

func (t *sqlTx) CreateRental(ctx context.Context, r *models.Rental) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	var reservationID sql.NullInt64
	if r.ReservationID != nil {
		reservationID = sql.NullInt64{Int64: *r.ReservationID, Valid: true}
	}
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO rentals (
			code, equipment_id, customer_id, branch_id, reservation_id, start_date, end_date,
			daily_rate, rental_amount, long_rental_discount, membership_discount, final_payable,
			security_deposit, status, payment_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Code, r.EquipmentID, r.CustomerID, r.BranchID, reservationID,
		r.StartDate.Format(calendar.Layout), r.EndDate.Format(calendar.Layout),
		r.DailyRate, r.RentalAmount, r.LongRentalDiscount, r.MembershipDiscount, r.FinalPayable,
		r.SecurityDeposit, r.Status, r.PaymentStatus, r.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to create rental: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	return nil
}

func (t *sqlTx) UpdateRentalStatus(ctx context.Context, id int64, status models.RentalStatus) error {
	return t.update(ctx, "rental",
		`UPDATE rentals SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
}

func (t *sqlTx) CompleteReturn(ctx context.Context, rental *models.Rental, s *models.ReturnSettlement) error {
	var returned sql.NullString
	if rental.ActualReturnDate != nil {
		returned = sql.NullString{String: rental.ActualReturnDate.Format(calendar.Layout), Valid: true}
	}
	if err := t.update(ctx, "rental",
		`UPDATE rentals SET status = ?, actual_return_date = ?, payment_status = ?, updated_at = ? WHERE id = ?`,
		rental.Status, returned, rental.PaymentStatus, time.Now().UTC(), rental.ID); err != nil {
		return err
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO return_settlements (
			rental_id, return_date, damage_description, damage_charge, late_fee,
			total_charges, refund_amount, additional_payment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RentalID, s.ReturnDate.Format(calendar.Layout), s.DamageDescription, s.DamageCharge, s.LateFee,
		s.TotalCharges, s.RefundAmount, s.AdditionalPaymentRequired, time.Now().UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("rental %d already settled: %w", s.RentalID, domain.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	return nil
}
