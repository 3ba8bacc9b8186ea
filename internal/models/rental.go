package models

import (
	"time"

	"gearrent/internal/calendar"

	"github.com/shopspring/decimal"
)

type Rental struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	BookingWindow
	ReservationID    *int64     `json:"reservation_id,omitempty"`
	ActualReturnDate *time.Time `json:"actual_return_date,omitempty"`

	// Pricing snapshot taken when the rental was created.
	DailyRate          decimal.Decimal `json:"daily_rate"`
	RentalAmount       decimal.Decimal `json:"rental_amount"`
	LongRentalDiscount decimal.Decimal `json:"long_rental_discount"`
	MembershipDiscount decimal.Decimal `json:"membership_discount"`
	FinalPayable       decimal.Decimal `json:"final_payable"`
	SecurityDeposit    decimal.Decimal `json:"security_deposit"`

	Status        RentalStatus  `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// HoldsEquipment reports whether the rental still occupies its unit.
func (r Rental) HoldsEquipment() bool {
	return r.Status == RentalActive || r.Status == RentalOverdue
}

// IsOverdue is the read-time view of an active rental past its end date.
func (r Rental) IsOverdue(today time.Time) bool {
	return r.Status == RentalActive && calendar.Day(today).After(calendar.Day(r.EndDate))
}

// EffectiveStatus returns the stored status with OVERDUE projected on top.
func (r Rental) EffectiveStatus(today time.Time) RentalStatus {
	if r.IsOverdue(today) {
		return RentalOverdue
	}
	return r.Status
}
