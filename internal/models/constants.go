package models

type EquipmentStatus string

const (
	EquipmentAvailable        EquipmentStatus = "AVAILABLE"
	EquipmentReserved         EquipmentStatus = "RESERVED"
	EquipmentRented           EquipmentStatus = "RENTED"
	EquipmentUnderMaintenance EquipmentStatus = "UNDER_MAINTENANCE"
)

type MembershipTier string

const (
	TierRegular MembershipTier = "REGULAR"
	TierSilver  MembershipTier = "SILVER"
	TierGold    MembershipTier = "GOLD"
)

// Tiers lists membership tiers ordered by increasing discount.
var Tiers = []MembershipTier{TierRegular, TierSilver, TierGold}

func (t MembershipTier) Valid() bool {
	switch t {
	case TierRegular, TierSilver, TierGold:
		return true
	}
	return false
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

type RentalStatus string

const (
	RentalActive    RentalStatus = "ACTIVE"
	RentalOverdue   RentalStatus = "OVERDUE" // derived on read, never stored
	RentalReturned  RentalStatus = "RETURNED"
	RentalCancelled RentalStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
)

const (
	// DefaultMaxBookingDays is the longest inclusive span of one booking.
	DefaultMaxBookingDays = 30

	// DefaultLongRentalMinDays is the span from which the long-rental discount applies.
	DefaultLongRentalMinDays = 7

	// DefaultLongRentalPercent is the long-rental discount in percent.
	DefaultLongRentalPercent = 10

	ReservationCodePrefix = "RES-"
	RentalCodePrefix      = "RENT-"
)
