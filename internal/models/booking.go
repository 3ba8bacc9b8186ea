package models

import "time"

// BookingWindow is one equipment unit held for one customer over [StartDate, EndDate].
type BookingWindow struct {
	EquipmentID int64     `json:"equipment_id"`
	CustomerID  int64     `json:"customer_id"`
	BranchID    int64     `json:"branch_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

type Reservation struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	BookingWindow
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// BlocksAvailability reports whether the reservation still holds its window.
func (r Reservation) BlocksAvailability() bool {
	return r.Status == ReservationPending || r.Status == ReservationConfirmed
}
