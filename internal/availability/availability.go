// Package availability decides whether an equipment unit is free for a date range.
// Only bookings decide: the cached equipment status is never read.
package availability

import (
	"time"

	"gearrent/internal/calendar"
	"gearrent/internal/models"
)

// Conflict is a booking that blocks a requested range.
type Conflict struct {
	Kind      string    `json:"kind"` // "rental" or "reservation"
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

const (
	KindRental      = "rental"
	KindReservation = "reservation"
)

// Conflicts lists the bookings of equipmentID that overlap [start, end].
// Active and overdue rentals block, as do pending and confirmed reservations.
func Conflicts(equipmentID int64, start, end time.Time, rentals []*models.Rental, reservations []*models.Reservation) []Conflict {
	var out []Conflict
	for _, r := range rentals {
		if r.EquipmentID != equipmentID || !r.HoldsEquipment() {
			continue
		}
		if calendar.RangesOverlap(start, end, r.StartDate, r.EndDate) {
			out = append(out, Conflict{Kind: KindRental, ID: r.ID, Code: r.Code, StartDate: r.StartDate, EndDate: r.EndDate})
		}
	}
	for _, r := range reservations {
		if r.EquipmentID != equipmentID || !r.BlocksAvailability() {
			continue
		}
		if calendar.RangesOverlap(start, end, r.StartDate, r.EndDate) {
			out = append(out, Conflict{Kind: KindReservation, ID: r.ID, Code: r.Code, StartDate: r.StartDate, EndDate: r.EndDate})
		}
	}
	return out
}

func IsAvailable(equipmentID int64, start, end time.Time, rentals []*models.Rental, reservations []*models.Reservation) bool {
	return len(Conflicts(equipmentID, start, end, rentals, reservations)) == 0
}

// Day is the booking state of one calendar day.
type Day struct {
	Date      time.Time `json:"date"`
	Available bool      `json:"available"`
	BookedBy  string    `json:"booked_by,omitempty"`
}

// Calendar returns days consecutive day flags for equipmentID starting at start.
func Calendar(equipmentID int64, start time.Time, days int, rentals []*models.Rental, reservations []*models.Reservation) []Day {
	if days <= 0 {
		return nil
	}
	end := calendar.Day(start).AddDate(0, 0, days-1)
	conflicts := Conflicts(equipmentID, start, end, rentals, reservations)

	out := make([]Day, 0, days)
	calendar.EachDay(start, end, func(d time.Time) {
		day := Day{Date: d, Available: true}
		for _, c := range conflicts {
			if calendar.RangesOverlap(d, d, c.StartDate, c.EndDate) {
				day.Available = false
				day.BookedBy = c.Code
				break
			}
		}
		out = append(out, day)
	})
	return out
}
