package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gearrent/internal/config"
	"gearrent/internal/domain"
	"gearrent/internal/models"
)

// MemoryStore is an in-process domain.Store. Each unit of work runs on a
// private copy of the data which replaces the shared copy only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	categories   map[int64]models.CategoryPricing
	equipment    map[int64]models.EquipmentOffer
	customers    map[int64]models.CustomerProfile
	reservations map[int64]models.Reservation
	rentals      map[int64]models.Rental
	settlements  map[int64]models.ReturnSettlement
	lastID       int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		categories:   make(map[int64]models.CategoryPricing),
		equipment:    make(map[int64]models.EquipmentOffer),
		customers:    make(map[int64]models.CustomerProfile),
		reservations: make(map[int64]models.Reservation),
		rentals:      make(map[int64]models.Rental),
		settlements:  make(map[int64]models.ReturnSettlement),
	}}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		categories:   cloneMap(s.categories),
		equipment:    cloneMap(s.equipment),
		customers:    cloneMap(s.customers),
		reservations: cloneMap(s.reservations),
		rentals:      cloneMap(s.rentals),
		settlements:  cloneMap(s.settlements),
		lastID:       s.lastID,
	}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{st: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// SeedCatalog loads reference data, replacing entries with the same ID.
func (s *MemoryStore) SeedCatalog(ctx context.Context, catalog *config.Catalog) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		st := tx.(*memTx).st
		for _, c := range catalog.Categories {
			st.categories[c.ID] = c
		}
		for _, e := range catalog.Equipment {
			if _, ok := st.categories[e.CategoryID]; !ok {
				return fmt.Errorf("equipment %d: category %d: %w", e.ID, e.CategoryID, domain.ErrNotFound)
			}
			st.equipment[e.ID] = e
		}
		for _, c := range catalog.Customers {
			st.customers[c.ID] = c
		}
		return nil
	})
}

type memTx struct {
	st *memState
}

func copyRental(r models.Rental) *models.Rental {
	if r.ReservationID != nil {
		id := *r.ReservationID
		r.ReservationID = &id
	}
	if r.ActualReturnDate != nil {
		d := *r.ActualReturnDate
		r.ActualReturnDate = &d
	}
	return &r
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, domain.ErrNotFound)
}

func (t *memTx) nextID() int64 {
	t.st.lastID++
	return t.st.lastID
}

func (t *memTx) GetEquipment(_ context.Context, id int64) (*models.EquipmentOffer, error) {
	e, ok := t.st.equipment[id]
	if !ok {
		return nil, notFound("equipment", id)
	}
	return &e, nil
}

func (t *memTx) GetCategory(_ context.Context, id int64) (*models.CategoryPricing, error) {
	c, ok := t.st.categories[id]
	if !ok {
		return nil, notFound("category", id)
	}
	return &c, nil
}

func (t *memTx) GetCustomer(_ context.Context, id int64) (*models.CustomerProfile, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return nil, notFound("customer", id)
	}
	return &c, nil
}

func (t *memTx) GetReservation(_ context.Context, id int64) (*models.Reservation, error) {
	r, ok := t.st.reservations[id]
	if !ok {
		return nil, notFound("reservation", id)
	}
	return &r, nil
}

func (t *memTx) GetRental(_ context.Context, id int64) (*models.Rental, error) {
	r, ok := t.st.rentals[id]
	if !ok {
		return nil, notFound("rental", id)
	}
	return copyRental(r), nil
}

func (t *memTx) GetRentalByReservation(_ context.Context, reservationID int64) (*models.Rental, error) {
	var found *models.Rental
	for _, r := range t.st.rentals {
		if r.ReservationID != nil && *r.ReservationID == reservationID {
			if found == nil || r.ID > found.ID {
				found = copyRental(r)
			}
		}
	}
	return found, nil
}

func (t *memTx) rentalsWhere(match func(models.Rental) bool) []*models.Rental {
	var out []*models.Rental
	for _, r := range t.st.rentals {
		if match(r) {
			out = append(out, copyRental(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) ActiveRentalsByEquipment(_ context.Context, equipmentID int64) ([]*models.Rental, error) {
	return t.rentalsWhere(func(r models.Rental) bool {
		return r.EquipmentID == equipmentID && r.HoldsEquipment()
	}), nil
}

func (t *memTx) ActiveRentalsByCustomer(_ context.Context, customerID int64) ([]*models.Rental, error) {
	return t.rentalsWhere(func(r models.Rental) bool {
		return r.CustomerID == customerID && r.HoldsEquipment()
	}), nil
}

func (t *memTx) OverdueRentals(_ context.Context, today time.Time) ([]*models.Rental, error) {
	return t.rentalsWhere(func(r models.Rental) bool {
		return r.IsOverdue(today)
	}), nil
}

func (t *memTx) ActiveReservationsByEquipment(_ context.Context, equipmentID int64) ([]*models.Reservation, error) {
	var out []*models.Reservation
	for _, r := range t.st.reservations {
		if r.EquipmentID == equipmentID && r.BlocksAvailability() {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateReservation(_ context.Context, r *models.Reservation) error {
	r.ID = t.nextID()
	t.st.reservations[r.ID] = *r
	return nil
}

func (t *memTx) UpdateReservationStatus(_ context.Context, id int64, status models.ReservationStatus) error {
	r, ok := t.st.reservations[id]
	if !ok {
		return notFound("reservation", id)
	}
	r.Status = status
	t.st.reservations[id] = r
	return nil
}

func (t *memTx) CreateRental(_ context.Context, r *models.Rental) error {
	r.ID = t.nextID()
	t.st.rentals[r.ID] = *copyRental(*r)
	return nil
}

func (t *memTx) UpdateRentalStatus(_ context.Context, id int64, status models.RentalStatus) error {
	r, ok := t.st.rentals[id]
	if !ok {
		return notFound("rental", id)
	}
	r.Status = status
	t.st.rentals[id] = r
	return nil
}

func (t *memTx) CompleteReturn(_ context.Context, rental *models.Rental, settlement *models.ReturnSettlement) error {
	if _, ok := t.st.rentals[rental.ID]; !ok {
		return notFound("rental", rental.ID)
	}
	if _, ok := t.st.settlements[rental.ID]; ok {
		return fmt.Errorf("rental %d already settled: %w", rental.ID, domain.ErrConcurrentModification)
	}
	t.st.rentals[rental.ID] = *copyRental(*rental)
	settlement.ID = t.nextID()
	t.st.settlements[rental.ID] = *settlement
	return nil
}

// Settlement returns the stored settlement of a rental.
func (s *MemoryStore) Settlement(rentalID int64) (*models.ReturnSettlement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.settlements[rentalID]
	return &st, ok
}
