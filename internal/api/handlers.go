package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gearrent/internal/availability"
	"gearrent/internal/calendar"
	"gearrent/internal/domain"
	"gearrent/internal/models"
	"gearrent/internal/pricing"
	"gearrent/internal/service"

	"github.com/shopspring/decimal"
)

const defaultCalendarDays = 14

type windowRequest struct {
	EquipmentID int64  `json:"equipment_id"`
	CustomerID  int64  `json:"customer_id"`
	BranchID    int64  `json:"branch_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

func (req windowRequest) window() (models.BookingWindow, error) {
	if req.EquipmentID <= 0 || req.CustomerID <= 0 {
		return models.BookingWindow{}, fmt.Errorf("equipment_id and customer_id are required")
	}
	start, err := calendar.Parse(req.StartDate)
	if err != nil {
		return models.BookingWindow{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := calendar.Parse(req.EndDate)
	if err != nil {
		return models.BookingWindow{}, fmt.Errorf("end_date: %w", err)
	}
	return models.BookingWindow{
		EquipmentID: req.EquipmentID,
		CustomerID:  req.CustomerID,
		BranchID:    req.BranchID,
		StartDate:   start,
		EndDate:     end,
	}, nil
}

type returnRequest struct {
	ActualReturnDate  string           `json:"actual_return_date"`
	DamageDescription string           `json:"damage_description"`
	DamageCharge      decimal.Decimal  `json:"damage_charge"`
	LateFeeRate       *decimal.Decimal `json:"late_fee_rate"`
}

type discountRequest struct {
	Percent *decimal.Decimal `json:"percent"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func day(t time.Time) string {
	return t.Format(calendar.Layout)
}

type reservationResponse struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	EquipmentID int64  `json:"equipment_id"`
	CustomerID  int64  `json:"customer_id"`
	BranchID    int64  `json:"branch_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Status      string `json:"status"`
}

func toReservation(r *models.Reservation) reservationResponse {
	return reservationResponse{
		ID:          r.ID,
		Code:        r.Code,
		EquipmentID: r.EquipmentID,
		CustomerID:  r.CustomerID,
		BranchID:    r.BranchID,
		StartDate:   day(r.StartDate),
		EndDate:     day(r.EndDate),
		Status:      string(r.Status),
	}
}

type rentalResponse struct {
	ID                 int64  `json:"id"`
	Code               string `json:"code"`
	ReservationID      *int64 `json:"reservation_id,omitempty"`
	EquipmentID        int64  `json:"equipment_id"`
	CustomerID         int64  `json:"customer_id"`
	BranchID           int64  `json:"branch_id"`
	StartDate          string `json:"start_date"`
	EndDate            string `json:"end_date"`
	ActualReturnDate   string `json:"actual_return_date,omitempty"`
	DailyRate          string `json:"daily_rate"`
	RentalAmount       string `json:"rental_amount"`
	LongRentalDiscount string `json:"long_rental_discount"`
	MembershipDiscount string `json:"membership_discount"`
	FinalPayable       string `json:"final_payable"`
	SecurityDeposit    string `json:"security_deposit"`
	Status             string `json:"status"`
	PaymentStatus      string `json:"payment_status"`
}

func toRental(r *models.Rental) rentalResponse {
	out := rentalResponse{
		ID:                 r.ID,
		Code:               r.Code,
		ReservationID:      r.ReservationID,
		EquipmentID:        r.EquipmentID,
		CustomerID:         r.CustomerID,
		BranchID:           r.BranchID,
		StartDate:          day(r.StartDate),
		EndDate:            day(r.EndDate),
		DailyRate:          money(r.DailyRate),
		RentalAmount:       money(r.RentalAmount),
		LongRentalDiscount: money(r.LongRentalDiscount),
		MembershipDiscount: money(r.MembershipDiscount),
		FinalPayable:       money(r.FinalPayable),
		SecurityDeposit:    money(r.SecurityDeposit),
		Status:             string(r.Status),
		PaymentStatus:      string(r.PaymentStatus),
	}
	if r.ActualReturnDate != nil {
		out.ActualReturnDate = day(*r.ActualReturnDate)
	}
	return out
}

type lineResponse struct {
	Date    string `json:"date"`
	Weekend bool   `json:"weekend"`
	Rate    string `json:"rate"`
}

type quoteResponse struct {
	Days               int            `json:"days"`
	DailyRate          string         `json:"daily_rate"`
	RentalAmount       string         `json:"rental_amount"`
	LongRentalDiscount string         `json:"long_rental_discount"`
	MembershipDiscount string         `json:"membership_discount"`
	FinalPayable       string         `json:"final_payable"`
	SecurityDeposit    string         `json:"security_deposit"`
	Lines              []lineResponse `json:"lines"`
}

func toQuote(q *pricing.Quote) quoteResponse {
	lines := make([]lineResponse, 0, len(q.Lines))
	for _, l := range q.Lines {
		lines = append(lines, lineResponse{Date: day(l.Date), Weekend: l.Weekend, Rate: money(l.Rate)})
	}
	return quoteResponse{
		Days:               q.Days,
		DailyRate:          money(q.DailyRate),
		RentalAmount:       money(q.RentalAmount),
		LongRentalDiscount: money(q.LongRentalDiscount),
		MembershipDiscount: money(q.MembershipDiscount),
		FinalPayable:       money(q.FinalPayable),
		SecurityDeposit:    money(q.SecurityDeposit),
		Lines:              lines,
	}
}

type dayResponse struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
	BookedBy  string `json:"booked_by,omitempty"`
}

func toDays(days []availability.Day) []dayResponse {
	out := make([]dayResponse, 0, len(days))
	for _, d := range days {
		out = append(out, dayResponse{Date: day(d.Date), Available: d.Available, BookedBy: d.BookedBy})
	}
	return out
}

type settlementResponse struct {
	RentalID                  int64  `json:"rental_id"`
	ReturnDate                string `json:"return_date"`
	DamageDescription         string `json:"damage_description,omitempty"`
	DamageCharge              string `json:"damage_charge"`
	LateFee                   string `json:"late_fee"`
	TotalCharges              string `json:"total_charges"`
	RefundAmount              string `json:"refund_amount"`
	AdditionalPaymentRequired string `json:"additional_payment_required"`
}

func toSettlement(s *models.ReturnSettlement) settlementResponse {
	return settlementResponse{
		RentalID:                  s.RentalID,
		ReturnDate:                day(s.ReturnDate),
		DamageDescription:         s.DamageDescription,
		DamageCharge:              money(s.DamageCharge),
		LateFee:                   money(s.LateFee),
		TotalCharges:              money(s.TotalCharges),
		RefundAmount:              money(s.RefundAmount),
		AdditionalPaymentRequired: money(s.AdditionalPaymentRequired),
	}
}

// statusFor maps booking errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEquipmentUnavailable),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrDepositLimitExceeded),
		errors.Is(err, domain.ErrInvalidReturnDate),
		errors.Is(err, domain.ErrInvalidCharge),
		errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func readWindow(w http.ResponseWriter, r *http.Request) (models.BookingWindow, bool) {
	var req windowRequest
	if !decodeBody(w, r, &req) {
		return models.BookingWindow{}, false
	}
	window, err := req.window()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return models.BookingWindow{}, false
	}
	return window, true
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	from, err := calendar.Parse(strings.TrimSpace(query.Get("from")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	days := defaultCalendarDays
	if raw := strings.TrimSpace(query.Get("days")); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
	}

	out, err := s.desk.Availability(r.Context(), id, from, days)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"equipment_id": id, "days": toDays(out)})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	window, ok := readWindow(w, r)
	if !ok {
		return
	}
	q, err := s.desk.Quote(r.Context(), window)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuote(q))
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	window, ok := readWindow(w, r)
	if !ok {
		return
	}
	res, err := s.desk.Reserve(r.Context(), window)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservation(res))
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.desk.Reservation(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservation(res))
}

func (s *HTTPServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	conv, err := s.desk.ConvertReservation(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"reservation": toReservation(conv.Reservation),
		"rental":      toRental(conv.Rental),
	})
}

func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := s.desk.CancelReservation(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := map[string]any{"reservation": toReservation(out.Reservation)}
	if out.Rental != nil {
		resp["rental"] = toRental(out.Rental)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleRent(w http.ResponseWriter, r *http.Request) {
	window, ok := readWindow(w, r)
	if !ok {
		return
	}
	rental, err := s.desk.RentNow(r.Context(), window)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRental(rental))
}

func (s *HTTPServer) handleGetRental(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rental, err := s.desk.Rental(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRental(rental))
}

func (s *HTTPServer) handleCancelRental(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rental, err := s.desk.CancelRental(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRental(rental))
}

func (s *HTTPServer) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	returned, err := calendar.Parse(req.ActualReturnDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "actual_return_date: "+err.Error())
		return
	}

	result, err := s.desk.ProcessReturn(r.Context(), id, service.ReturnRequest{
		ActualReturnDate:  returned,
		DamageDescription: req.DamageDescription,
		DamageCharge:      req.DamageCharge,
		LateFeeRate:       req.LateFeeRate,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rental":     toRental(result.Rental),
		"settlement": toSettlement(result.Settlement),
	})
}

func (s *HTTPServer) handleOverdue(w http.ResponseWriter, r *http.Request) {
	rentals, err := s.desk.OverdueRentals(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]rentalResponse, 0, len(rentals))
	for _, rental := range rentals {
		out = append(out, toRental(rental))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rentals": out})
}

func (s *HTTPServer) handlePricing(w http.ResponseWriter, r *http.Request) {
	cfg := s.desk.PricingConfig()
	discounts := make(map[string]string, len(cfg.MembershipDiscounts))
	for tier, pct := range cfg.MembershipDiscounts {
		discounts[string(tier)] = pct.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"membership_discounts": discounts,
		"long_rental_min_days": cfg.LongRentalMinDays,
		"long_rental_percent":  cfg.LongRentalPercent.String(),
		"max_booking_days":     cfg.MaxBookingDays,
	})
}

func (s *HTTPServer) handleSetDiscount(w http.ResponseWriter, r *http.Request) {
	tier := models.MembershipTier(strings.ToUpper(r.PathValue("tier")))
	if !tier.Valid() {
		writeError(w, http.StatusNotFound, "unknown membership tier")
		return
	}
	var req discountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Percent == nil {
		writeError(w, http.StatusBadRequest, "percent is required")
		return
	}

	if err := s.desk.SetMembershipDiscount(tier, *req.Percent); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tier": string(tier), "percent": req.Percent.String()})
}
