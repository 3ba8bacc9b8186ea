package service

import (
	"fmt"
	"time"

	"gearrent/internal/calendar"
	"gearrent/internal/domain"
	"gearrent/internal/models"
	"gearrent/internal/pricing"

	"github.com/shopspring/decimal"
)

// ReturnSettler computes what is owed when a rental comes back.
type ReturnSettler struct{}

func NewReturnSettler() *ReturnSettler {
	return &ReturnSettler{}
}

// ReturnResult holds the settlement and the RETURNED rental; they are persisted together.
type ReturnResult struct {
	Settlement *models.ReturnSettlement
	Rental     *models.Rental
}

func (s *ReturnSettler) SettleReturn(
	rental *models.Rental,
	actualReturn time.Time,
	damageDescription string,
	damageCharge decimal.Decimal,
	lateFeeRate decimal.Decimal,
) (*ReturnResult, error) {
	if !rental.HoldsEquipment() {
		return nil, fmt.Errorf("%w: rental %s is %s", domain.ErrInvalidState, rental.Code, rental.Status)
	}
	actualReturn = calendar.Day(actualReturn)
	if actualReturn.Before(rental.StartDate) {
		return nil, fmt.Errorf("%w: %s is before %s", domain.ErrInvalidReturnDate,
			actualReturn.Format(calendar.Layout), rental.StartDate.Format(calendar.Layout))
	}
	if damageCharge.IsNegative() {
		return nil, fmt.Errorf("%w: damage charge %s is negative", domain.ErrInvalidCharge, damageCharge.String())
	}
	if lateFeeRate.IsNegative() {
		return nil, fmt.Errorf("%w: late fee rate %s is negative", domain.ErrInvalidConfiguration, lateFeeRate.String())
	}

	lateFee := pricing.LateFee(rental.EndDate, actualReturn, lateFeeRate)
	damage := damageCharge.Round(2)
	refund, additional, total := pricing.SettleDeposit(rental.SecurityDeposit, lateFee, damage)

	returned := *rental
	returned.Status = models.RentalReturned
	returned.ActualReturnDate = &actualReturn

	return &ReturnResult{
		Settlement: &models.ReturnSettlement{
			RentalID:                  rental.ID,
			ReturnDate:                actualReturn,
			DamageDescription:         damageDescription,
			DamageCharge:              damage,
			LateFee:                   lateFee,
			TotalCharges:              total,
			RefundAmount:              refund,
			AdditionalPaymentRequired: additional,
		},
		Rental: &returned,
	}, nil
}
