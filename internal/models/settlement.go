package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReturnSettlement closes a rental financially: charges against the deposit held.
type ReturnSettlement struct {
	ID                        int64           `json:"id"`
	RentalID                  int64           `json:"rental_id"`
	ReturnDate                time.Time       `json:"return_date"`
	DamageDescription         string          `json:"damage_description,omitempty"`
	DamageCharge              decimal.Decimal `json:"damage_charge"`
	LateFee                   decimal.Decimal `json:"late_fee"`
	TotalCharges              decimal.Decimal `json:"total_charges"`
	RefundAmount              decimal.Decimal `json:"refund_amount"`
	AdditionalPaymentRequired decimal.Decimal `json:"additional_payment_required"`
}
