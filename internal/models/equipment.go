package models

import "github.com/shopspring/decimal"

// EquipmentOffer is the priced, rentable unit as seen by the booking engine.
// Status is a listing convenience and is never used for conflict decisions.
type EquipmentOffer struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	BranchID        int64           `json:"branch_id"`
	CategoryID      int64           `json:"category_id"`
	DailyBasePrice  decimal.Decimal `json:"daily_base_price"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`
	Status          EquipmentStatus `json:"status"`
}

// CategoryPricing carries the multiplicative factors and late fee of a category.
type CategoryPricing struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	BasePriceFactor decimal.Decimal `json:"base_price_factor"`
	WeekendFactor   decimal.Decimal `json:"weekend_factor"`
	DefaultLateFee  decimal.Decimal `json:"default_late_fee"`
}
