package models

import "github.com/shopspring/decimal"

type CustomerProfile struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Tier         MembershipTier  `json:"tier"`
	DepositLimit decimal.Decimal `json:"deposit_limit"`
}
