// Package deposit guards a customer's aggregate security-deposit exposure.
package deposit

import (
	"fmt"

	"gearrent/internal/domain"
	"gearrent/internal/models"

	"github.com/shopspring/decimal"
)

// CheckDepositLimit fails when current plus newDeposit exceeds the customer's limit.
// Reaching the limit exactly is allowed.
func CheckDepositLimit(customer *models.CustomerProfile, current, newDeposit decimal.Decimal) error {
	total := current.Add(newDeposit)
	if total.GreaterThan(customer.DepositLimit) {
		return fmt.Errorf("%w: customer %d would hold %s against a limit of %s",
			domain.ErrDepositLimitExceeded, customer.ID, total.StringFixed(2), customer.DepositLimit.StringFixed(2))
	}
	return nil
}

// ActiveDeposits sums the deposits of customerID's rentals that still hold equipment.
func ActiveDeposits(rentals []*models.Rental, customerID int64) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rentals {
		if r.CustomerID == customerID && r.HoldsEquipment() {
			total = total.Add(r.SecurityDeposit)
		}
	}
	return total
}
