package deposit

import (
	"testing"

	"gearrent/internal/domain"
	"gearrent/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCheckDepositLimit(t *testing.T) {
	customer := &models.CustomerProfile{ID: 3, DepositLimit: dec("5000.00")}

	tests := []struct {
		name       string
		current    string
		newDeposit string
		wantErr    bool
	}{
		{"under limit", "1000.00", "2000.00", false},
		{"exactly at limit", "3000.00", "2000.00", false},
		{"over limit", "3000.01", "2000.00", true},
		{"single deposit over limit", "0", "5000.50", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDepositLimit(customer, dec(tt.current), dec(tt.newDeposit))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrDepositLimitExceeded)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActiveDeposits(t *testing.T) {
	rentals := []*models.Rental{
		{ID: 1, BookingWindow: models.BookingWindow{CustomerID: 3}, SecurityDeposit: dec("1000"), Status: models.RentalActive},
		{ID: 2, BookingWindow: models.BookingWindow{CustomerID: 3}, SecurityDeposit: dec("500"), Status: models.RentalOverdue},
		{ID: 3, BookingWindow: models.BookingWindow{CustomerID: 3}, SecurityDeposit: dec("700"), Status: models.RentalReturned},
		{ID: 4, BookingWindow: models.BookingWindow{CustomerID: 3}, SecurityDeposit: dec("900"), Status: models.RentalCancelled},
		{ID: 5, BookingWindow: models.BookingWindow{CustomerID: 4}, SecurityDeposit: dec("2000"), Status: models.RentalActive},
	}

	assert.Equal(t, "1500.00", ActiveDeposits(rentals, 3).StringFixed(2))
	assert.True(t, ActiveDeposits(nil, 3).IsZero())
}
