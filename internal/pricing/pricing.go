// Package pricing computes the monetary terms of a booking and of its return.
// Amounts are rounded half away from zero to two decimals at the documented steps.
package pricing

import (
	"sync"
	"time"

	"gearrent/internal/calendar"
	"gearrent/internal/models"

	"github.com/shopspring/decimal"
)

// DailyRate is the price of one day: base × category factor, × weekend factor on Saturdays and Sundays.
func DailyRate(basePrice, categoryFactor, weekendFactor decimal.Decimal, date time.Time) decimal.Decimal {
	rate := basePrice.Mul(categoryFactor)
	if calendar.IsWeekend(date) {
		rate = rate.Mul(weekendFactor)
	}
	return rate.Round(2)
}

// Line is one day of an itemized bill.
type Line struct {
	Date    time.Time       `json:"date"`
	Weekend bool            `json:"weekend"`
	Rate    decimal.Decimal `json:"rate"`
}

// ItemizedLines returns one priced line per day of [start, end]. A reversed range has no lines.
func ItemizedLines(offer *models.EquipmentOffer, category *models.CategoryPricing, start, end time.Time) []Line {
	if calendar.DaysAfter(start, end) < 0 {
		return nil
	}
	lines := make([]Line, 0, calendar.InclusiveDayCount(start, end))
	calendar.EachDay(start, end, func(d time.Time) {
		lines = append(lines, Line{
			Date:    d,
			Weekend: calendar.IsWeekend(d),
			Rate:    DailyRate(offer.DailyBasePrice, category.BasePriceFactor, category.WeekendFactor, d),
		})
	})
	return lines
}

// RentalAmount sums the daily rates of every day of [start, end].
func RentalAmount(offer *models.EquipmentOffer, category *models.CategoryPricing, start, end time.Time) decimal.Decimal {
	return sumLines(ItemizedLines(offer, category, start, end))
}

func sumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Rate)
	}
	return total.Round(2)
}

// FinalPayable subtracts both discounts from the rental amount. The result is not clamped.
func FinalPayable(amount, longDiscount, membershipDiscount decimal.Decimal) decimal.Decimal {
	return amount.Sub(longDiscount).Sub(membershipDiscount).Round(2)
}

// LateFee charges perDayFee for every day strictly after due.
func LateFee(due, actualReturn time.Time, perDayFee decimal.Decimal) decimal.Decimal {
	late := calendar.DaysAfter(due, actualReturn)
	if late <= 0 {
		return decimal.Zero
	}
	return perDayFee.Mul(decimal.NewFromInt(int64(late))).Round(2)
}

// SettleDeposit nets the charges against the deposit held. At most one of
// refund and additional is non-zero.
func SettleDeposit(held, lateFee, damage decimal.Decimal) (refund, additional, total decimal.Decimal) {
	total = lateFee.Add(damage).Round(2)
	if held.GreaterThanOrEqual(total) {
		return held.Sub(total).Round(2), decimal.Zero, total
	}
	return decimal.Zero, total.Sub(held).Round(2), total
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(2)
}

// Calculator applies the discount rules of the current Config.
type Calculator struct {
	mu  sync.RWMutex
	cfg Config
}

func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg.clone()}, nil
}

// Config returns a copy of the active configuration.
func (c *Calculator) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.clone()
}

// SetConfig replaces the whole configuration. Invalid values leave the old one in place.
func (c *Calculator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	next := cfg.clone()
	c.mu.Lock()
	c.cfg = next
	c.mu.Unlock()
	return nil
}

// SetMembershipDiscount changes the percentage of a single tier.
func (c *Calculator) SetMembershipDiscount(tier models.MembershipTier, pct decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cfg.clone()
	next.MembershipDiscounts[tier] = pct
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	return nil
}

func (c *Calculator) MaxBookingDays() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.MaxBookingDays
}

// LongRentalDiscount is pct% of amount when [start, end] spans at least the configured minimum.
func (c *Calculator) LongRentalDiscount(amount decimal.Decimal, start, end time.Time) decimal.Decimal {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()
	return longRentalDiscount(cfg, amount, start, end)
}

func (c *Calculator) MembershipDiscount(amount decimal.Decimal, tier models.MembershipTier) decimal.Decimal {
	c.mu.RLock()
	pct := c.cfg.Discount(tier)
	c.mu.RUnlock()
	return percentOf(amount, pct)
}

func longRentalDiscount(cfg Config, amount decimal.Decimal, start, end time.Time) decimal.Decimal {
	if calendar.InclusiveDayCount(start, end) < cfg.LongRentalMinDays {
		return decimal.Zero
	}
	return percentOf(amount, cfg.LongRentalPercent)
}

// Quote is the full pricing snapshot of a booking.
type Quote struct {
	Days int `json:"days"`
	// DailyRate is the weekday rate, base × category factor.
	DailyRate          decimal.Decimal `json:"daily_rate"`
	RentalAmount       decimal.Decimal `json:"rental_amount"`
	LongRentalDiscount decimal.Decimal `json:"long_rental_discount"`
	MembershipDiscount decimal.Decimal `json:"membership_discount"`
	FinalPayable       decimal.Decimal `json:"final_payable"`
	SecurityDeposit    decimal.Decimal `json:"security_deposit"`
	Lines              []Line          `json:"lines"`
}

// Quote prices [start, end] for the customer under a single configuration snapshot.
func (c *Calculator) Quote(offer *models.EquipmentOffer, category *models.CategoryPricing, customer *models.CustomerProfile, start, end time.Time) Quote {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()

	lines := ItemizedLines(offer, category, start, end)
	amount := sumLines(lines)
	longDiscount := longRentalDiscount(cfg, amount, start, end)
	memberDiscount := percentOf(amount, cfg.Discount(customer.Tier))

	return Quote{
		Days:               len(lines),
		DailyRate:          offer.DailyBasePrice.Mul(category.BasePriceFactor).Round(2),
		RentalAmount:       amount,
		LongRentalDiscount: longDiscount,
		MembershipDiscount: memberDiscount,
		FinalPayable:       FinalPayable(amount, longDiscount, memberDiscount),
		SecurityDeposit:    offer.SecurityDeposit,
		Lines:              lines,
	}
}

// Apply copies the quote's pricing snapshot onto a rental.
func (q Quote) Apply(r *models.Rental) {
	r.DailyRate = q.DailyRate
	r.RentalAmount = q.RentalAmount
	r.LongRentalDiscount = q.LongRentalDiscount
	r.MembershipDiscount = q.MembershipDiscount
	r.FinalPayable = q.FinalPayable
	r.SecurityDeposit = q.SecurityDeposit
}
