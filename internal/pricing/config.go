package pricing

import (
	"fmt"

	"gearrent/internal/domain"
	"gearrent/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Config is the pricing configuration. A Calculator never mutates a Config it
// was given; updates build a new value and swap it in.
type Config struct {
	// MembershipDiscounts holds the discount percentage per tier. REGULAR is always zero.
	MembershipDiscounts map[models.MembershipTier]decimal.Decimal
	LongRentalMinDays   int
	LongRentalPercent   decimal.Decimal
	MaxBookingDays      int
}

func DefaultConfig() Config {
	return Config{
		MembershipDiscounts: map[models.MembershipTier]decimal.Decimal{
			models.TierRegular: decimal.Zero,
			models.TierSilver:  decimal.NewFromInt(5),
			models.TierGold:    decimal.NewFromInt(10),
		},
		LongRentalMinDays: models.DefaultLongRentalMinDays,
		LongRentalPercent: decimal.NewFromInt(models.DefaultLongRentalPercent),
		MaxBookingDays:    models.DefaultMaxBookingDays,
	}
}

// Validate rejects configurations that could produce a negative final payable.
func (c Config) Validate() error {
	if c.MaxBookingDays < 1 {
		return fmt.Errorf("%w: max booking days must be positive, got %d", domain.ErrInvalidConfiguration, c.MaxBookingDays)
	}
	if c.LongRentalMinDays < 1 {
		return fmt.Errorf("%w: long rental min days must be positive, got %d", domain.ErrInvalidConfiguration, c.LongRentalMinDays)
	}
	if err := validatePercent("long rental", c.LongRentalPercent); err != nil {
		return err
	}

	maxTier := decimal.Zero
	for tier, pct := range c.MembershipDiscounts {
		if !tier.Valid() {
			return fmt.Errorf("%w: unknown membership tier %q", domain.ErrInvalidConfiguration, tier)
		}
		if err := validatePercent(string(tier), pct); err != nil {
			return err
		}
		if tier == models.TierRegular && !pct.IsZero() {
			return fmt.Errorf("%w: %s tier carries no discount", domain.ErrInvalidConfiguration, tier)
		}
		if pct.GreaterThan(maxTier) {
			maxTier = pct
		}
	}

	// Each discount rounds on its own, so at 100% the pair can exceed the amount by a cent.
	if total := c.LongRentalPercent.Add(maxTier); total.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: combined discounts reach %s%%, must stay below 100", domain.ErrInvalidConfiguration, total.String())
	}
	return nil
}

// Discount returns the membership percentage of a tier, zero when not configured.
func (c Config) Discount(tier models.MembershipTier) decimal.Decimal {
	if tier == models.TierRegular {
		return decimal.Zero
	}
	pct, ok := c.MembershipDiscounts[tier]
	if !ok {
		return decimal.Zero
	}
	return pct
}

func (c Config) clone() Config {
	out := c
	out.MembershipDiscounts = make(map[models.MembershipTier]decimal.Decimal, len(c.MembershipDiscounts))
	for tier, pct := range c.MembershipDiscounts {
		out.MembershipDiscounts[tier] = pct
	}
	return out
}

func validatePercent(name string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s discount %s%% is outside 0-100", domain.ErrInvalidConfiguration, name, pct.String())
	}
	return nil
}
