package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gearrent/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Catalog is the reference data the booking engine prices against.
type Catalog struct {
	Categories []models.CategoryPricing
	Equipment  []models.EquipmentOffer
	Customers  []models.CustomerProfile
}

type catalogFile struct {
	Categories []categoryEntry  `yaml:"categories"`
	Equipment  []equipmentEntry `yaml:"equipment"`
	Customers  []customerEntry  `yaml:"customers"`
}

type categoryEntry struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	BasePriceFactor string `yaml:"base_price_factor"`
	WeekendFactor   string `yaml:"weekend_factor"`
	DefaultLateFee  string `yaml:"default_late_fee"`
}

type equipmentEntry struct {
	ID              int64  `yaml:"id"`
	Code            string `yaml:"code"`
	Name            string `yaml:"name"`
	BranchID        int64  `yaml:"branch_id"`
	CategoryID      int64  `yaml:"category_id"`
	DailyBasePrice  string `yaml:"daily_base_price"`
	SecurityDeposit string `yaml:"security_deposit"`
	Status          string `yaml:"status"`
}

type customerEntry struct {
	ID           int64  `yaml:"id"`
	Code         string `yaml:"code"`
	Name         string `yaml:"name"`
	Tier         string `yaml:"tier"`
	DepositLimit string `yaml:"deposit_limit"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	catalog, err := file.build()
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return catalog, nil
}

// money parses a non-negative amount; empty means defaultValue.
func money(field, raw string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative, got %s", field, raw)
	}
	return d, nil
}

func (f catalogFile) build() (*Catalog, error) {
	var errs []error
	catalog := &Catalog{}
	one := decimal.NewFromInt(1)

	categories := make(map[int64]bool)
	for _, e := range f.Categories {
		if e.ID == 0 || categories[e.ID] {
			errs = append(errs, fmt.Errorf("category %q has a missing or duplicate id %d", e.Name, e.ID))
			continue
		}
		categories[e.ID] = true

		factor, err1 := money("base_price_factor", e.BasePriceFactor, one)
		weekend, err2 := money("weekend_factor", e.WeekendFactor, one)
		lateFee, err3 := money("default_late_fee", e.DefaultLateFee, decimal.Zero)
		if err := errors.Join(err1, err2, err3); err != nil {
			errs = append(errs, fmt.Errorf("category %d: %w", e.ID, err))
			continue
		}
		catalog.Categories = append(catalog.Categories, models.CategoryPricing{
			ID:              e.ID,
			Name:            e.Name,
			BasePriceFactor: factor,
			WeekendFactor:   weekend,
			DefaultLateFee:  lateFee,
		})
	}

	equipment := make(map[int64]bool)
	for _, e := range f.Equipment {
		if e.ID == 0 || equipment[e.ID] {
			errs = append(errs, fmt.Errorf("equipment %q has a missing or duplicate id %d", e.Code, e.ID))
			continue
		}
		equipment[e.ID] = true
		if !categories[e.CategoryID] {
			errs = append(errs, fmt.Errorf("equipment %d references unknown category %d", e.ID, e.CategoryID))
			continue
		}

		price, err1 := money("daily_base_price", e.DailyBasePrice, decimal.Zero)
		dep, err2 := money("security_deposit", e.SecurityDeposit, decimal.Zero)
		if err := errors.Join(err1, err2); err != nil {
			errs = append(errs, fmt.Errorf("equipment %d: %w", e.ID, err))
			continue
		}
		status := models.EquipmentStatus(strings.ToUpper(e.Status))
		if status == "" {
			status = models.EquipmentAvailable
		}
		catalog.Equipment = append(catalog.Equipment, models.EquipmentOffer{
			ID:              e.ID,
			Code:            e.Code,
			Name:            e.Name,
			BranchID:        e.BranchID,
			CategoryID:      e.CategoryID,
			DailyBasePrice:  price,
			SecurityDeposit: dep,
			Status:          status,
		})
	}

	customers := make(map[int64]bool)
	for _, e := range f.Customers {
		if e.ID == 0 || customers[e.ID] {
			errs = append(errs, fmt.Errorf("customer %q has a missing or duplicate id %d", e.Name, e.ID))
			continue
		}
		customers[e.ID] = true

		tier := models.MembershipTier(strings.ToUpper(e.Tier))
		if tier == "" {
			tier = models.TierRegular
		}
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("customer %d has unknown tier %q", e.ID, e.Tier))
			continue
		}
		limit, err := money("deposit_limit", e.DepositLimit, decimal.Zero)
		if err != nil {
			errs = append(errs, fmt.Errorf("customer %d: %w", e.ID, err))
			continue
		}
		catalog.Customers = append(catalog.Customers, models.CustomerProfile{
			ID:           e.ID,
			Code:         e.Code,
			Name:         e.Name,
			Tier:         tier,
			DepositLimit: limit,
		})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return catalog, nil
}
