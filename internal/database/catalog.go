package database

import (
	"context"
	"fmt"

	"gearrent/internal/config"
)

// SeedCatalog upserts the reference data. Rows not in the catalog are left alone.
func (db *DB) SeedCatalog(ctx context.Context, catalog *config.Catalog) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, c := range catalog.Categories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, base_price_factor, weekend_factor, default_late_fee)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				base_price_factor = excluded.base_price_factor,
				weekend_factor = excluded.weekend_factor,
				default_late_fee = excluded.default_late_fee`,
			c.ID, c.Name, c.BasePriceFactor, c.WeekendFactor, c.DefaultLateFee)
		if err != nil {
			return fmt.Errorf("failed to seed category %d: %w", c.ID, err)
		}
	}

	for _, e := range catalog.Equipment {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO equipment (id, code, name, branch_id, category_id, daily_base_price, security_deposit, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				code = excluded.code,
				name = excluded.name,
				branch_id = excluded.branch_id,
				category_id = excluded.category_id,
				daily_base_price = excluded.daily_base_price,
				security_deposit = excluded.security_deposit,
				status = excluded.status`,
			e.ID, e.Code, e.Name, e.BranchID, e.CategoryID, e.DailyBasePrice, e.SecurityDeposit, e.Status)
		if err != nil {
			return fmt.Errorf("failed to seed equipment %d: %w", e.ID, err)
		}
	}

	for _, c := range catalog.Customers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO customers (id, code, name, tier, deposit_limit)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				code = excluded.code,
				name = excluded.name,
				tier = excluded.tier,
				deposit_limit = excluded.deposit_limit`,
			c.ID, c.Code, c.Name, c.Tier, c.DepositLimit)
		if err != nil {
			return fmt.Errorf("failed to seed customer %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	db.logger.Info().
		Int("categories", len(catalog.Categories)).
		Int("equipment", len(catalog.Equipment)).
		Int("customers", len(catalog.Customers)).
		Msg("Catalog seeded")
	return nil
}
