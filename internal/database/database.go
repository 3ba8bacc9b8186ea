package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gearrent/internal/config"
	"gearrent/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the SQLite implementation of domain.Store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// immediate transactions take the write lock up front, so two units of
	// work never both read a free slot and then race to write it
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate&_foreign_keys=on", cfg.Path, busy.Milliseconds())

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", cfg.Path).Msg("Database initialized")
	return &DB{DB: sqlDB, path: cfg.Path, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS categories (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            base_price_factor TEXT NOT NULL DEFAULT '1',
            weekend_factor TEXT NOT NULL DEFAULT '1',
            default_late_fee TEXT NOT NULL DEFAULT '0'
        )`,
		`CREATE TABLE IF NOT EXISTS equipment (
            id INTEGER PRIMARY KEY,
            code TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL DEFAULT '',
            branch_id INTEGER NOT NULL DEFAULT 0,
            category_id INTEGER NOT NULL REFERENCES categories(id),
            daily_base_price TEXT NOT NULL,
            security_deposit TEXT NOT NULL DEFAULT '0',
            status TEXT NOT NULL DEFAULT 'AVAILABLE'
        )`,
		`CREATE TABLE IF NOT EXISTS customers (
            id INTEGER PRIMARY KEY,
            code TEXT NOT NULL DEFAULT '',
            name TEXT NOT NULL,
            tier TEXT NOT NULL DEFAULT 'REGULAR',
            deposit_limit TEXT NOT NULL DEFAULT '0'
        )`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT NOT NULL UNIQUE,
            equipment_id INTEGER NOT NULL REFERENCES equipment(id),
            customer_id INTEGER NOT NULL REFERENCES customers(id),
            branch_id INTEGER NOT NULL DEFAULT 0,
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            status TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS rentals (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT NOT NULL UNIQUE,
            equipment_id INTEGER NOT NULL REFERENCES equipment(id),
            customer_id INTEGER NOT NULL REFERENCES customers(id),
            branch_id INTEGER NOT NULL DEFAULT 0,
            reservation_id INTEGER REFERENCES reservations(id),
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            actual_return_date TEXT,
            daily_rate TEXT NOT NULL,
            rental_amount TEXT NOT NULL,
            long_rental_discount TEXT NOT NULL,
            membership_discount TEXT NOT NULL,
            final_payable TEXT NOT NULL,
            security_deposit TEXT NOT NULL,
            status TEXT NOT NULL,
            payment_status TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS return_settlements (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            rental_id INTEGER NOT NULL UNIQUE REFERENCES rentals(id),
            return_date TEXT NOT NULL,
            damage_description TEXT NOT NULL DEFAULT '',
            damage_charge TEXT NOT NULL,
            late_fee TEXT NOT NULL,
            total_charges TEXT NOT NULL,
            refund_amount TEXT NOT NULL,
            additional_payment TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_equipment_status ON reservations(equipment_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_equipment_status ON rentals(equipment_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_customer_status ON rentals(customer_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_reservation ON rentals(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_status_end ON rentals(status, end_date)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// RunInTx runs fn in one immediate transaction. SQLite busy and locked
// errors come back wrapped in domain.ErrConcurrentModification.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %w", domain.ErrConcurrentModification, err)
	}
	return err
}
