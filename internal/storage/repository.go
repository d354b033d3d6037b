// Package storage keeps the calculation history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"taxcalc/internal/core"
	"taxcalc/internal/tax"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a calculation ID is not in the history.
	ErrNotFound = errors.New("calculation not found")
	// ErrDuplicate is returned when a calculation ID is already recorded.
	ErrDuplicate = errors.New("calculation already recorded")
)

// Fixed-width so that created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialise through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Calculation history ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Save records a calculation and its per-band allocations atomically.
func (r *SQLiteRepository) Save(ctx context.Context, c tax.Calculation) error {
	if c.ID == "" {
		return errors.New("save calculation: empty id")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO calculations (id, year, gross_pence, allowance_pence, total_tax_pence, net_pence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Year,
		int64(c.Gross.TotalPence()), int64(c.Allowance.TotalPence()),
		int64(c.TotalTax.TotalPence()), int64(c.NetIncome.TotalPence()),
		c.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert calculation: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert calculation: %w", err)
	}
	if inserted == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.ID)
	}

	for i, a := range c.Breakdown {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO calculation_bands (calculation_id, position, name, rate, width_pence, affected_pence, tax_pence)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, i, a.Band.Name(), a.Band.Rate(),
			int64(a.Band.Width().TotalPence()), int64(a.Affected.TotalPence()), int64(a.Tax.TotalPence()))
		if err != nil {
			return fmt.Errorf("insert band %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit calculation: %w", err)
	}

	slog.InfoContext(ctx, "Calculation saved to SQLite",
		"calculation_id", c.ID,
		"year", c.Year,
		"gross_pence", c.Gross.TotalPence(),
		"tax_pence", c.TotalTax.TotalPence())

	return nil
}

// Get loads one calculation by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (tax.Calculation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, year, gross_pence, allowance_pence, total_tax_pence, net_pence, created_at
		FROM calculations WHERE id = ?`, id)

	c, err := scanCalculation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tax.Calculation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return tax.Calculation{}, fmt.Errorf("get calculation: %w", err)
	}

	if c.Breakdown, err = r.bands(ctx, id); err != nil {
		return tax.Calculation{}, err
	}
	return c, nil
}

// Recent returns up to limit calculations, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]tax.Calculation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, year, gross_pence, allowance_pence, total_tax_pence, net_pence, created_at
		FROM calculations ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}
	defer rows.Close()

	var out []tax.Calculation
	for rows.Next() {
		c, err := scanCalculation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calculation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}
	rows.Close()

	for i := range out {
		if out[i].Breakdown, err = r.bands(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepository) bands(ctx context.Context, id string) (tax.Breakdown, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, rate, width_pence, affected_pence, tax_pence
		FROM calculation_bands WHERE calculation_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list bands for %s: %w", id, err)
	}
	defer rows.Close()

	var out tax.Breakdown
	for rows.Next() {
		var (
			name                 string
			rate                 float64
			width, affected, due int64
		)
		if err := rows.Scan(&name, &rate, &width, &affected, &due); err != nil {
			return nil, fmt.Errorf("scan band: %w", err)
		}
		out = append(out, tax.Allocation{
			Band:     tax.NewBand(name, core.FromPence(uint64(width)), rate),
			Affected: core.FromPence(uint64(affected)),
			Tax:      core.FromPence(uint64(due)),
		})
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCalculation(s scanner) (tax.Calculation, error) {
	var (
		c                            tax.Calculation
		gross, allowance, total, net int64
		createdAt                    string
	)
	if err := s.Scan(&c.ID, &c.Year, &gross, &allowance, &total, &net, &createdAt); err != nil {
		return tax.Calculation{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return tax.Calculation{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}

	c.Gross = core.FromPence(uint64(gross))
	c.Allowance = core.FromPence(uint64(allowance))
	c.TotalTax = core.FromPence(uint64(total))
	c.NetIncome = core.FromPence(uint64(net))
	c.CreatedAt = t
	return c, nil
}
