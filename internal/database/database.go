package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wastebroker/ops-platform/internal/logger"
)

// DB wraps the connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs repository statements against the pool or a transaction
type Queries struct {
	q querier
}

// Connect creates a new database connection pool
func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	// Configure pool
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.WithComponent("database")
	log.Info().Msg("database connected")
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Queries returns repositories bound to the pool (no transaction)
func (db *DB) Queries() *Queries {
	return &Queries{q: db.Pool}
}

// InTx runs fn in a transaction, committing only if fn returns nil
func (db *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunMigrations applies pending migrations in version order
func RunMigrations(ctx context.Context, db *DB) error {
	log := logger.WithComponent("migrations")

	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for i, migration := range migrations {
		version := i + 1

		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", version, err)
		}
		if exists {
			continue
		}

		log.Info().Int("version", version).Msg("applying migration")

		err = db.InTx(ctx, func(q *Queries) error {
			if _, err := q.q.Exec(ctx, migration); err != nil {
				return err
			}
			_, err := q.q.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
	}

	return nil
}

// migrations are applied in slice order; version is index + 1
var migrations = []string{
	migration001,
	migration002,
	migration003,
}

// Tenant directory. The outer platform owns these rows; only the columns the
// engine joins on are declared here.
const migration001 = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS organizations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS vendors (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    name VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS clients (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    name VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sites (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    client_id UUID REFERENCES clients(id),
    name VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS purchase_orders (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    po_number VARCHAR(50) NOT NULL,
    vendor_id UUID NOT NULL REFERENCES vendors(id),
    client_id UUID REFERENCES clients(id),
    site_id UUID REFERENCES sites(id),
    po_date DATE NOT NULL,
    expected_delivery_date DATE,
    total NUMERIC(12,2) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'draft'
        CHECK (status IN ('draft', 'sent', 'approved', 'completed', 'cancelled')),
    service_scope VARCHAR(20) NOT NULL DEFAULT 'non_recurring'
        CHECK (service_scope IN ('recurring', 'non_recurring')),
    deleted_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (organization_id, po_number)
);

CREATE INDEX IF NOT EXISTS idx_purchase_orders_vendor_site
    ON purchase_orders(organization_id, vendor_id, site_id)
    WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS po_line_items (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    purchase_order_id UUID NOT NULL REFERENCES purchase_orders(id) ON DELETE CASCADE,
    line_number INT NOT NULL,
    description TEXT NOT NULL,
    quantity NUMERIC(12,3) NOT NULL DEFAULT 1,
    unit_price NUMERIC(12,2),
    amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_po_line_items_po ON po_line_items(purchase_order_id, line_number);
`

// Vendor invoices
const migration002 = `
CREATE TABLE IF NOT EXISTS vendor_invoices (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    vendor_id UUID NOT NULL REFERENCES vendors(id),
    client_id UUID REFERENCES clients(id),
    site_id UUID REFERENCES sites(id),
    po_id UUID REFERENCES purchase_orders(id),
    invoice_number VARCHAR(100),
    invoice_date DATE NOT NULL,
    subtotal NUMERIC(12,2),
    total NUMERIC(12,2) NOT NULL DEFAULT 0,
    raw_text TEXT,
    document_bucket VARCHAR(255),
    document_key VARCHAR(500),
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_vendor_invoices_org ON vendor_invoices(organization_id, created_at DESC);

CREATE TABLE IF NOT EXISTS vendor_line_items (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    vendor_invoice_id UUID NOT NULL REFERENCES vendor_invoices(id) ON DELETE CASCADE,
    line_number INT NOT NULL,
    description TEXT NOT NULL,
    quantity NUMERIC(12,3) NOT NULL DEFAULT 1,
    unit_price NUMERIC(12,2),
    amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    match_status VARCHAR(20) NOT NULL DEFAULT 'pending'
        CHECK (match_status IN ('pending', 'exact', 'fuzzy', 'manual', 'unmatched')),
    po_line_item_id UUID REFERENCES po_line_items(id),
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_vendor_line_items_invoice ON vendor_line_items(vendor_invoice_id, line_number);
`

// Reconciliation
const migration003 = `
CREATE TABLE IF NOT EXISTS reconciliation_settings (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id UUID NOT NULL UNIQUE REFERENCES organizations(id) ON DELETE CASCADE,
    fuzzy_match_threshold NUMERIC(5,2) NOT NULL,
    price_tolerance_percentage NUMERIC(5,2) NOT NULL,
    auto_approve_exact_matches BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    CHECK (fuzzy_match_threshold BETWEEN 0 AND 100),
    CHECK (price_tolerance_percentage BETWEEN 0 AND 100)
);

CREATE TABLE IF NOT EXISTS match_records (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    vendor_invoice_id UUID NOT NULL REFERENCES vendor_invoices(id) ON DELETE CASCADE,
    vendor_line_item_id UUID NOT NULL REFERENCES vendor_line_items(id) ON DELETE CASCADE,
    purchase_order_id UUID REFERENCES purchase_orders(id),
    po_line_item_id UUID REFERENCES po_line_items(id),
    match_type VARCHAR(20) NOT NULL
        CHECK (match_type IN ('exact', 'fuzzy', 'manual', 'unmatched')),
    similarity_score NUMERIC(5,2) NOT NULL DEFAULT 0,
    price_difference_percentage NUMERIC(12,2) NOT NULL DEFAULT 0,
    match_status VARCHAR(20) NOT NULL DEFAULT 'pending'
        CHECK (match_status IN ('pending', 'approved', 'rejected')),
    matched_by UUID,
    matched_at TIMESTAMPTZ,
    notes TEXT,
    superseded_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_match_records_active
    ON match_records(vendor_invoice_id)
    WHERE superseded_at IS NULL;

CREATE TABLE IF NOT EXISTS discrepancies (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    organization_id UUID NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
    vendor_invoice_id UUID NOT NULL REFERENCES vendor_invoices(id) ON DELETE CASCADE,
    vendor_line_item_id UUID REFERENCES vendor_line_items(id) ON DELETE CASCADE,
    match_record_id UUID REFERENCES match_records(id) ON DELETE SET NULL,
    discrepancy_type VARCHAR(30) NOT NULL
        CHECK (discrepancy_type IN ('no_match', 'no_po', 'price_mismatch', 'rejected_match')),
    expected_value TEXT,
    actual_value TEXT,
    amount_difference NUMERIC(12,2) NOT NULL DEFAULT 0,
    severity VARCHAR(10) NOT NULL CHECK (severity IN ('high', 'medium')),
    status VARCHAR(20) NOT NULL DEFAULT 'open'
        CHECK (status IN ('open', 'resolved', 'superseded')),
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_discrepancies_invoice ON discrepancies(vendor_invoice_id, created_at);
`
