package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Tenants, vendors, clients and sites are owned by the wider platform. These
// inserts exist for the seeder and local runs.

// CreateOrganization inserts a tenant
func (q *Queries) CreateOrganization(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.q.QueryRow(ctx, `INSERT INTO organizations (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return id, nil
}

// CreateVendor inserts a hauler or service vendor for a tenant
func (q *Queries) CreateVendor(ctx context.Context, orgID uuid.UUID, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.q.QueryRow(ctx, `
		INSERT INTO vendors (organization_id, name) VALUES ($1, $2) RETURNING id
	`, orgID, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create vendor: %w", err)
	}
	return id, nil
}

// CreateClient inserts a client for a tenant
func (q *Queries) CreateClient(ctx context.Context, orgID uuid.UUID, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.q.QueryRow(ctx, `
		INSERT INTO clients (organization_id, name) VALUES ($1, $2) RETURNING id
	`, orgID, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create client: %w", err)
	}
	return id, nil
}

// CreateSite inserts a service location belonging to a client
func (q *Queries) CreateSite(ctx context.Context, orgID, clientID uuid.UUID, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.q.QueryRow(ctx, `
		INSERT INTO sites (organization_id, client_id, name) VALUES ($1, $2, $3) RETURNING id
	`, orgID, clientID, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create site: %w", err)
	}
	return id, nil
}
