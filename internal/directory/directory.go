// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package directory reads the CRM-owned entities the sweep pipeline needs:
// mail integrations with their access tokens, open deals, and the set of
// tenants worth sweeping. The pipeline never writes to these tables.
package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealscope/mailsweep/internal/models"
)

// Directory provides read-only access to integrations, deals, and tenants.
type Directory struct {
	pool *pgxpool.Pool
}

// New creates a directory backed by the given Postgres pool. It ensures the
// backing tables exist so a fresh development database works out of the box;
// in production the CRM owns and populates them.
func New(ctx context.Context, pool *pgxpool.Pool) (*Directory, error) {
	d := &Directory{pool: pool}
	if err := d.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure directory schema: %w", err)
	}
	slog.Info("directory initialised")
	return d, nil
}

func (d *Directory) ensureSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mail_integrations (
			id           TEXT PRIMARY KEY,
			tenant_id    TEXT NOT NULL,
			provider     TEXT NOT NULL,
			access_token TEXT NOT NULL DEFAULT '',
			is_active    BOOLEAN NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ DEFAULT NOW(),
			updated_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_mail_integrations_tenant ON mail_integrations(tenant_id);

		CREATE TABLE IF NOT EXISTS deals (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			company    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_deals_tenant ON deals(tenant_id);
	`)
	return err
}

// FindActiveMailIntegrations returns the tenant's active mail integrations,
// tokens included. Inactive integrations never reach the sweep.
func (d *Directory) FindActiveMailIntegrations(ctx context.Context, tenantID string) ([]models.Integration, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, tenant_id, provider, access_token, is_active
		FROM mail_integrations
		WHERE tenant_id = $1 AND is_active
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list mail integrations: %w", err)
	}
	defer rows.Close()

	var integrations []models.Integration
	for rows.Next() {
		var in models.Integration
		if err := rows.Scan(&in.ID, &in.TenantID, &in.Provider, &in.AccessToken, &in.IsActive); err != nil {
			return nil, err
		}
		integrations = append(integrations, in)
	}
	return integrations, rows.Err()
}

// ListDeals returns the tenant's deals as association candidates.
func (d *Directory) ListDeals(ctx context.Context, tenantID string) ([]models.Deal, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, company FROM deals
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		var deal models.Deal
		if err := rows.Scan(&deal.ID, &deal.Company); err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	return deals, rows.Err()
}

// ListTenantsWithMailIntegration returns the distinct tenant IDs that have
// at least one active mail integration. This is the sweep's work list.
func (d *Directory) ListTenantsWithMailIntegration(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT DISTINCT tenant_id FROM mail_integrations
		WHERE is_active
		ORDER BY tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
