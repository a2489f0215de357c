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

// Package store provides the Postgres-backed gateway for processed email
// records: creation with deal association, integration-scoped listing, and
// bulk deletion in fixed-size batches.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealscope/mailsweep/internal/assoc"
	"github.com/dealscope/mailsweep/internal/models"
)

// deleteBatchSize caps how many records a single delete batch touches.
const deleteBatchSize = 500

// listOverFetch is the read amplification factor for ListByIntegrations:
// the query reads listOverFetch*limit rows so that client-side integration
// filtering still has a good chance of filling the requested page.
const listOverFetch = 3

// DealSource lists a tenant's open deals as association candidates.
type DealSource interface {
	ListDeals(ctx context.Context, tenantID string) ([]models.Deal, error)
}

// Gateway provides CRUD operations for email records in Postgres.
type Gateway struct {
	pool  *pgxpool.Pool
	deals DealSource
}

// NewGateway creates an email record gateway backed by the given Postgres
// pool. It ensures the email_records table exists on creation.
func NewGateway(ctx context.Context, pool *pgxpool.Pool, deals DealSource) (*Gateway, error) {
	g := &Gateway{pool: pool, deals: deals}
	if err := g.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure email record schema: %w", err)
	}
	slog.Info("email record gateway initialised")
	return g, nil
}

func (g *Gateway) ensureSchema(ctx context.Context) error {
	_, err := g.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_records (
			id                      TEXT PRIMARY KEY,
			tenant_id               TEXT NOT NULL,
			integration_id          TEXT,
			sender                  TEXT NOT NULL,
			recipient               TEXT DEFAULT '',
			subject                 TEXT DEFAULT '',
			body                    TEXT DEFAULT '',
			received_at             TIMESTAMPTZ NOT NULL,
			message_id              TEXT NOT NULL,
			thread_id               TEXT DEFAULT '',
			source                  TEXT NOT NULL,
			category                TEXT NOT NULL,
			sub_category            TEXT NOT NULL,
			confidence              DOUBLE PRECISION NOT NULL,
			sentiment               TEXT NOT NULL,
			associated_deal_id      TEXT,
			associated_deal_company TEXT,
			status                  TEXT NOT NULL DEFAULT 'processed',
			created_at              TIMESTAMPTZ DEFAULT NOW(),
			updated_at              TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_email_records_tenant ON email_records(tenant_id);
		CREATE INDEX IF NOT EXISTS idx_email_records_tenant_received ON email_records(tenant_id, received_at DESC);
		CREATE INDEX IF NOT EXISTS idx_email_records_integration ON email_records(integration_id);
	`)
	return err
}

// Store persists one classified message as an email record, resolving the
// sender against the tenant's deals first. A failure to list deals degrades
// to an unassociated record; only the insert itself can fail the call.
//
// The association columns are written explicitly (as NULLs when no deal
// matched) so every record carries the same shape.
func (g *Gateway) Store(ctx context.Context, tenantID, integrationID string, msg models.RawMessage, cls models.Classification) (*models.EmailRecord, error) {
	var dealID, dealCompany *string
	deals, err := g.deals.ListDeals(ctx, tenantID)
	if err != nil {
		slog.Warn("store: list deals failed, storing unassociated",
			"tenant", tenantID,
			"error", err,
		)
	} else if deal := assoc.Resolve(msg.Sender, deals); deal != nil {
		dealID = &deal.ID
		dealCompany = &deal.Company
	}

	rec := models.EmailRecord{
		ID:                    uuid.NewString(),
		TenantID:              tenantID,
		IntegrationID:         &integrationID,
		Sender:                msg.Sender,
		Recipient:             msg.Recipient,
		Subject:               msg.Subject,
		Body:                  msg.Body,
		ReceivedAt:            msg.ReceivedAt,
		MessageID:             msg.ExternalID,
		ThreadID:              msg.ThreadID,
		Source:                msg.Source,
		Category:              cls.Category,
		SubCategory:           cls.SubCategory,
		Confidence:            cls.Confidence,
		Sentiment:             cls.Sentiment,
		AssociatedDealID:      dealID,
		AssociatedDealCompany: dealCompany,
		Status:                models.StatusProcessed,
	}

	row := g.pool.QueryRow(ctx, `
		INSERT INTO email_records
			(id, tenant_id, integration_id, sender, recipient, subject, body,
			 received_at, message_id, thread_id, source, category, sub_category,
			 confidence, sentiment, associated_deal_id, associated_deal_company, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at
	`, rec.ID, rec.TenantID, rec.IntegrationID, rec.Sender, rec.Recipient,
		rec.Subject, rec.Body, rec.ReceivedAt, rec.MessageID, rec.ThreadID,
		rec.Source, rec.Category, rec.SubCategory, rec.Confidence, rec.Sentiment,
		rec.AssociatedDealID, rec.AssociatedDealCompany, rec.Status)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert email record: %w", err)
	}
	return &rec, nil
}

// ListByIntegrations returns up to limit records for the tenant, newest
// first, restricted to the active integrations in the given set. An empty
// active set returns an empty slice without touching the database.
//
// The query over-fetches by a fixed factor and filters client-side, so the
// result may hold fewer than limit records even when more matching rows
// exist beyond the over-fetch window.
func (g *Gateway) ListByIntegrations(ctx context.Context, tenantID string, integrations []models.Integration, limit int) ([]models.EmailRecord, error) {
	active := activeIntegrationIDs(integrations)
	if len(active) == 0 {
		return []models.EmailRecord{}, nil
	}

	rows, err := g.pool.Query(ctx, `
		SELECT id, tenant_id, integration_id, sender, recipient, subject, body,
		       received_at, message_id, thread_id, source, category, sub_category,
		       confidence, sentiment, associated_deal_id, associated_deal_company,
		       status, created_at, updated_at
		FROM email_records
		WHERE tenant_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, tenantID, limit*listOverFetch)
	if err != nil {
		return nil, fmt.Errorf("list email records: %w", err)
	}
	defer rows.Close()

	all, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.EmailRecord, 0, limit)
	for _, rec := range all {
		if rec.IntegrationID == nil || !active[*rec.IntegrationID] {
			continue
		}
		filtered = append(filtered, rec)
		if len(filtered) == limit {
			break
		}
	}
	return filtered, nil
}

// DeleteByIntegration removes all records for one integration of a tenant
// and returns how many were deleted. Idempotent: a second call returns 0.
func (g *Gateway) DeleteByIntegration(ctx context.Context, tenantID, integrationID string) (int, error) {
	ids, err := g.selectIDs(ctx, `
		SELECT id FROM email_records
		WHERE tenant_id = $1 AND integration_id = $2
	`, tenantID, integrationID)
	if err != nil {
		return 0, err
	}
	return g.deleteBatched(ctx, ids)
}

// DeleteAll removes every record for a tenant and returns the count.
func (g *Gateway) DeleteAll(ctx context.Context, tenantID string) (int, error) {
	ids, err := g.selectIDs(ctx, `
		SELECT id FROM email_records WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return 0, err
	}
	return g.deleteBatched(ctx, ids)
}

// CleanupOrphaned removes records with no integration scope. Both NULL and
// empty-string integration IDs count as orphaned.
func (g *Gateway) CleanupOrphaned(ctx context.Context, tenantID string) (int, error) {
	ids, err := g.selectIDs(ctx, `
		SELECT id FROM email_records
		WHERE tenant_id = $1 AND (integration_id IS NULL OR integration_id = '')
	`, tenantID)
	if err != nil {
		return 0, err
	}
	return g.deleteBatched(ctx, ids)
}

// selectIDs collects the record IDs matched by a delete's WHERE clause.
func (g *Gateway) selectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select record ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// deleteBatched deletes the given IDs in chunks of deleteBatchSize and
// returns the total number removed. No IDs means no database work.
func (g *Gateway) deleteBatched(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	deleted := 0
	for _, part := range chunk(ids, deleteBatchSize) {
		batch := &pgx.Batch{}
		for _, id := range part {
			batch.Queue(`DELETE FROM email_records WHERE id = $1`, id)
		}
		results := g.pool.SendBatch(ctx, batch)
		for range part {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return deleted, fmt.Errorf("delete email records: %w", err)
			}
			deleted += int(tag.RowsAffected())
		}
		if err := results.Close(); err != nil {
			return deleted, fmt.Errorf("close delete batch: %w", err)
		}
	}
	return deleted, nil
}

// activeIntegrationIDs builds the set of active integration IDs.
func activeIntegrationIDs(integrations []models.Integration) map[string]bool {
	active := make(map[string]bool, len(integrations))
	for _, in := range integrations {
		if in.IsActive {
			active[in.ID] = true
		}
	}
	return active
}

// chunk splits ids into consecutive slices of at most size elements.
func chunk(ids []string, size int) [][]string {
	var parts [][]string
	for len(ids) > size {
		parts = append(parts, ids[:size])
		ids = ids[size:]
	}
	return append(parts, ids)
}

// collectRecords scans multiple rows into a slice of records.
func collectRecords(rows pgx.Rows) ([]models.EmailRecord, error) {
	var records []models.EmailRecord
	for rows.Next() {
		var r models.EmailRecord
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.IntegrationID, &r.Sender, &r.Recipient,
			&r.Subject, &r.Body, &r.ReceivedAt, &r.MessageID, &r.ThreadID,
			&r.Source, &r.Category, &r.SubCategory, &r.Confidence, &r.Sentiment,
			&r.AssociatedDealID, &r.AssociatedDealCompany, &r.Status,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
