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

// Package scheduler drives the periodic email sweep: every interval it walks
// all tenants with an active mail integration, fetches recent messages
// through the provider adapters, classifies them, and stores the results.
//
// Failure isolation is the governing rule at every level: a broken tenant
// never blocks the other tenants, a broken integration never blocks the
// tenant's other integrations, and a message that fails to store never
// blocks the rest of the page.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dealscope/mailsweep/internal/classifier"
	"github.com/dealscope/mailsweep/internal/models"
	"github.com/dealscope/mailsweep/internal/provider"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 5 * time.Minute

// State is the scheduler lifecycle state.
type State int

const (
	Stopped State = iota
	Running
)

// String returns the state name for logs and the status endpoint.
func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// TenantDirectory lists the tenants worth sweeping.
type TenantDirectory interface {
	ListTenantsWithMailIntegration(ctx context.Context) ([]string, error)
}

// IntegrationDirectory resolves a tenant's active mail integrations.
type IntegrationDirectory interface {
	FindActiveMailIntegrations(ctx context.Context, tenantID string) ([]models.Integration, error)
}

// RecordStore persists one classified message.
type RecordStore interface {
	Store(ctx context.Context, tenantID, integrationID string, msg models.RawMessage, cls models.Classification) (*models.EmailRecord, error)
}

// SeenFilter reports whether a message is new for a tenant. An error means
// the filter is unavailable; callers treat the message as new rather than
// drop mail. Forget undoes a mark when processing fails after IsNew, so the
// next sweep retries the message.
type SeenFilter interface {
	IsNew(ctx context.Context, source models.Source, tenantID, externalID string) (bool, error)
	Forget(ctx context.Context, source models.Source, tenantID, externalID string) error
}

// Notifier tells downstream consumers about a stored record.
type Notifier interface {
	PublishRecordStored(ctx context.Context, rec *models.EmailRecord) error
}

// TenantResult summarises one tenant's sweep.
type TenantResult struct {
	TenantID string `json:"tenant_id"`
	Fetched  int    `json:"fetched"`
	Stored   int    `json:"stored"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// Scheduler runs the sweep loop and serves manual per-tenant triggers.
type Scheduler struct {
	tenants      TenantDirectory
	integrations IntegrationDirectory
	records      RecordStore
	seen         SeenFilter
	notify       Notifier
	providers    map[models.Source]provider.MailProvider

	interval   time.Duration
	maxResults int

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// Deps carries the scheduler's collaborators.
type Deps struct {
	Tenants      TenantDirectory
	Integrations IntegrationDirectory
	Records      RecordStore
	Seen         SeenFilter
	Notify       Notifier
	Providers    []provider.MailProvider
}

// New creates a stopped scheduler. interval <= 0 falls back to
// DefaultInterval; maxResults is the per-integration fetch page size.
func New(deps Deps, interval time.Duration, maxResults int) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	providers := make(map[models.Source]provider.MailProvider, len(deps.Providers))
	for _, p := range deps.Providers {
		providers[p.Name()] = p
	}
	return &Scheduler{
		tenants:      deps.Tenants,
		integrations: deps.Integrations,
		records:      deps.Records,
		seen:         deps.Seen,
		notify:       deps.Notify,
		providers:    providers,
		interval:     interval,
		maxResults:   maxResults,
	}
}

// IsRunning reports whether the periodic loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Running
}

// Start runs one sweep immediately, then fires every interval until Stop.
// Calling Start while already running is a logged no-op. The immediate
// sweep is synchronous, so callers know the first pass completed (or was
// attempted) when Start returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state == Running {
		s.mu.Unlock()
		slog.Info("scheduler already running, start ignored")
		return
	}
	s.state = Running
	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	slog.Info("scheduler started", "interval", s.interval)
	s.Sweep(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				// A sweep that outlives the ticker context still runs to
				// completion: cancellation only prevents future firings.
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the periodic loop. An in-flight sweep finishes on its own;
// stopping an already stopped scheduler is harmless.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = Stopped
	slog.Info("scheduler stopped")
}

// Sweep processes every tenant once. A tenant that fails is logged and
// skipped; the sweep itself only fails if the tenant list cannot be read.
func (s *Scheduler) Sweep(ctx context.Context) []TenantResult {
	started := time.Now()
	tenants, err := s.tenants.ListTenantsWithMailIntegration(ctx)
	if err != nil {
		slog.Error("sweep: list tenants failed", "error", err)
		return nil
	}

	results := make([]TenantResult, 0, len(tenants))
	for _, tenantID := range tenants {
		res, err := s.SyncTenant(ctx, tenantID)
		if err != nil {
			slog.Error("sweep: tenant sync failed",
				"tenant", tenantID,
				"error", err,
			)
			continue
		}
		results = append(results, res)
	}

	slog.Info("sweep complete",
		"tenants", len(tenants),
		"duration", time.Since(started),
	)
	return results
}

// SyncTenant sweeps one tenant's active integrations. Manual triggers call
// this directly; there is no mutual exclusion against the periodic loop, so
// a manual sync may overlap a scheduled sweep. The dedup filter makes the
// overlap harmless.
func (s *Scheduler) SyncTenant(ctx context.Context, tenantID string) (TenantResult, error) {
	res := TenantResult{TenantID: tenantID}

	integrations, err := s.integrations.FindActiveMailIntegrations(ctx, tenantID)
	if err != nil {
		return res, err
	}

	for _, in := range integrations {
		p, ok := s.providers[in.Provider]
		if !ok {
			slog.Warn("sync: no adapter for provider",
				"tenant", tenantID,
				"provider", in.Provider,
			)
			continue
		}

		msgs, err := p.FetchRecent(ctx, in.AccessToken, s.maxResults)
		if err != nil {
			slog.Warn("sync: fetch failed",
				"tenant", tenantID,
				"provider", in.Provider,
				"integration", in.ID,
				"error", err,
			)
			continue
		}
		res.Fetched += len(msgs)

		for _, msg := range msgs {
			s.processMessage(ctx, tenantID, in.ID, msg, &res)
		}
	}

	slog.Info("tenant sync complete",
		"tenant", tenantID,
		"fetched", res.Fetched,
		"stored", res.Stored,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}

// processMessage runs one message through dedup, classification, storage,
// and notification, updating the tenant's counters.
func (s *Scheduler) processMessage(ctx context.Context, tenantID, integrationID string, msg models.RawMessage, res *TenantResult) {
	isNew, err := s.seen.IsNew(ctx, msg.Source, tenantID, msg.ExternalID)
	if err != nil {
		// The filter being down must not drop mail: treat as new and let
		// the TTL window sort out the occasional duplicate.
		slog.Warn("sync: dedup check failed, treating as new",
			"tenant", tenantID,
			"message_id", msg.ExternalID,
			"error", err,
		)
		isNew = true
	}
	if !isNew {
		res.Skipped++
		return
	}

	cls := classifier.Classify(msg)

	rec, err := s.records.Store(ctx, tenantID, integrationID, msg, cls)
	if err != nil {
		slog.Warn("sync: store failed",
			"tenant", tenantID,
			"message_id", msg.ExternalID,
			"error", err,
		)
		// The message is already marked seen; unmark it or a transient
		// store failure keeps it invisible until the TTL expires.
		if ferr := s.seen.Forget(ctx, msg.Source, tenantID, msg.ExternalID); ferr != nil {
			slog.Warn("sync: unmark seen failed",
				"tenant", tenantID,
				"message_id", msg.ExternalID,
				"error", ferr,
			)
		}
		res.Failed++
		return
	}
	res.Stored++

	if s.notify != nil {
		if err := s.notify.PublishRecordStored(ctx, rec); err != nil {
			slog.Warn("sync: notify failed",
				"tenant", tenantID,
				"record_id", rec.ID,
				"error", err,
			)
		}
	}
}
