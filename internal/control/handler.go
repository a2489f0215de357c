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

// Package control exposes the operator-facing HTTP surface: scheduler
// lifecycle, manual tenant syncs, record listing, and bulk deletion.
package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dealscope/mailsweep/internal/models"
	"github.com/dealscope/mailsweep/internal/scheduler"
)

// SweepController is the scheduler as seen by the control surface.
type SweepController interface {
	Start(ctx context.Context)
	Stop()
	IsRunning() bool
	SyncTenant(ctx context.Context, tenantID string) (scheduler.TenantResult, error)
}

// RecordAdmin is the record gateway as seen by the control surface.
type RecordAdmin interface {
	ListByIntegrations(ctx context.Context, tenantID string, integrations []models.Integration, limit int) ([]models.EmailRecord, error)
	DeleteByIntegration(ctx context.Context, tenantID, integrationID string) (int, error)
	DeleteAll(ctx context.Context, tenantID string) (int, error)
	CleanupOrphaned(ctx context.Context, tenantID string) (int, error)
}

// IntegrationDirectory resolves a tenant's active integrations for listing.
type IntegrationDirectory interface {
	FindActiveMailIntegrations(ctx context.Context, tenantID string) ([]models.Integration, error)
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the control routes.
type Handler struct {
	// runCtx outlives individual requests; scheduler Start must not be
	// bound to the lifetime of the HTTP request that triggered it.
	runCtx context.Context

	sweeps       SweepController
	records      RecordAdmin
	integrations IntegrationDirectory
	db           Pinger
	queue        Pinger
}

// New creates the control handler. runCtx is the process context the
// scheduler runs under when started over HTTP.
func New(runCtx context.Context, sweeps SweepController, records RecordAdmin, integrations IntegrationDirectory, db, queue Pinger) *Handler {
	return &Handler{
		runCtx:       runCtx,
		sweeps:       sweeps,
		records:      records,
		integrations: integrations,
		db:           db,
		queue:        queue,
	}
}

// Routes returns the control mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("POST /sync/start", h.handleSyncStart)
	mux.HandleFunc("POST /sync/stop", h.handleSyncStop)
	mux.HandleFunc("POST /sync/tenants/{tenant}", h.handleSyncTenant)
	mux.HandleFunc("GET /tenants/{tenant}/emails", h.handleListEmails)
	mux.HandleFunc("DELETE /tenants/{tenant}/emails", h.handleDeleteAll)
	mux.HandleFunc("DELETE /tenants/{tenant}/integrations/{integration}/emails", h.handleDeleteByIntegration)
	mux.HandleFunc("POST /tenants/{tenant}/emails/cleanup", h.handleCleanup)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "postgres": err.Error()})
		return
	}
	if err := h.queue.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "redis": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := "stopped"
	if h.sweeps.IsRunning() {
		state = "running"
	}
	writeJSON(w, http.StatusOK, map[string]string{"scheduler": state})
}

func (h *Handler) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	h.sweeps.Start(h.runCtx)
	writeJSON(w, http.StatusOK, map[string]string{"scheduler": "running"})
}

func (h *Handler) handleSyncStop(w http.ResponseWriter, r *http.Request) {
	h.sweeps.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"scheduler": "stopped"})
}

func (h *Handler) handleSyncTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	res, err := h.sweeps.SyncTenant(r.Context(), tenantID)
	if err != nil {
		slog.Error("control: manual sync failed", "tenant", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

const (
	defaultListLimit = 50

	// maxListLimit caps the listing page size; the gateway over-fetches by
	// a fixed factor, so an unbounded limit would be an unbounded read.
	maxListLimit = 500
)

func (h *Handler) handleListEmails(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	integrations, err := h.integrations.FindActiveMailIntegrations(r.Context(), tenantID)
	if err != nil {
		slog.Error("control: list integrations failed", "tenant", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	records, err := h.records.ListByIntegrations(r.Context(), tenantID, integrations, limit)
	if err != nil {
		slog.Error("control: list records failed", "tenant", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"emails": records, "count": len(records)})
}

func (h *Handler) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	deleted, err := h.records.DeleteAll(r.Context(), tenantID)
	if err != nil {
		slog.Error("control: delete all failed", "tenant", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) handleDeleteByIntegration(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	integrationID := r.PathValue("integration")
	deleted, err := h.records.DeleteByIntegration(r.Context(), tenantID, integrationID)
	if err != nil {
		slog.Error("control: delete by integration failed",
			"tenant", tenantID,
			"integration", integrationID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	deleted, err := h.records.CleanupOrphaned(r.Context(), tenantID)
	if err != nil {
		slog.Error("control: cleanup failed", "tenant", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("control: write response failed", "error", err)
	}
}
