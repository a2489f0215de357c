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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dealscope/mailsweep/internal/models"
	"github.com/dealscope/mailsweep/internal/provider"
)

type fakeTenants struct {
	tenants []string
	err     error
	calls   int
}

func (f *fakeTenants) ListTenantsWithMailIntegration(context.Context) ([]string, error) {
	f.calls++
	return f.tenants, f.err
}

type fakeIntegrations struct {
	byTenant map[string][]models.Integration
	errFor   map[string]error
}

func (f *fakeIntegrations) FindActiveMailIntegrations(_ context.Context, tenantID string) ([]models.Integration, error) {
	if err := f.errFor[tenantID]; err != nil {
		return nil, err
	}
	return f.byTenant[tenantID], nil
}

type fakeProvider struct {
	name models.Source
	msgs []models.RawMessage
	err  error
}

func (f *fakeProvider) Name() models.Source { return f.name }

func (f *fakeProvider) FetchRecent(context.Context, string, int) ([]models.RawMessage, error) {
	return f.msgs, f.err
}

type fakeStore struct {
	stored  []models.EmailRecord
	failIDs map[string]bool
}

func (f *fakeStore) Store(_ context.Context, tenantID, integrationID string, msg models.RawMessage, cls models.Classification) (*models.EmailRecord, error) {
	if f.failIDs[msg.ExternalID] {
		return nil, errors.New("insert failed")
	}
	rec := models.EmailRecord{
		ID:            fmt.Sprintf("rec-%s", msg.ExternalID),
		TenantID:      tenantID,
		IntegrationID: &integrationID,
		MessageID:     msg.ExternalID,
		Category:      cls.Category,
		Sentiment:     cls.Sentiment,
	}
	f.stored = append(f.stored, rec)
	return &rec, nil
}

type fakeSeen struct {
	dupes   map[string]bool
	err     error
	forgets []string
}

func (f *fakeSeen) IsNew(_ context.Context, _ models.Source, _ string, externalID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.dupes[externalID] {
		return false, nil
	}
	// Mirror SETNX: reporting new marks the message as seen.
	if f.dupes == nil {
		f.dupes = make(map[string]bool)
	}
	f.dupes[externalID] = true
	return true, nil
}

func (f *fakeSeen) Forget(_ context.Context, _ models.Source, _ string, externalID string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.dupes, externalID)
	f.forgets = append(f.forgets, externalID)
	return nil
}

type fakeNotifier struct {
	published []string
	err       error
}

func (f *fakeNotifier) PublishRecordStored(_ context.Context, rec *models.EmailRecord) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, rec.ID)
	return nil
}

func msg(id, sender string) models.RawMessage {
	return models.RawMessage{
		ExternalID: id,
		Source:     models.SourceGmail,
		Sender:     sender,
		Subject:    "acquisition opportunity",
		Body:       "term sheet attached",
		ReceivedAt: time.Now(),
	}
}

// newScheduler takes notify as the interface, not the fake's pointer type:
// tests that run without a notifier pass nil and the scheduler must see a
// nil interface, not a typed nil wrapped in one.
func newScheduler(tenants *fakeTenants, integrations *fakeIntegrations, st *fakeStore, seen *fakeSeen, notify Notifier, providers ...provider.MailProvider) *Scheduler {
	return New(Deps{
		Tenants:      tenants,
		Integrations: integrations,
		Records:      st,
		Seen:         seen,
		Notify:       notify,
		Providers:    providers,
	}, time.Hour, 50)
}

// TestStartIsIdempotent verifies a second Start while running is a no-op:
// exactly one immediate sweep happens.
func TestStartIsIdempotent(t *testing.T) {
	tenants := &fakeTenants{tenants: []string{"t1"}}
	integrations := &fakeIntegrations{}
	s := newScheduler(tenants, integrations, &fakeStore{}, &fakeSeen{}, nil)

	s.Start(context.Background())
	defer s.Stop()
	s.Start(context.Background())

	if !s.IsRunning() {
		t.Fatal("scheduler should be running")
	}
	// The interval is an hour, so only the immediate sweeps can have fired.
	if tenants.calls != 1 {
		t.Errorf("expected 1 sweep, got %d", tenants.calls)
	}
}

func TestStop(t *testing.T) {
	s := newScheduler(&fakeTenants{}, &fakeIntegrations{}, &fakeStore{}, &fakeSeen{}, nil)
	s.Start(context.Background())
	s.Stop()
	if s.IsRunning() {
		t.Fatal("scheduler should be stopped")
	}
	// Stopping again is harmless.
	s.Stop()
}

// TestSweep_TenantFailureIsolation verifies one tenant's directory failure
// does not block the other tenants.
func TestSweep_TenantFailureIsolation(t *testing.T) {
	tenants := &fakeTenants{tenants: []string{"broken", "healthy"}}
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"healthy": {{ID: "int-1", TenantID: "healthy", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true}},
		},
		errFor: map[string]error{"broken": errors.New("directory down")},
	}
	st := &fakeStore{}
	p := &fakeProvider{name: models.SourceGmail, msgs: []models.RawMessage{
		msg("m1", "a@x.com"),
		msg("m2", "b@y.com"),
	}}

	s := newScheduler(tenants, integrations, st, &fakeSeen{}, nil, p)
	results := s.Sweep(context.Background())

	if len(results) != 1 || results[0].TenantID != "healthy" {
		t.Fatalf("expected only the healthy tenant in results, got %+v", results)
	}
	if results[0].Stored != 2 {
		t.Errorf("expected 2 stored, got %d", results[0].Stored)
	}
	if len(st.stored) != 2 {
		t.Errorf("expected 2 records, got %d", len(st.stored))
	}
}

// TestSyncTenant_FetchFailureSkipsIntegration verifies a broken provider
// fetch is absorbed and the other integration still syncs.
func TestSyncTenant_FetchFailureSkipsIntegration(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {
				{ID: "int-gmail", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true},
				{ID: "int-outlook", Provider: models.SourceOutlook, AccessToken: "tok", IsActive: true},
			},
		},
	}
	st := &fakeStore{}
	broken := &fakeProvider{name: models.SourceGmail, err: errors.New("HTTP 401")}
	working := &fakeProvider{name: models.SourceOutlook, msgs: []models.RawMessage{msg("o1", "lp@cap.com")}}

	s := newScheduler(&fakeTenants{}, integrations, st, &fakeSeen{}, nil, broken, working)
	res, err := s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored != 1 || res.Fetched != 1 {
		t.Errorf("expected the outlook message stored, got %+v", res)
	}
}

// TestSyncTenant_StoreFailureIsolation verifies a message that fails to
// store does not block the rest of the page.
func TestSyncTenant_StoreFailureIsolation(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {{ID: "int-1", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true}},
		},
	}
	st := &fakeStore{failIDs: map[string]bool{"bad": true}}
	p := &fakeProvider{name: models.SourceGmail, msgs: []models.RawMessage{
		msg("bad", "a@x.com"),
		msg("good", "b@y.com"),
	}}

	s := newScheduler(&fakeTenants{}, integrations, st, &fakeSeen{}, nil, p)
	res, err := s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored != 1 || res.Failed != 1 {
		t.Errorf("expected 1 stored + 1 failed, got %+v", res)
	}
	if len(st.stored) != 1 || st.stored[0].MessageID != "good" {
		t.Errorf("expected only the good message stored, got %+v", st.stored)
	}
}

// TestSyncTenant_NoNotifierStoresMessages verifies a scheduler wired
// without a notifier stores messages instead of panicking on the nil
// dependency.
func TestSyncTenant_NoNotifierStoresMessages(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {{ID: "int-1", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true}},
		},
	}
	st := &fakeStore{}
	p := &fakeProvider{name: models.SourceGmail, msgs: []models.RawMessage{msg("m1", "a@x.com")}}

	s := newScheduler(&fakeTenants{}, integrations, st, &fakeSeen{}, nil, p)
	res, err := s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored != 1 {
		t.Errorf("expected 1 stored, got %+v", res)
	}
}

// TestSyncTenant_StoreFailureUnmarksSeen verifies a message that failed to
// store is forgotten by the seen filter, so the next sweep retries it
// instead of losing it for the TTL window.
func TestSyncTenant_StoreFailureUnmarksSeen(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {{ID: "int-1", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true}},
		},
	}
	st := &fakeStore{failIDs: map[string]bool{"flaky": true}}
	seen := &fakeSeen{}
	p := &fakeProvider{name: models.SourceGmail, msgs: []models.RawMessage{msg("flaky", "a@x.com")}}

	s := newScheduler(&fakeTenants{}, integrations, st, seen, nil, p)

	res, err := s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failed != 1 || res.Stored != 0 {
		t.Fatalf("expected the store failure counted, got %+v", res)
	}
	if len(seen.forgets) != 1 || seen.forgets[0] != "flaky" {
		t.Fatalf("expected the message unmarked after the store failure, got %v", seen.forgets)
	}

	// The store recovers; the next sweep must pick the message up again.
	st.failIDs = nil
	res, err = s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored != 1 || res.Skipped != 0 {
		t.Errorf("expected the message stored on retry, got %+v", res)
	}
}

// TestSyncTenant_DedupSkipsSeenMessages verifies seen messages are counted
// as skipped, not re-stored.
func TestSyncTenant_DedupSkipsSeenMessages(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {{ID: "int-1", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true}},
		},
	}
	st := &fakeStore{}
	p := &fakeProvider{name: models.SourceGmail, msgs: []models.RawMessage{
		msg("seen-before", "a@x.com"),
		msg("fresh", "b@y.com"),
	}}

	s := newScheduler(&fakeTenants{}, integrations, st, &fakeSeen{dupes: map[string]bool{"seen-before": true}}, nil, p)
	res, err := s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped != 1 || res.Stored != 1 {
		t.Errorf("expected 1 skipped + 1 stored, got %+v", res)
	}
}

// TestSyncTenant_DedupFailureTreatsAsNew verifies a down filter never drops
// mail.
func TestSyncTenant_DedupFailureTreatsAsNew(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {{ID: "int-1", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true}},
		},
	}
	st := &fakeStore{}
	p := &fakeProvider{name: models.SourceGmail, msgs: []models.RawMessage{msg("m1", "a@x.com")}}

	s := newScheduler(&fakeTenants{}, integrations, st, &fakeSeen{err: errors.New("redis down")}, nil, p)
	res, err := s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored != 1 {
		t.Errorf("expected the message stored despite the filter failure, got %+v", res)
	}
}

// TestSyncTenant_NotifyFailureIsAbsorbed verifies a publish failure does
// not fail the sync; the record is already durable.
func TestSyncTenant_NotifyFailureIsAbsorbed(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {{ID: "int-1", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true}},
		},
	}
	st := &fakeStore{}
	p := &fakeProvider{name: models.SourceGmail, msgs: []models.RawMessage{msg("m1", "a@x.com")}}

	s := newScheduler(&fakeTenants{}, integrations, st, &fakeSeen{}, &fakeNotifier{err: errors.New("redis down")}, p)
	res, err := s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored != 1 {
		t.Errorf("expected 1 stored, got %+v", res)
	}
}

// TestSyncTenant_NotifiesStoredRecords verifies notifications fire per
// stored record.
func TestSyncTenant_NotifiesStoredRecords(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {{ID: "int-1", Provider: models.SourceGmail, AccessToken: "tok", IsActive: true}},
		},
	}
	st := &fakeStore{}
	notify := &fakeNotifier{}
	p := &fakeProvider{name: models.SourceGmail, msgs: []models.RawMessage{
		msg("m1", "a@x.com"),
		msg("m2", "b@y.com"),
	}}

	s := newScheduler(&fakeTenants{}, integrations, st, &fakeSeen{}, notify, p)
	if _, err := s.SyncTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notify.published) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(notify.published))
	}
}

// TestSyncTenant_UnknownProvider verifies an integration with no registered
// adapter is skipped, not fatal.
func TestSyncTenant_UnknownProvider(t *testing.T) {
	integrations := &fakeIntegrations{
		byTenant: map[string][]models.Integration{
			"t1": {{ID: "int-1", Provider: "imap", AccessToken: "tok", IsActive: true}},
		},
	}
	s := newScheduler(&fakeTenants{}, integrations, &fakeStore{}, &fakeSeen{}, nil)
	res, err := s.SyncTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fetched != 0 {
		t.Errorf("expected nothing fetched, got %+v", res)
	}
}
