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

package assoc

import (
	"testing"

	"github.com/dealscope/mailsweep/internal/models"
)

// TestResolve_DomainContainsCompany verifies the canonical match:
// alice@acmecorp.com against {company: "Acme Corp"}.
func TestResolve_DomainContainsCompany(t *testing.T) {
	deals := []models.Deal{
		{ID: "d1", Company: "Acme Corp"},
		{ID: "d2", Company: "Beta Holdings"},
	}

	got := Resolve("alice@acmecorp.com", deals)
	if got == nil {
		t.Fatal("expected a match, got nil")
	}
	if got.ID != "d1" {
		t.Errorf("expected d1, got %s", got.ID)
	}
}

// TestResolve_NoMatch verifies an unrelated sender resolves to nil.
func TestResolve_NoMatch(t *testing.T) {
	deals := []models.Deal{{ID: "d1", Company: "Acme Corp"}}

	if got := Resolve("bob@unrelated.io", deals); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

// TestResolve_CompanyContainsStrippedDomain covers the reverse direction:
// company name containing the dot-stripped domain.
func TestResolve_CompanyContainsStrippedDomain(t *testing.T) {
	deals := []models.Deal{{ID: "d1", Company: "Apex IO Industrial"}}

	got := Resolve("sales@apexio.in", deals)
	if got == nil || got.ID != "d1" {
		t.Fatalf("expected d1, got %+v", got)
	}
}

// TestResolve_MissingDomain verifies senders without a usable domain
// short-circuit to nil.
func TestResolve_MissingDomain(t *testing.T) {
	deals := []models.Deal{{ID: "d1", Company: "Acme Corp"}}

	for _, sender := range []string{"", "no-at-sign", "trailing@"} {
		if got := Resolve(sender, deals); got != nil {
			t.Errorf("Resolve(%q) = %+v, want nil", sender, got)
		}
	}
}

// TestResolve_SkipsEmptyCompany verifies deals with no company name are
// never matched.
func TestResolve_SkipsEmptyCompany(t *testing.T) {
	deals := []models.Deal{
		{ID: "d1", Company: ""},
		{ID: "d2", Company: "Acme Corp"},
	}

	got := Resolve("alice@acmecorp.com", deals)
	if got == nil || got.ID != "d2" {
		t.Fatalf("expected d2, got %+v", got)
	}
}

// TestResolve_FirstMatchWins verifies input order is the only tie-break.
func TestResolve_FirstMatchWins(t *testing.T) {
	deals := []models.Deal{
		{ID: "d1", Company: "Acme"},
		{ID: "d2", Company: "Acme Corp"},
	}

	got := Resolve("alice@acmecorp.com", deals)
	if got == nil || got.ID != "d1" {
		t.Fatalf("expected first matching deal d1, got %+v", got)
	}
}

// TestResolve_NoCandidates verifies an empty deal list resolves to nil.
func TestResolve_NoCandidates(t *testing.T) {
	if got := Resolve("alice@acmecorp.com", nil); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}
