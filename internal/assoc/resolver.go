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

// Package assoc links an inbound message to an existing deal by matching the
// sender's domain against deal company names. Best-effort: false positives
// and negatives are expected and acceptable.
package assoc

import (
	"strings"

	"github.com/dealscope/mailsweep/internal/models"
)

// Resolve returns the first deal whose company name matches the sender's
// domain, or nil when nothing matches. Candidates are checked in their given
// order — there is no best-match scoring.
//
// A match means the email domain contains the whitespace-stripped lowercase
// company name, or the company name contains the domain with its dots
// stripped. Absence of a match is success, not an error.
func Resolve(sender string, deals []models.Deal) *models.Deal {
	parts := strings.Split(sender, "@")
	if len(parts) < 2 || parts[1] == "" {
		return nil
	}
	domain := strings.ToLower(parts[1])
	flatDomain := strings.ReplaceAll(domain, ".", "")

	for i := range deals {
		if deals[i].Company == "" {
			continue
		}
		company := normalizeCompany(deals[i].Company)
		if strings.Contains(domain, company) || strings.Contains(company, flatDomain) {
			return &deals[i]
		}
	}
	return nil
}

// normalizeCompany lowercases and strips all whitespace from a company name.
func normalizeCompany(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}
