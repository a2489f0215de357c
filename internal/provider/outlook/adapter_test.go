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

package outlook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dealscope/mailsweep/internal/models"
)

const pageFixture = `{
	"value": [
		{
			"id": "AAMk-1",
			"conversationId": "conv-1",
			"subject": "IOI for Apex Industrial",
			"from": {"emailAddress": {"address": "broker@intermediary.com", "name": "Pat Broker"}},
			"toRecipients": [{"emailAddress": {"address": "searcher@fund.com", "name": "Searcher"}}],
			"body": {"contentType": "text", "content": "please find our IOI attached"},
			"receivedDateTime": "2026-08-27T15:04:05Z"
		},
		{
			"id": "AAMk-2",
			"conversationId": "conv-2",
			"subject": "re: fund update",
			"from": {"emailAddress": {"address": "lp@capital.com"}},
			"toRecipients": [],
			"body": {"contentType": "text", "content": "thanks"},
			"receivedDateTime": "2026-08-27T14:00:00Z"
		}
	]
}`

// TestFetchRecent verifies the unread filter, ordering, paging cap, and
// normalization of the Graph payload.
func TestFetchRecent(t *testing.T) {
	var query map[string]string
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		authHeader = r.Header.Get("Authorization")
		query = map[string]string{
			"$filter":  r.URL.Query().Get("$filter"),
			"$orderby": r.URL.Query().Get("$orderby"),
			"$top":     r.URL.Query().Get("$top"),
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, pageFixture)
	}))
	defer server.Close()

	a := New(server.URL)
	msgs, err := a.FetchRecent(context.Background(), "tok-ms", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if authHeader != "Bearer tok-ms" {
		t.Errorf("expected bearer auth, got %q", authHeader)
	}
	if query["$filter"] != "isRead eq false" {
		t.Errorf("expected unread filter, got %q", query["$filter"])
	}
	if query["$orderby"] != "receivedDateTime desc" {
		t.Errorf("expected recency ordering, got %q", query["$orderby"])
	}
	if query["$top"] != "50" {
		t.Errorf("expected $top=50, got %q", query["$top"])
	}

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	m := msgs[0]
	if m.Source != models.SourceOutlook {
		t.Errorf("expected outlook source, got %s", m.Source)
	}
	if m.ExternalID != "AAMk-1" || m.ThreadID != "conv-1" {
		t.Errorf("unexpected IDs: %+v", m)
	}
	if m.Sender != "broker@intermediary.com" || m.Recipient != "searcher@fund.com" {
		t.Errorf("unexpected addresses: %+v", m)
	}
	want := time.Date(2026, 8, 27, 15, 4, 5, 0, time.UTC)
	if !m.ReceivedAt.Equal(want) {
		t.Errorf("expected receivedAt %v, got %v", want, m.ReceivedAt)
	}

	// Missing recipients normalize to empty, not a panic.
	if msgs[1].Recipient != "" {
		t.Errorf("expected empty recipient, got %q", msgs[1].Recipient)
	}
}

// TestFetchRecent_AuthError verifies a rejected token surfaces as an error
// with no messages.
func TestFetchRecent_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	a := New(server.URL)
	msgs, err := a.FetchRecent(context.Background(), "expired", 50)
	if err == nil {
		t.Fatal("expected error for HTTP 401, got nil")
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

// TestFetchRecent_EmptyToken verifies the token precondition.
func TestFetchRecent_EmptyToken(t *testing.T) {
	a := New("http://unused")
	if _, err := a.FetchRecent(context.Background(), "", 50); err == nil {
		t.Fatal("expected error for empty token")
	}
}
