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

// Package provider defines the adapter contract for fetching recent messages
// from an external mail account. Adapters normalize provider-specific
// payloads into models.RawMessage so the rest of the pipeline is
// provider-agnostic.
package provider

import (
	"context"

	"github.com/dealscope/mailsweep/internal/models"
)

// MailProvider fetches a bounded page of recent inbox messages for one
// connected account.
//
// A transport or auth failure returns a nil slice plus an error. The error
// is recoverable: callers log it and carry on with the sweep — one broken
// provider must never abort a tenant.
type MailProvider interface {
	// Name identifies the provider for scoping and logging.
	Name() models.Source

	// FetchRecent retrieves up to maxResults recent messages using the
	// given access token. The token must be non-empty.
	FetchRecent(ctx context.Context, accessToken string, maxResults int) ([]models.RawMessage, error)
}
