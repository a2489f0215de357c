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

// Package dedup provides message deduplication using a Redis SET with TTL.
// Every sweep re-reads the same recent-inbox window, so without this filter
// the same message would be stored again on each interval.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealscope/mailsweep/internal/models"
)

const (
	// DefaultTTL is how long we remember a seen message. The sweep window
	// only covers recent mail, so a week comfortably outlives it.
	DefaultTTL = 7 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "mailsweep:seen:"
)

// Filter tracks which provider message IDs have already been stored.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the message has NOT been seen before for this
// tenant. If true, the message is marked as seen atomically (SETNX).
// Provider message IDs are only unique per source + tenant, so the key
// carries all three.
func (f *Filter) IsNew(ctx context.Context, source models.Source, tenantID, externalID string) (bool, error) {
	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := f.rdb.SetNX(ctx, f.key(source, tenantID, externalID), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}

// Forget removes the seen mark so a later sweep retries the message. IsNew
// marks before the message is processed, so a processing failure has to
// unmark or the message stays invisible for the full TTL.
func (f *Filter) Forget(ctx context.Context, source models.Source, tenantID, externalID string) error {
	if err := f.rdb.Del(ctx, f.key(source, tenantID, externalID)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}

func (f *Filter) key(source models.Source, tenantID, externalID string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, source, tenantID, externalID)
}
