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

// Package queue publishes stored-record notifications to a Redis list.
// The CRM's activity-feed worker consumes the list and surfaces new
// classified mail to users.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dealscope/mailsweep/internal/models"
)

// Publisher sends record-stored notifications to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a Redis publisher targeting the specified list.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// notification is the compact envelope the downstream worker consumes. The
// record body stays in Postgres; the worker fetches it by ID when needed.
type notification struct {
	ID         string  `json:"id"`
	RecordID   string  `json:"record_id"`
	TenantID   string  `json:"tenant_id"`
	Category   string  `json:"category"`
	Sentiment  string  `json:"sentiment"`
	DealID     *string `json:"deal_id"`
	ReceivedAt string  `json:"received_at"`
}

// PublishRecordStored notifies downstream consumers that a classified email
// record was persisted. Failures here are the caller's to log and absorb:
// the record is already durable.
func (p *Publisher) PublishRecordStored(ctx context.Context, rec *models.EmailRecord) error {
	n := notification{
		ID:         uuid.NewString(),
		RecordID:   rec.ID,
		TenantID:   rec.TenantID,
		Category:   string(rec.Category),
		Sentiment:  string(rec.Sentiment),
		DealID:     rec.AssociatedDealID,
		ReceivedAt: rec.ReceivedAt.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published record notification",
		"record_id", rec.ID,
		"tenant", rec.TenantID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
