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

// Package models defines the data structures shared across the sweep pipeline.
package models

import "time"

// Source identifies which mail provider a message came from.
type Source string

const (
	SourceGmail   Source = "gmail"
	SourceOutlook Source = "outlook"
)

// Category is the business classification of a message. Exactly one is
// assigned per message.
type Category string

const (
	CategoryDeal     Category = "deal"
	CategoryInvestor Category = "investor"
	CategoryBroker   Category = "broker"
)

// SubCategory refines a Category. The valid values depend on the category:
// deal messages use response-received / due-diligence / ioi-loi / all,
// investor and broker messages use response-received / closing / all.
type SubCategory string

const (
	SubAll              SubCategory = "all"
	SubResponseReceived SubCategory = "response-received"
	SubDueDiligence     SubCategory = "due-diligence"
	SubIOILOI           SubCategory = "ioi-loi"
	SubClosing          SubCategory = "closing"
)

// ValidFor reports whether the sub-category is a legal refinement of the
// given category.
func (s SubCategory) ValidFor(c Category) bool {
	switch c {
	case CategoryDeal:
		return s == SubAll || s == SubResponseReceived || s == SubDueDiligence || s == SubIOILOI
	case CategoryInvestor, CategoryBroker:
		return s == SubAll || s == SubResponseReceived || s == SubClosing
	}
	return false
}

// Sentiment is the traffic-light read of a message's tone.
type Sentiment string

const (
	SentimentRed    Sentiment = "RED"
	SentimentYellow Sentiment = "YELLOW"
	SentimentGreen  Sentiment = "GREEN"
)

// RawMessage is a provider-agnostic message produced by a mail adapter and
// consumed within a single sweep. It is never persisted as-is.
//
// ExternalID is unique within a provider + tenant scope, but NOT globally
// unique across providers.
type RawMessage struct {
	ExternalID string
	ThreadID   string
	Source     Source
	Sender     string
	Recipient  string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Extracted holds the category-dependent structured fields pulled out of a
// message. Fields not applicable to the category stay zero.
type Extracted struct {
	CompanyName     string  `json:"company_name,omitempty"`
	DealValue       float64 `json:"deal_value,omitempty"`
	CounterpartName string  `json:"counterpart_name,omitempty"`
}

// Classification is the classifier's verdict on a single message.
// Confidence is always within [0, 1].
type Classification struct {
	Category    Category
	SubCategory SubCategory
	Confidence  float64
	Sentiment   Sentiment
	Extracted   Extracted
}

// StatusProcessed marks a record that has been through the full pipeline.
const StatusProcessed = "processed"

// EmailRecord is the persisted result of classifying and associating one
// message. Created once by the pipeline, never mutated afterwards; removed
// only by operator-triggered bulk deletion.
//
// IntegrationID is nil for legacy records created before integration-scoped
// storage existed. AssociatedDealID / AssociatedDealCompany are nil when no
// deal matched — the columns are still written explicitly so every record
// carries the same shape.
type EmailRecord struct {
	ID                    string      `json:"id"`
	TenantID              string      `json:"tenant_id"`
	IntegrationID         *string     `json:"integration_id"`
	Sender                string      `json:"sender"`
	Recipient             string      `json:"recipient"`
	Subject               string      `json:"subject"`
	Body                  string      `json:"body"`
	ReceivedAt            time.Time   `json:"received_at"`
	MessageID             string      `json:"message_id"`
	ThreadID              string      `json:"thread_id"`
	Source                Source      `json:"source"`
	Category              Category    `json:"category"`
	SubCategory           SubCategory `json:"sub_category"`
	Confidence            float64     `json:"confidence"`
	Sentiment             Sentiment   `json:"sentiment"`
	AssociatedDealID      *string     `json:"associated_deal_id"`
	AssociatedDealCompany *string     `json:"associated_deal_company"`
	Status                string      `json:"status"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Integration is a connected external mail account. Owned by the wider CRM;
// the pipeline only reads it for the access token and scoping key.
type Integration struct {
	ID          string
	TenantID    string
	Provider    Source
	AccessToken string
	IsActive    bool
}

// Deal is the candidate record for sender association. Owned by the wider
// CRM; read-only here.
type Deal struct {
	ID      string
	Company string
}
