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

// Package classifier assigns a business category, sub-category, confidence,
// sentiment, and extracted fields to a raw message using deterministic
// keyword scoring. Classify is a pure function: no I/O, no error channel —
// absent matches fall through to default values.
package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dealscope/mailsweep/internal/models"
)

var dealKeywords = []string{
	"deal", "investment", "due diligence", "term sheet", "closing",
	"acquisition", "merger", "ioi", "loi", "letter of intent",
	"funding", "series a", "series b", "valuation",
}

var investorKeywords = []string{
	"investor", "lp", "limited partner", "fund", "commitment",
	"portfolio", "returns", "irr", "distribution", "capital call",
	"allocation", "commitment",
}

var brokerKeywords = []string{
	"broker", "intermediary", "placement agent", "advisor", "consultant",
	"facilitator", "matchmaker", "introduction", "referral",
}

var positiveWords = []string{
	"interested", "excited", "great", "excellent", "yes",
	"sounds good", "definitely", "absolutely", "perfect",
}

var negativeWords = []string{
	"not interested", "no", "decline", "reject", "unfortunately",
	"pass", "not now", "maybe later",
}

// defaultConfidence is assigned when no keyword list scores at all.
const defaultConfidence = 0.3

var (
	companyNamePattern = regexp.MustCompile(`([A-Z][a-z]+ [A-Z][a-z]+)`)
	dealValuePattern   = regexp.MustCompile(`\$(\d+(?:\.\d+)?)([mMbB])`)
)

// Classify scores the message against the three category keyword lists and
// produces the full classification.
//
// Tie-break order is load-bearing: broker wins only on a strict majority over
// both other lists, investor beats deal, deal is the fallback. Confidence is
// the winning score divided by that category's OWN list length — it is
// deliberately not normalized across categories.
func Classify(msg models.RawMessage) models.Classification {
	content := strings.ToLower(msg.Subject + " " + msg.Body)

	dealScore := keywordScore(content, dealKeywords)
	investorScore := keywordScore(content, investorKeywords)
	brokerScore := keywordScore(content, brokerKeywords)

	var category models.Category
	var confidence float64

	switch {
	case brokerScore > investorScore && brokerScore > dealScore && brokerScore > 0:
		category = models.CategoryBroker
		confidence = float64(brokerScore) / float64(len(brokerKeywords))
	case investorScore > dealScore && investorScore > 0:
		category = models.CategoryInvestor
		confidence = float64(investorScore) / float64(len(investorKeywords))
	case dealScore > 0:
		category = models.CategoryDeal
		confidence = float64(dealScore) / float64(len(dealKeywords))
	default:
		category = models.CategoryDeal
		confidence = defaultConfidence
	}

	return models.Classification{
		Category:    category,
		SubCategory: subCategoryOf(content, category),
		Confidence:  confidence,
		Sentiment:   sentimentOf(content),
		Extracted:   extract(msg, category),
	}
}

// keywordScore counts how many list entries occur in the text. Each entry
// contributes at most 1 no matter how often it repeats.
func keywordScore(content string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			score++
		}
	}
	return score
}

// subCategoryOf applies the ordered sub-category rules for the winning
// category. First matching rule wins; order matters.
func subCategoryOf(content string, category models.Category) models.SubCategory {
	if category == models.CategoryDeal {
		switch {
		case containsAny(content, "response", "interested", "yes", "reply"):
			return models.SubResponseReceived
		case containsAny(content, "due diligence", "diligence", "review", "analysis"):
			return models.SubDueDiligence
		case containsAny(content, "ioi", "loi", "letter of intent", "letter of interest"):
			return models.SubIOILOI
		}
		return models.SubAll
	}

	switch {
	case containsAny(content, "response", "interested", "yes", "reply"):
		return models.SubResponseReceived
	case containsAny(content, "closing", "commit", "final", "execute"):
		return models.SubClosing
	}
	return models.SubAll
}

// sentimentOf scans the positive and negative phrase lists over the same
// lowercased text. A negative majority is RED, a positive majority GREEN,
// a tie (including zero hits on both) YELLOW.
func sentimentOf(content string) models.Sentiment {
	positive := keywordScore(content, positiveWords)
	negative := keywordScore(content, negativeWords)

	switch {
	case negative > positive:
		return models.SentimentRed
	case positive > negative:
		return models.SentimentGreen
	}
	return models.SentimentYellow
}

// extract pulls the category-dependent structured fields.
//
// Company name and deal value are matched against the raw (not lowercased)
// body; investor and broker messages instead carry the counterpart display
// name derived from the sender's local part.
func extract(msg models.RawMessage, category models.Category) models.Extracted {
	if category == models.CategoryDeal {
		return models.Extracted{
			CompanyName: extractCompanyName(msg.Body),
			DealValue:   extractDealValue(msg.Body),
		}
	}
	return models.Extracted{
		CounterpartName: localPart(msg.Sender),
	}
}

// extractCompanyName finds the first pair of capitalized words in the body.
// Empty string if nothing matches.
func extractCompanyName(body string) string {
	return companyNamePattern.FindString(body)
}

// extractDealValue finds the first $<number>[m|b] amount, scaled to dollars.
// Zero if nothing matches.
func extractDealValue(body string) float64 {
	m := dealValuePattern.FindStringSubmatch(body)
	if m == nil {
		return 0
	}
	// The pattern guarantees a parseable number.
	value, _ := strconv.ParseFloat(m[1], 64)
	if strings.EqualFold(m[2], "m") {
		return value * 1_000_000
	}
	return value * 1_000_000_000
}

func localPart(sender string) string {
	name, _, _ := strings.Cut(sender, "@")
	return name
}

func containsAny(content string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(content, t) {
			return true
		}
	}
	return false
}
