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

// Package outlook implements the mail provider adapter for the Microsoft
// Graph API. The inbox scope is a server-side unread filter ordered by
// receipt time, so one page covers the most recent unseen mail.
package outlook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/dealscope/mailsweep/internal/models"
)

// DefaultBaseURL is the production Graph API endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Adapter fetches recent messages from the Graph API.
type Adapter struct {
	baseURL string
}

// New creates an Outlook adapter. baseURL overrides the API endpoint for
// tests; pass DefaultBaseURL in production.
func New(baseURL string) *Adapter {
	return &Adapter{baseURL: baseURL}
}

// Name implements provider.MailProvider.
func (a *Adapter) Name() models.Source { return models.SourceOutlook }

// graphMessage holds the relevant fields of a Graph API message.
type graphMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Subject        string `json:"subject"`
	From           struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ReceivedDateTime string `json:"receivedDateTime"`
}

// messagesResponse is a page of the /me/messages endpoint.
type messagesResponse struct {
	Value []graphMessage `json:"value"`
}

// FetchRecent retrieves up to maxResults unread messages, newest first.
func (a *Adapter) FetchRecent(ctx context.Context, accessToken string, maxResults int) ([]models.RawMessage, error) {
	if accessToken == "" {
		return nil, errors.New("outlook: empty access token")
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
	}))

	params := url.Values{}
	params.Set("$filter", "isRead eq false")
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$top", strconv.Itoa(maxResults))
	params.Set("$select", "id,conversationId,subject,from,toRecipients,body,receivedDateTime")
	listURL := fmt.Sprintf("%s/me/messages?%s", a.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "outlook.body-content-type=\"text\"")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("graph API returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var page messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	messages := make([]models.RawMessage, 0, len(page.Value))
	for _, m := range page.Value {
		messages = append(messages, normalize(m))
	}
	return messages, nil
}

// normalize converts a Graph message into the provider-agnostic shape.
func normalize(m graphMessage) models.RawMessage {
	recipient := ""
	if len(m.ToRecipients) > 0 {
		recipient = m.ToRecipients[0].EmailAddress.Address
	}

	receivedAt, _ := time.Parse(time.RFC3339, m.ReceivedDateTime)

	return models.RawMessage{
		ExternalID: m.ID,
		ThreadID:   m.ConversationID,
		Source:     models.SourceOutlook,
		Sender:     m.From.EmailAddress.Address,
		Recipient:  recipient,
		Subject:    m.Subject,
		Body:       m.Body.Content,
		ReceivedAt: receivedAt,
	}
}
