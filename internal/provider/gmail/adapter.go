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

// Package gmail implements the mail provider adapter for the Gmail REST API.
// The inbox scope is expressed as an explicit query string that excludes the
// promotions / social / updates / forums tabs, so only primary-inbox mail
// reaches the classifier.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/dealscope/mailsweep/internal/models"
)

// DefaultBaseURL is the production Gmail API endpoint.
const DefaultBaseURL = "https://gmail.googleapis.com"

// inboxQuery scopes the list call to the primary inbox.
const inboxQuery = "in:inbox -category:promotions -category:social -category:updates -category:forums"

// Adapter fetches recent messages from the Gmail API.
type Adapter struct {
	baseURL string
}

// New creates a Gmail adapter. baseURL overrides the API endpoint for tests;
// pass DefaultBaseURL in production.
func New(baseURL string) *Adapter {
	return &Adapter{baseURL: baseURL}
}

// Name implements provider.MailProvider.
func (a *Adapter) Name() models.Source { return models.SourceGmail }

// listResponse is a page of the users.messages.list endpoint.
type listResponse struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
}

// gmailMessage holds the fields we need from users.messages.get.
type gmailMessage struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		MimeType string `json:"mimeType"`
		Headers  []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		Body struct {
			Data string `json:"data"`
		} `json:"body"`
		Parts []struct {
			MimeType string `json:"mimeType"`
			Body     struct {
				Data string `json:"data"`
			} `json:"body"`
		} `json:"parts"`
	} `json:"payload"`
}

// FetchRecent lists up to maxResults primary-inbox messages and fetches each
// one in full. A message that fails to fetch is logged and skipped; only a
// failure of the list call itself surfaces as an error.
func (a *Adapter) FetchRecent(ctx context.Context, accessToken string, maxResults int) ([]models.RawMessage, error) {
	if accessToken == "" {
		return nil, errors.New("gmail: empty access token")
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
	}))

	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("q", inboxQuery)
	listURL := fmt.Sprintf("%s/gmail/v1/users/me/messages?%s", a.baseURL, params.Encode())

	var page listResponse
	if err := a.getJSON(ctx, client, listURL, &page); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]models.RawMessage, 0, len(page.Messages))
	for _, stub := range page.Messages {
		getURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s?format=full", a.baseURL, stub.ID)

		var full gmailMessage
		if err := a.getJSON(ctx, client, getURL, &full); err != nil {
			slog.Warn("gmail: fetch message failed",
				"message_id", stub.ID,
				"error", err,
			)
			continue
		}

		messages = append(messages, normalize(full))
	}

	return messages, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (a *Adapter) getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gmail API returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// normalize converts a Gmail message into the provider-agnostic shape.
func normalize(m gmailMessage) models.RawMessage {
	headers := make(map[string]string, len(m.Payload.Headers))
	for _, h := range m.Payload.Headers {
		headers[h.Name] = h.Value
	}

	return models.RawMessage{
		ExternalID: m.ID,
		ThreadID:   m.ThreadID,
		Source:     models.SourceGmail,
		Sender:     bareAddress(headers["From"]),
		Recipient:  bareAddress(headers["To"]),
		Subject:    headers["Subject"],
		Body:       extractBody(m),
		ReceivedAt: parseInternalDate(m.InternalDate),
	}
}

// bareAddress reduces a "Display Name <addr@host>" header to addr@host.
// Unparseable headers pass through unchanged.
func bareAddress(header string) string {
	if header == "" {
		return ""
	}
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return header
	}
	return addr.Address
}

// extractBody decodes the message body. Single-part messages carry the data
// directly; multipart messages use the first text/plain part.
func extractBody(m gmailMessage) string {
	if m.Payload.Body.Data != "" {
		return decodeBody(m.Payload.Body.Data)
	}
	for _, part := range m.Payload.Parts {
		if part.MimeType == "text/plain" && part.Body.Data != "" {
			return decodeBody(part.Body.Data)
		}
	}
	return ""
}

// decodeBody decodes Gmail's base64url body data, with and without padding.
func decodeBody(data string) string {
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

// parseInternalDate converts Gmail's millisecond-epoch string timestamp.
func parseInternalDate(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
