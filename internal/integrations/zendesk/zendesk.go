// Package zendesk is a minimal client for the two Zendesk endpoints
// this service touches: custom-field options and bulk ticket updates.
package zendesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"ticketbot/internal/httpx"
)

// TriageTag is applied to tickets the model could not classify.
const TriageTag = "human_triage_required"

type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(subdomain, email, apiToken string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("https://%s.zendesk.com", subdomain),
		email:      email,
		apiToken:   apiToken,
		httpClient: httpx.ExternalHTTPClient(),
		logger:     logger,
	}
}

type fieldOptionsResponse struct {
	CustomFieldOptions []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"custom_field_options"`
}

// FieldOptions fetches the configured option values of a custom ticket
// field. The returned order is Zendesk's display order.
func (c *Client) FieldOptions(ctx context.Context, fieldID string) ([]string, error) {
	apiURL := fmt.Sprintf("%s/api/v2/ticket_fields/%s/options", c.baseURL, url.PathEscape(fieldID))

	body, err := c.do(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}

	var parsed fieldOptionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing field options: %w", err)
	}

	values := make([]string, 0, len(parsed.CustomFieldOptions))
	for _, option := range parsed.CustomFieldOptions {
		if option.Value != "" {
			values = append(values, option.Value)
		}
	}
	return values, nil
}

type ticketUpdate struct {
	ID             string        `json:"id"`
	CustomFields   []customField `json:"custom_fields,omitempty"`
	AdditionalTags []string      `json:"additional_tags,omitempty"`
}

type customField struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

type updateManyRequest struct {
	Tickets []ticketUpdate `json:"tickets"`
}

// SetTicketCategory writes the resolved category into the ticket's
// custom field via the bulk update endpoint.
func (c *Client) SetTicketCategory(ctx context.Context, ticketID, fieldID, category string) error {
	payload := updateManyRequest{
		Tickets: []ticketUpdate{{
			ID:           ticketID,
			CustomFields: []customField{{ID: fieldID, Value: category}},
		}},
	}
	return c.updateMany(ctx, ticketID, payload)
}

// TagForTriage marks a ticket for a human instead of writing a
// category. Used when the classifier resolves to unknown.
func (c *Client) TagForTriage(ctx context.Context, ticketID string) error {
	payload := updateManyRequest{
		Tickets: []ticketUpdate{{
			ID:             ticketID,
			AdditionalTags: []string{TriageTag},
		}},
	}
	return c.updateMany(ctx, ticketID, payload)
}

func (c *Client) updateMany(ctx context.Context, ticketID string, payload updateManyRequest) error {
	apiURL := fmt.Sprintf("%s/api/v2/tickets/update_many?ids=%s", c.baseURL, url.QueryEscape(ticketID))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling ticket update: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPut, apiURL, body); err != nil {
		return err
	}
	c.logger.Info("zendesk ticket updated", zap.String("ticket_id", ticketID))
	return nil
}

func (c *Client) do(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.email+"/token", c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Zendesk API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
