// Package platform implements the adapter interfaces against the platform's
// internal REST API: email delivery, tag mutations, subscriber and template
// reads.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/letterflow/letterflow/pkg/adapters"
)

const defaultTimeout = 15 * time.Second

// Client talks to the platform's internal API. The zero value is not usable;
// construct it with NewClient.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Send delivers one rendered email. Platform 4xx responses are permanent
// delivery failures; 5xx and transport errors are transient.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	body := map[string]string{
		"to":        to,
		"subject":   subject,
		"html_body": htmlBody,
	}

	var response struct {
		DeliveryID string `json:"delivery_id"`
	}

	err := c.do(ctx, http.MethodPost, "/internal/emails", body, &response)
	if err != nil {
		return "", c.asDeliveryError(err)
	}

	return response.DeliveryID, nil
}

func (c *Client) AddTag(ctx context.Context, contactID, tagID string) error {
	path := fmt.Sprintf("/internal/contacts/%s/tags/%s", url.PathEscape(contactID), url.PathEscape(tagID))

	return c.do(ctx, http.MethodPut, path, nil, nil)
}

func (c *Client) RemoveTag(ctx context.Context, contactID, tagID string) error {
	path := fmt.Sprintf("/internal/contacts/%s/tags/%s", url.PathEscape(contactID), url.PathEscape(tagID))

	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) Context(ctx context.Context, contactID string) (adapters.SubscriberContext, error) {
	var response struct {
		Name         string            `json:"name"`
		Email        string            `json:"email"`
		Tags         []string          `json:"tags"`
		TierID       string            `json:"tier_id"`
		CustomFields map[string]string `json:"custom_fields"`
	}

	path := "/internal/contacts/" + url.PathEscape(contactID)

	err := c.do(ctx, http.MethodGet, path, nil, &response)
	if err != nil {
		return adapters.SubscriberContext{}, err
	}

	return adapters.SubscriberContext{
		Name:         response.Name,
		Email:        response.Email,
		Tags:         response.Tags,
		TierID:       response.TierID,
		CustomFields: response.CustomFields,
	}, nil
}

func (c *Client) Template(ctx context.Context, templateID string) (string, string, error) {
	var response struct {
		Subject  string `json:"subject"`
		HTMLBody string `json:"html_body"`
	}

	path := "/internal/templates/" + url.PathEscape(templateID)

	err := c.do(ctx, http.MethodGet, path, nil, &response)
	if err != nil {
		return "", "", err
	}

	return response.Subject, response.HTMLBody, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("platform API returned %d: %s", e.status, e.body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build platform request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(detail))}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode platform response: %w", err)
	}

	return nil
}

func (c *Client) asDeliveryError(err error) error {
	var statusErr *statusError
	if !errors.As(err, &statusErr) {
		return &adapters.DeliveryError{Permanent: false, Reason: err.Error()}
	}

	return &adapters.DeliveryError{
		Permanent: statusErr.status < 500,
		Reason:    statusErr.Error(),
	}
}
