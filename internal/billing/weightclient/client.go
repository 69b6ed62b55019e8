// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package weightclient is the HTTP consumer for the Weight service that the
// billing aggregator pulls transaction data through.
package weightclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sapcc/weighbridge/internal/util"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 30 * time.Second

// maxRetries is the number of retries after the initial attempt, so every
// request gets up to three attempts in total.
const maxRetries = 2

// WeightServiceError is returned when the Weight service could not deliver
// a usable response, either immediately (non-retriable status) or after all
// retries were exhausted.
type WeightServiceError struct {
	Message    string
	StatusCode int // 0 if the failure was not an HTTP status
}

// Error implements the builtin/error interface.
func (e WeightServiceError) Error() string {
	if e.StatusCode == 0 {
		return "weight service: " + e.Message
	}
	return fmt.Sprintf("weight service returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the Weight service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// slot for test doubles
	newBackOff func() backoff.BackOff
}

// NewClient builds a Client. A zero timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		newBackOff: defaultBackOff,
	}
}

// OverrideBackOff replaces the retry schedule, for tests that do not want
// to wait out the real backoff intervals.
func (c *Client) OverrideBackOff(newBackOff func() backoff.BackOff) *Client {
	c.newBackOff = newBackOff
	return c
}

// defaultBackOff waits 2^attempt seconds between attempts: 1s after the
// initial attempt, then 2s.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return backoff.WithMaxRetries(b, maxRetries)
}

// TransactionRecord mirrors one entry of the Weight service's GET /weight
// response.
type TransactionRecord struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	Datetime   string         `json:"datetime"`
	Direction  string         `json:"direction"`
	Truck      *string        `json:"truck"`
	Containers []string       `json:"containers"`
	Bruto      int64          `json:"bruto"`
	TruckTara  util.KilosOrNA `json:"truck_tara"`
	Neto       util.KilosOrNA `json:"neto"`
	Produce    *string        `json:"produce"`
}

// ItemRecord mirrors the Weight service's GET /item/{id} response.
type ItemRecord struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Tara     util.KilosOrNA `json:"tara"`
	Sessions []string       `json:"sessions"`
}

// ListWeighings fetches all weighings in the given window. The direction
// filter is passed through verbatim; an empty filter means no constraint.
func (c *Client) ListWeighings(ctx context.Context, window util.Window, directionFilter string) ([]TransactionRecord, error) {
	query := url.Values{}
	query.Set("from", util.FormatTimestamp(window.From))
	query.Set("to", util.FormatTimestamp(window.To))
	if directionFilter != "" {
		query.Set("filter", directionFilter)
	}

	var result []TransactionRecord
	_, err := c.getJSON(ctx, "/weight", query, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetItem fetches the rollup for one truck or container. A nil result
// without error means that the Weight service does not know the item.
func (c *Client) GetItem(ctx context.Context, itemID string, window util.Window) (*ItemRecord, error) {
	query := url.Values{}
	query.Set("from", util.FormatTimestamp(window.From))
	query.Set("to", util.FormatTimestamp(window.To))

	var result ItemRecord
	found, err := c.getJSON(ctx, "/item/"+url.PathEscape(itemID), query, &result)
	if err != nil || !found {
		return nil, err
	}
	return &result, nil
}

// getJSON performs a retrying GET request. A 404 response stops the retry
// loop and reports found = false; other 4xx responses are non-retriable
// errors; 5xx responses and transport errors are retried.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, target any) (found bool, err error) {
	uri := c.BaseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, http.NoBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return nil
		case resp.StatusCode >= 500:
			return WeightServiceError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
		case resp.StatusCode >= 400:
			return backoff.Permanent(WeightServiceError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)})
		}

		err = json.NewDecoder(resp.Body).Decode(target)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("cannot decode response: %w", err))
		}
		found = true
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx))
	if err != nil {
		var serviceErr WeightServiceError
		if errors.As(err, &serviceErr) {
			return false, serviceErr
		}
		return false, WeightServiceError{Message: err.Error()}
	}
	return found, nil
}

func readErrorBody(body io.Reader) string {
	buf, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return "(unreadable response body)"
	}
	return strings.TrimSpace(string(buf))
}
