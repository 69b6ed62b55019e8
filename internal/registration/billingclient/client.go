// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package billingclient is the HTTP producer for the Billing service that
// the approval workflow provisions providers through.
package billingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 30 * time.Second

// maxRetries is the number of retries after the initial attempt.
const maxRetries = 3

// BillingServiceError is returned when the Billing service could not
// deliver a usable response, either immediately (non-retriable status) or
// after all retries were exhausted.
type BillingServiceError struct {
	Message    string
	StatusCode int // 0 if the failure was not an HTTP status
}

// Error implements the builtin/error interface.
func (e BillingServiceError) Error() string {
	if e.StatusCode == 0 {
		return "billing service: " + e.Message
	}
	return fmt.Sprintf("billing service returned %d: %s", e.StatusCode, e.Message)
}

// retriableStatusCodes lists the responses that warrant another attempt.
// All other non-2xx statuses fail immediately.
var retriableStatusCodes = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// Client talks to the Billing service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// slot for test doubles
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client. A zero timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		sleep:      sleepContext,
	}
}

// OverrideSleep replaces the inter-attempt delay, for tests that do not
// want to wait out the real backoff intervals.
func (c *Client) OverrideSleep(sleep func(ctx context.Context, d time.Duration) error) *Client {
	c.sleep = sleep
	return c
}

// CreateProvider creates a provider with the given name and returns its ID.
//
// The retry loop is hand-rolled because the server may dictate the delay:
// a Retry-After header, when present and parseable, overrides the default
// schedule of 0.5 * 2^attempt seconds.
func (c *Client) CreateProvider(ctx context.Context, name string) (int64, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return 0, err
	}
	uri := c.BaseURL + "/provider"

	var lastErr error
	for attempt := 0; ; attempt++ {
		providerID, retryAfter, err := c.tryCreateProvider(ctx, uri, body)
		if err == nil {
			return providerID, nil
		}
		var serviceErr BillingServiceError
		if isPermanent(err, &serviceErr) {
			return 0, serviceErr
		}
		lastErr = err

		if attempt >= maxRetries {
			if serviceErr.Message != "" || serviceErr.StatusCode != 0 {
				return 0, serviceErr
			}
			return 0, BillingServiceError{Message: lastErr.Error()}
		}

		delay := retryAfter
		if delay == 0 {
			delay = time.Duration(500*math.Pow(2, float64(attempt))) * time.Millisecond
		}
		err = c.sleep(ctx, delay)
		if err != nil {
			return 0, BillingServiceError{Message: err.Error()}
		}
	}
}

// tryCreateProvider performs one attempt. The retryAfter return value is
// non-zero only if the response carried a parseable Retry-After header.
func (c *Client) tryCreateProvider(ctx context.Context, uri string, body []byte) (providerID int64, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return 0, 0, permanentError{err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, 0, err // timeouts and connection errors are retriable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		var parseTarget struct {
			ID int64 `json:"id"`
		}
		err = json.NewDecoder(resp.Body).Decode(&parseTarget)
		if err != nil {
			return 0, 0, permanentError{fmt.Errorf("cannot decode response: %w", err)}
		}
		return parseTarget.ID, 0, nil
	case retriableStatusCodes[resp.StatusCode]:
		return 0, parseRetryAfter(resp), BillingServiceError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	default:
		return 0, 0, permanentError{BillingServiceError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}}
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	inner error
}

// Error implements the builtin/error interface.
func (e permanentError) Error() string { return e.inner.Error() }

// Unwrap makes the inner error visible to errors.As.
func (e permanentError) Unwrap() error { return e.inner }

// isPermanent reports whether the error must not be retried, and fills
// serviceErr with the most useful representation of the failure either way.
func isPermanent(err error, serviceErr *BillingServiceError) bool {
	var permanent permanentError
	if errors.As(err, &permanent) {
		if !errors.As(permanent.inner, serviceErr) {
			*serviceErr = BillingServiceError{Message: permanent.inner.Error()}
		}
		return true
	}
	errors.As(err, serviceErr)
	return false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func readErrorBody(body io.Reader) string {
	buf, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return "(unreadable response body)"
	}
	return strings.TrimSpace(string(buf))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
