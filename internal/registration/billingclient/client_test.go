// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package billingclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a Client against the given server that records the
// inter-attempt delays instead of sleeping them out.
func newTestClient(server *httptest.Server, recordedDelays *[]time.Duration) *Client {
	return NewClient(server.URL, 0).OverrideSleep(func(ctx context.Context, d time.Duration) error {
		*recordedDelays = append(*recordedDelays, d)
		return nil
	})
}

func TestCreateProvider(t *testing.T) {
	var receivedNames []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/provider", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var parseTarget struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&parseTarget))
		receivedNames = append(receivedNames, parseTarget.Name)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 42, "name": "ACME"}`))
	}))
	defer server.Close()

	var delays []time.Duration
	providerID, err := newTestClient(server, &delays).CreateProvider(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, int64(42), providerID)
	assert.Equal(t, []string{"ACME"}, receivedNames)
	assert.Empty(t, delays)
}

func TestCreateProviderRetrySchedule(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 7}`))
	}))
	defer server.Close()

	var delays []time.Duration
	providerID, err := newTestClient(server, &delays).CreateProvider(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, int64(7), providerID)
	assert.Equal(t, 3, attempts)
	// without a Retry-After header, the delay doubles per attempt
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1 * time.Second}, delays)
}

func TestCreateProviderHonorsRetryAfter(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "7")
			http.Error(w, "try again later", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 7}`))
	}))
	defer server.Close()

	var delays []time.Duration
	_, err := newTestClient(server, &delays).CreateProvider(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, delays)
}

func TestCreateProviderDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "provider name already taken", http.StatusConflict)
	}))
	defer server.Close()

	var delays []time.Duration
	_, err := newTestClient(server, &delays).CreateProvider(context.Background(), "ACME")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, delays)

	var serviceErr BillingServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, http.StatusConflict, serviceErr.StatusCode)
	assert.Equal(t, "provider name already taken", serviceErr.Message)
}

func TestCreateProviderRetriesExhausted(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "database is down", http.StatusInternalServerError)
	}))
	defer server.Close()

	var delays []time.Duration
	_, err := newTestClient(server, &delays).CreateProvider(context.Background(), "ACME")
	require.Error(t, err)
	assert.Equal(t, 4, attempts) // the initial attempt plus three retries
	assert.Len(t, delays, 3)

	var serviceErr BillingServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, http.StatusInternalServerError, serviceErr.StatusCode)
}
