// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	parsed, err := ParseTimestamp("20240315103000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), parsed)

	for _, input := range []string{
		"",
		"2024",
		"2024031510300",    // 13 digits
		"202403151030000",  // 15 digits
		"20240315T103000",  // non-digit
		"20241315103000",   // month 13
		"2024-03-15 10:30", // wrong format entirely
	} {
		_, err := ParseTimestamp(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseWindowDefaults(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	w, err := ParseWindow("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, now, w.To)

	w, err = ParseWindow("20240310000000", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, now, w.To)

	// inverted window
	_, err = ParseWindow("20240316000000", "20240315000000", now)
	assert.Error(t, err)
}

func TestWindowContains(t *testing.T) {
	w := Window{
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
	}
	assert.True(t, w.Contains(w.From))
	assert.True(t, w.Contains(w.To))
	assert.True(t, w.Contains(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(w.From.Add(-time.Second)))
	assert.False(t, w.Contains(w.To.Add(time.Second)))
}
