// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"fmt"
	"time"
)

// TimestampFormat is the timestamp encoding used on all external interfaces:
// exactly 14 decimal digits, `yyyymmddhhmmss`, implicitly UTC.
const TimestampFormat = "20060102150405"

// ParseTimestamp parses a `yyyymmddhhmmss` string. Anything that is not
// exactly 14 digits encoding a valid instant is rejected.
func ParseTimestamp(input string) (time.Time, error) {
	if len(input) != 14 {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: expected exactly 14 digits (yyyymmddhhmmss)", input)
	}
	for _, char := range input {
		if char < '0' || char > '9' {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: expected exactly 14 digits (yyyymmddhhmmss)", input)
		}
	}
	t, err := time.ParseInLocation(TimestampFormat, input, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", input, err)
	}
	return t, nil
}

// FormatTimestamp renders a time.Time into the external timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Window is a closed time range used by all reporting queries.
type Window struct {
	From time.Time
	To   time.Time
}

// ParseWindow builds a Window from the optional `from` and `to` query
// parameters. A missing lower bound defaults to the first instant of the
// current month, a missing upper bound to `now`. Inverted windows are
// rejected.
func ParseWindow(fromStr, toStr string, now time.Time) (Window, error) {
	now = now.UTC()
	var w Window

	if fromStr == "" {
		w.From = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else {
		var err error
		w.From, err = ParseTimestamp(fromStr)
		if err != nil {
			return Window{}, err
		}
	}

	if toStr == "" {
		w.To = now
	} else {
		var err error
		w.To, err = ParseTimestamp(toStr)
		if err != nil {
			return Window{}, err
		}
	}

	if w.From.After(w.To) {
		return Window{}, fmt.Errorf("invalid time window: from (%s) is later than to (%s)",
			FormatTimestamp(w.From), FormatTimestamp(w.To))
	}
	return w, nil
}

// Contains returns whether the given instant lies within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}
