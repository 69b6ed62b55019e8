// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// KilosOrNA carries an optional weight value in kilograms. The external
// contract serializes absent values as the string "na" instead of null, so
// this type takes care of the translation at the JSON edge. Internally,
// absence is just a nil pointer.
type KilosOrNA struct {
	Value *int64
}

// SomeKilos builds a KilosOrNA with a known value.
func SomeKilos(value int64) KilosOrNA {
	return KilosOrNA{Value: &value}
}

// NAKilos builds a KilosOrNA without a value.
func NAKilos() KilosOrNA {
	return KilosOrNA{}
}

// IsKnown returns whether a value is present.
func (k KilosOrNA) IsKnown() bool {
	return k.Value != nil
}

// MarshalJSON implements the json.Marshaler interface.
func (k KilosOrNA) MarshalJSON() ([]byte, error) {
	if k.Value == nil {
		return []byte(`"na"`), nil
	}
	return []byte(strconv.FormatInt(*k.Value, 10)), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// All of `"na"`, `null` and plain numbers are accepted.
func (k *KilosOrNA) UnmarshalJSON(buf []byte) error {
	if bytes.Equal(buf, []byte(`null`)) || bytes.Equal(buf, []byte(`"na"`)) {
		k.Value = nil
		return nil
	}
	value, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return fmt.Errorf("expected an integer or the string \"na\", but got %s", string(buf))
	}
	k.Value = &value
	return nil
}

// DecimalString is an unsigned integer that serializes as a decimal string
// (e.g. 42 becomes "42"). The billing contract mandates this encoding for
// the per-product session count.
type DecimalString uint64

// MarshalJSON implements the json.Marshaler interface.
func (d DecimalString) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(d), 10))
}

// UnmarshalJSON implements the json.Unmarshaler interface. Both string and
// number encodings are accepted for compatibility with older clients.
func (d *DecimalString) UnmarshalJSON(buf []byte) error {
	var str string
	if err := json.Unmarshal(buf, &str); err != nil {
		// not a string, try plain number
		value, numErr := strconv.ParseUint(string(buf), 10, 64)
		if numErr != nil {
			return fmt.Errorf("expected a stringified integer, but got %s", string(buf))
		}
		*d = DecimalString(value)
		return nil
	}
	value, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return err
	}
	*d = DecimalString(value)
	return nil
}
