// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
)

// ValidationError reports a candidate payload or list filter that fails
// validation. Handlers map it to 422.
type ValidationError struct {
	Message string
}

// Error implements the builtin/error interface.
func (e ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) ValidationError {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

// DuplicateEmailError reports a candidate creation with a contact email
// that is already taken. Handlers map it to 409.
type DuplicateEmailError struct {
	Email string
}

// Error implements the builtin/error interface.
func (e DuplicateEmailError) Error() string {
	return fmt.Sprintf("a candidate with contact email %q already exists", e.Email)
}

// StateError reports a mutation on a candidate that has already left the
// pending state. Handlers map it to 400.
type StateError struct {
	Message string
}

// Error implements the builtin/error interface.
func (e StateError) Error() string { return e.Message }

// ConcurrentModificationError reports that the optimistic lock on a
// candidate was lost: between read and update, the row advanced, changed
// state, or vanished. Handlers map it to 409 and the client retries.
type ConcurrentModificationError struct {
	CandidateID string
}

// Error implements the builtin/error interface.
func (e ConcurrentModificationError) Error() string {
	return fmt.Sprintf("candidate %s was modified concurrently, please retry", e.CandidateID)
}

// UpstreamError reports that the Billing service could not be reached to
// provision a provider. Handlers map it to 502.
type UpstreamError struct {
	Inner error
}

// Error implements the builtin/error interface.
func (e UpstreamError) Error() string {
	return "cannot provision provider in billing: " + e.Inner.Error()
}

// Unwrap makes the inner error visible to errors.As.
func (e UpstreamError) Unwrap() error { return e.Inner }
