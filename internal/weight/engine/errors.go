// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed input (weight out of range, overlong
// IDs, unknown direction, and so on). Handlers map it to 400.
type ValidationError struct {
	Message string
}

// Error implements the builtin/error interface.
func (e ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) ValidationError {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

// WeighingSequenceError reports a weighing that violates the session state
// machine: an OUT without a matching open IN, or a duplicate IN for a
// session that is still open. The `force` flag bypasses these checks.
type WeighingSequenceError struct {
	Message string
}

// Error implements the builtin/error interface.
func (e WeighingSequenceError) Error() string { return e.Message }

// ContainerNotFoundError reports an OUT weighing that cannot be completed
// because the tare of at least one carried container is not registered.
type ContainerNotFoundError struct {
	ContainerIDs []string
}

// Error implements the builtin/error interface.
func (e ContainerNotFoundError) Error() string {
	return fmt.Sprintf("unknown tare for container(s): %s", strings.Join(e.ContainerIDs, ", "))
}
