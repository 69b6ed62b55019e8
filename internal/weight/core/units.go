// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package core contains the unit arithmetic of the Weight service: scale
// units, kilogram normalization and the net-weight formula. Everything in
// here is a pure function; persistence is strictly kilogram-based and all
// conversion happens before any write.
package core

import (
	"fmt"
	"math"
	"strings"
)

// WeightUnit is a scale unit accepted on the external interface.
type WeightUnit string

const (
	// UnitKilograms is the canonical storage unit.
	UnitKilograms WeightUnit = "kg"
	// UnitPounds is converted to kilograms on ingestion.
	UnitPounds WeightUnit = "lbs"
)

// KilogramsPerPound is the conversion factor for UnitPounds.
const KilogramsPerPound = 0.453592

// ParseUnit parses a unit string, case-insensitively.
func ParseUnit(input string) (WeightUnit, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "kg":
		return UnitKilograms, nil
	case "lbs":
		return UnitPounds, nil
	default:
		return "", fmt.Errorf("invalid weight unit %q: must be \"kg\" or \"lbs\"", input)
	}
}

// NormalizeWeight converts a weight into whole kilograms. Kilogram inputs
// pass through unchanged, so normalization is idempotent.
func NormalizeWeight(value int64, unit WeightUnit) int64 {
	if unit == UnitPounds {
		return int64(math.Round(float64(value) * KilogramsPerPound))
	}
	return value
}

// ValidateWeight normalizes the given weight and checks that the result lies
// in (0, maxKilos]. The normalized kilogram value is returned.
func ValidateWeight(value int64, unit WeightUnit, maxKilos int64) (int64, error) {
	kilos := NormalizeWeight(value, unit)
	if kilos <= 0 {
		return 0, fmt.Errorf("invalid weight %d %s: must be positive", value, unit)
	}
	if kilos > maxKilos {
		return 0, fmt.Errorf("invalid weight %d %s: exceeds the maximum of %d kg", value, unit, maxKilos)
	}
	return kilos, nil
}

// ComputeNet evaluates the net-weight formula for a completed session:
// given the gross weights of the IN and OUT weighings and the summed tare of
// all carried containers (all in kg), the truck's own empty weight is what
// remains of the OUT weighing after subtracting the containers, and the net
// produce is what left the truck between IN and OUT. Both values are clamped
// to zero so that miscalibrated scales cannot produce negative weights.
func ComputeNet(brutoIn, brutoOut, containerTare int64) (truckTara, neto int64) {
	truckTara = max(0, brutoOut-containerTare)
	neto = max(0, brutoIn-brutoOut)
	return truckTara, neto
}
