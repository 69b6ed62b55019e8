// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapcc/weighbridge/internal/weight/core"
)

func int64p(value int64) *int64 {
	return &value
}

func TestParseTareCSVTwoColumns(t *testing.T) {
	// without a unit column, weights above 500 are tagged as lbs
	rows, diagnostics, err := ParseTareFile("tares.csv", strings.NewReader("C1,300\nC2,1200\n"))
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
	assert.Equal(t, []BatchRow{
		{ContainerID: "C1", Weight: int64p(300), Unit: core.UnitKilograms},
		{ContainerID: "C2", Weight: int64p(1200), Unit: core.UnitPounds},
	}, rows)
}

func TestParseTareCSVThreeColumns(t *testing.T) {
	input := "id,weight,unit\nC1,300,kg\nC2,1200,kg\nC3,700,lbs\n"
	rows, diagnostics, err := ParseTareFile("tares.csv", strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
	assert.Equal(t, []BatchRow{
		{ContainerID: "C1", Weight: int64p(300), Unit: core.UnitKilograms},
		{ContainerID: "C2", Weight: int64p(1200), Unit: core.UnitKilograms},
		{ContainerID: "C3", Weight: int64p(700), Unit: core.UnitPounds},
	}, rows)
}

func TestParseTareCSVRowDiagnostics(t *testing.T) {
	// broken rows become diagnostics, the rest of the file still parses
	input := "C1,300\nC2,heavy\nC3,400,furlongs\nC4,500\n"
	rows, diagnostics, err := ParseTareFile("tares.csv", strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, diagnostics, 2)
	assert.Equal(t, []BatchRow{
		{ContainerID: "C1", Weight: int64p(300), Unit: core.UnitKilograms},
		{ContainerID: "C4", Weight: int64p(500), Unit: core.UnitKilograms},
	}, rows)
}

func TestParseTareJSON(t *testing.T) {
	input := `[
		{"id": "C1", "weight": 300},
		{"id": "C2", "weight": 1200, "unit": "lbs"},
		{"id": "C3"}
	]`
	rows, diagnostics, err := ParseTareFile("tares.json", strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
	assert.Equal(t, []BatchRow{
		{ContainerID: "C1", Weight: int64p(300), Unit: core.UnitKilograms},
		{ContainerID: "C2", Weight: int64p(1200), Unit: core.UnitPounds},
		{ContainerID: "C3", Weight: nil, Unit: core.UnitKilograms},
	}, rows)

	_, _, err = ParseTareFile("tares.json", strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestParseTareFileUnsupportedType(t *testing.T) {
	_, _, err := ParseTareFile("tares.xml", strings.NewReader("<tares/>"))
	assert.Error(t, err)
}

func TestResolveIngestPath(t *testing.T) {
	path, err := resolveIngestPath("/var/lib/weighbridge/in", "tares.csv")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/weighbridge/in/tares.csv", path)

	// subdirectories inside the jail are fine
	path, err = resolveIngestPath("/var/lib/weighbridge/in", "batch/tares.csv")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/weighbridge/in/batch/tares.csv", path)

	for _, input := range []string{
		"",
		"/etc/passwd",
		"../tares.csv",
		"../../etc/passwd",
		"batch/../../tares.csv",
	} {
		_, err := resolveIngestPath("/var/lib/weighbridge/in", input)
		assert.Error(t, err, "input %q", input)
	}
}
