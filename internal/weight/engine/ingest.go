// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/weighbridge/internal/weight/core"
)

// IngestConfig describes where container tare batch files are picked up.
type IngestConfig struct {
	// Directory is the only place that batch files may be read from. Paths
	// that resolve outside of it are rejected.
	Directory string
	// MaxFileSizeBytes caps the size of a single batch file.
	MaxFileSizeBytes int64
}

// DefaultMaxIngestFileSize is the default batch file size cap (10 MiB).
const DefaultMaxIngestFileSize = 10 << 20

// lbsHeuristicThreshold: in two-column CSV files without a unit column,
// weights above this value are assumed to be pounds. This heuristic is
// inherited from the legacy tare file format.
const lbsHeuristicThreshold = 500

// IngestTareFile reads a batch file from the ingest directory and applies
// it via BatchUpsertContainers. Rows that fail to parse are reported as
// diagnostics in the result, like rows that fail validation.
func (e *Engine) IngestTareFile(cfg IngestConfig, filename string, allowUpdates, skipDuplicates bool) (BatchResult, error) {
	path, err := resolveIngestPath(cfg.Directory, filename)
	if err != nil {
		return BatchResult{}, err
	}

	maxSize := cfg.MaxFileSizeBytes
	if maxSize == 0 {
		maxSize = DefaultMaxIngestFileSize
	}
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return BatchResult{}, validationErrorf("no such batch file: %s", filename)
		}
		return BatchResult{}, err
	}
	if stat.Size() > maxSize {
		return BatchResult{}, validationErrorf("batch file %s exceeds the size limit of %d bytes", filename, maxSize)
	}

	file, err := os.Open(path)
	if err != nil {
		return BatchResult{}, err
	}
	defer file.Close()

	rows, parseDiagnostics, err := ParseTareFile(filename, io.LimitReader(file, maxSize))
	if err != nil {
		return BatchResult{}, err
	}
	if len(rows) == 0 {
		return BatchResult{}, validationErrorf("no valid rows in batch file %s: %s", filename, strings.Join(parseDiagnostics, "; "))
	}

	result, err := e.BatchUpsertContainers(rows, allowUpdates, skipDuplicates)
	if err != nil {
		return BatchResult{}, err
	}
	result.Errors += len(parseDiagnostics)
	result.Diagnostics = append(parseDiagnostics, result.Diagnostics...)
	return result, nil
}

// resolveIngestPath joins the filename onto the ingest directory and ensures
// that the result cannot escape it.
func resolveIngestPath(directory, filename string) (string, error) {
	if filename == "" {
		return "", ValidationError{Message: "batch file name is missing"}
	}
	if filepath.IsAbs(filename) {
		return "", validationErrorf("invalid batch file name %q: absolute paths are not allowed", filename)
	}
	path := filepath.Join(directory, filepath.Clean(filename))
	rel, err := filepath.Rel(directory, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", validationErrorf("invalid batch file name %q: path escapes the ingest directory", filename)
	}
	return path, nil
}

// ParseTareFile parses a container tare batch in CSV or JSON format,
// dispatching on the file extension. Rows that fail to parse are skipped
// and reported in the diagnostics; only a file that is malformed as a whole
// produces an error.
func ParseTareFile(filename string, reader io.Reader) (rows []BatchRow, diagnostics []string, err error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseTareCSV(filename, reader)
	case ".json":
		return parseTareJSON(reader)
	default:
		return nil, nil, validationErrorf("unsupported batch file type %q: expected .csv or .json", filepath.Ext(filename))
	}
}

// csvHeaderKeywords identify an optional header row in a tare CSV.
var csvHeaderKeywords = []string{"id", "weight", "unit", "container"}

func parseTareCSV(filename string, reader io.Reader) (rows []BatchRow, diagnostics []string, err error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1 // column count is validated per row below
	csvReader.TrimLeadingSpace = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, nil, validationErrorf("malformed CSV: %s", err.Error())
	}
	if len(records) > 0 && isCSVHeader(records[0]) {
		records = records[1:]
	}

	usedFallback := false
	for idx, record := range records {
		row, guessed, err := parseTareCSVRecord(record)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("row %d: %s", idx+1, err.Error()))
			continue
		}
		usedFallback = usedFallback || guessed
		rows = append(rows, row)
	}
	if usedFallback {
		logg.Info("tare file %s has no unit column; weights above %d were tagged as lbs by heuristic", filename, lbsHeuristicThreshold)
	}
	return rows, diagnostics, nil
}

func parseTareCSVRecord(record []string) (row BatchRow, guessedUnit bool, err error) {
	if len(record) != 2 && len(record) != 3 {
		return BatchRow{}, false, fmt.Errorf("expected 2 or 3 columns, got %d", len(record))
	}

	row.ContainerID = strings.TrimSpace(record[0])
	weight, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
	if err != nil {
		return BatchRow{}, false, fmt.Errorf("invalid weight %q", record[1])
	}
	row.Weight = &weight

	if len(record) == 3 {
		unit, err := core.ParseUnit(record[2])
		if err != nil {
			return BatchRow{}, false, err
		}
		row.Unit = unit
		return row, false, nil
	}

	// two-column form: auto-detect the unit by magnitude
	if weight > lbsHeuristicThreshold {
		row.Unit = core.UnitPounds
		return row, true, nil
	}
	row.Unit = core.UnitKilograms
	return row, false, nil
}

func isCSVHeader(record []string) bool {
	for _, field := range record {
		field = strings.ToLower(strings.TrimSpace(field))
		for _, keyword := range csvHeaderKeywords {
			if strings.Contains(field, keyword) {
				return true
			}
		}
	}
	return false
}

func parseTareJSON(reader io.Reader) (rows []BatchRow, diagnostics []string, err error) {
	var entries []struct {
		ID     string `json:"id"`
		Weight *int64 `json:"weight"`
		Unit   string `json:"unit"`
	}
	err = json.NewDecoder(reader).Decode(&entries)
	if err != nil {
		return nil, nil, validationErrorf("malformed JSON: %s", err.Error())
	}

	for idx, entry := range entries {
		unit := core.UnitKilograms
		if entry.Unit != "" {
			unit, err = core.ParseUnit(entry.Unit)
			if err != nil {
				diagnostics = append(diagnostics, fmt.Sprintf("row %d: %s", idx+1, err.Error()))
				continue
			}
		}
		rows = append(rows, BatchRow{ContainerID: entry.ID, Weight: entry.Weight, Unit: unit})
	}
	return rows, diagnostics, nil
}
