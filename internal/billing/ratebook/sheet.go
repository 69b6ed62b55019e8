// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package ratebook

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sapcc/weighbridge/internal/billing/db"
)

// sheetHeader is the mandatory first row of a rate spreadsheet.
var sheetHeader = []string{"Product", "Rate", "Scope"}

// ParseSheet reads a rate spreadsheet. A malformed row aborts the whole
// parse: a rate upload is all-or-nothing.
func ParseSheet(reader io.Reader) ([]db.Rate, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("cannot open spreadsheet: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet contains no sheets")
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	startIdx := 0
	if isSheetHeader(rows[0]) {
		startIdx = 1
	}

	var rates []db.Rate
	for idx, row := range rows[startIdx:] {
		rate, err := parseSheetRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", startIdx+idx+1, err)
		}
		rates = append(rates, rate)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("spreadsheet contains no rate rows")
	}
	return rates, nil
}

func isSheetHeader(row []string) bool {
	if len(row) < 1 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(row[0]), sheetHeader[0])
}

func parseSheetRow(row []string) (db.Rate, error) {
	// trailing empty cells are not reported by excelize, so only the product
	// and rate columns are strictly required
	if len(row) < 2 {
		return db.Rate{}, fmt.Errorf("expected columns %s, got %d columns", strings.Join(sheetHeader, ", "), len(row))
	}

	product := strings.TrimSpace(row[0])
	if product == "" {
		return db.Rate{}, fmt.Errorf("product must not be empty")
	}
	rate, err := strconv.ParseInt(strings.TrimSpace(row[1]), 10, 64)
	if err != nil {
		return db.Rate{}, fmt.Errorf("invalid rate %q: expected an integer", row[1])
	}

	scope := db.ScopeAll
	if len(row) >= 3 && strings.TrimSpace(row[2]) != "" {
		scope = strings.TrimSpace(row[2])
	}
	return db.Rate{Product: product, Rate: rate, Scope: scope}, nil
}

// RenderSheet writes the given rates as a spreadsheet in the same layout
// that ParseSheet accepts.
func RenderSheet(writer io.Writer, rates []db.Rate) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	err := file.SetSheetRow(sheet, "A1", &sheetHeader)
	if err != nil {
		return err
	}
	for idx, rate := range rates {
		cell, err := excelize.CoordinatesToCellName(1, idx+2)
		if err != nil {
			return err
		}
		err = file.SetSheetRow(sheet, cell, &[]any{rate.Product, rate.Rate, rate.Scope})
		if err != nil {
			return err
		}
	}

	_, err = file.WriteTo(writer)
	return err
}
