// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package reports implements the read side of the Weight service: time-range
// transaction listings, session detail, and per-item rollups.
package reports

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sapcc/weighbridge/internal/util"
	"github.com/sapcc/weighbridge/internal/weight/db"
)

// Filter describes the result set of a transaction listing.
type Filter struct {
	Window     util.Window
	Directions []db.Direction // empty = no direction constraint
	Limit      int            // 0 = unlimited
	Offset     int
}

// maxPageSize bounds the `limit` query parameter.
const maxPageSize = 1000

// ReadFilter parses the shared query parameters of the listing endpoints
// (`from`, `to`, `filter`, `limit`, `offset`).
func ReadFilter(r *http.Request, now time.Time) (Filter, error) {
	query := r.URL.Query()

	window, err := util.ParseWindow(query.Get("from"), query.Get("to"), now)
	if err != nil {
		return Filter{}, err
	}
	filter := Filter{Window: window}

	if filterStr := query.Get("filter"); filterStr != "" {
		for _, field := range strings.Split(filterStr, ",") {
			direction := db.Direction(strings.ToLower(strings.TrimSpace(field)))
			if !direction.IsValid() {
				return Filter{}, fmt.Errorf("invalid direction filter %q: must be a comma-separated subset of \"in\", \"out\", \"none\"", field)
			}
			filter.Directions = append(filter.Directions, direction)
		}
	}

	filter.Limit, err = parseUintParam(query.Get("limit"), maxPageSize)
	if err != nil {
		return Filter{}, fmt.Errorf("invalid limit: %w", err)
	}
	filter.Offset, err = parseUintParam(query.Get("offset"), 0)
	if err != nil {
		return Filter{}, fmt.Errorf("invalid offset: %w", err)
	}
	return filter, nil
}

func parseUintParam(input string, maxValue int) (int, error) {
	if input == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(input)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("expected a non-negative integer, but got %q", input)
	}
	if maxValue > 0 && value > maxValue {
		value = maxValue
	}
	return value, nil
}

// TransactionReport is the API representation of one transaction row.
type TransactionReport struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	Datetime   string         `json:"datetime"` // yyyymmddhhmmss, UTC
	Direction  db.Direction   `json:"direction"`
	Truck      *string        `json:"truck"`
	Containers []string       `json:"containers"`
	Bruto      int64          `json:"bruto"`
	TruckTara  util.KilosOrNA `json:"truck_tara"`
	Neto       util.KilosOrNA `json:"neto"`
	Produce    *string        `json:"produce"`
}

func reportForTransaction(tx db.Transaction) TransactionReport {
	return TransactionReport{
		ID:         tx.ID,
		SessionID:  tx.SessionID,
		Datetime:   util.FormatTimestamp(tx.Datetime),
		Direction:  tx.Direction,
		Truck:      tx.Truck,
		Containers: tx.ContainerIDs(),
		Bruto:      tx.Bruto,
		TruckTara:  util.KilosOrNA{Value: tx.TruckTara},
		Neto:       util.KilosOrNA{Value: tx.Neto},
		Produce:    tx.Produce,
	}
}

// GetTransactions lists transactions matching the given filter, ordered by
// timestamp.
func GetTransactions(dbi db.Interface, filter Filter) ([]TransactionReport, error) {
	queryStr := `SELECT * FROM transactions WHERE datetime >= $1 AND datetime <= $2`
	args := []any{filter.Window.From, filter.Window.To}

	if len(filter.Directions) > 0 {
		directions := make([]any, len(filter.Directions))
		for idx, direction := range filter.Directions {
			directions[idx] = string(direction)
		}
		whereStr, whereArgs := db.BuildSimpleWhereClause(map[string]any{"direction": directions}, len(args))
		queryStr += ` AND ` + whereStr
		args = append(args, whereArgs...)
	}

	queryStr += ` ORDER BY datetime, id`
	if filter.Limit > 0 {
		queryStr += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}
	if filter.Offset > 0 {
		queryStr += fmt.Sprintf(` OFFSET %d`, filter.Offset)
	}

	var txns []db.Transaction
	_, err := dbi.Select(&txns, queryStr, args...)
	if err != nil {
		return nil, err
	}

	// always report an array, even when empty
	result := make([]TransactionReport, len(txns))
	for idx, tx := range txns {
		result[idx] = reportForTransaction(tx)
	}
	return result, nil
}

// GetTransactionByID returns the transaction with the given row ID, or nil
// if no such row exists.
func GetTransactionByID(dbi db.Interface, id int64) (*TransactionReport, error) {
	var tx db.Transaction
	err := dbi.SelectOne(&tx, `SELECT * FROM transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	report := reportForTransaction(tx)
	return &report, nil
}

// SessionReport is the API representation of one weighing session. In and
// Out point into Transactions; a NONE session has neither.
type SessionReport struct {
	SessionID    string              `json:"session_id"`
	IsComplete   bool                `json:"is_complete"`
	In           *TransactionReport  `json:"in"`
	Out          *TransactionReport  `json:"out"`
	Transactions []TransactionReport `json:"transactions"`
}

// GetSession returns the session with the given ID, or nil if no
// transaction references it.
func GetSession(dbi db.Interface, sessionID string) (*SessionReport, error) {
	var txns []db.Transaction
	_, err := dbi.Select(&txns, `SELECT * FROM transactions WHERE session_id = $1 ORDER BY datetime, id`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}

	report := SessionReport{
		SessionID:    sessionID,
		Transactions: make([]TransactionReport, len(txns)),
	}
	isStandalone := false
	for idx, tx := range txns {
		report.Transactions[idx] = reportForTransaction(tx)
		switch tx.Direction {
		case db.DirectionIn:
			if report.In == nil {
				report.In = &report.Transactions[idx]
			}
		case db.DirectionOut:
			report.Out = &report.Transactions[idx]
		case db.DirectionNone:
			isStandalone = true
		}
	}
	// a NONE session never gets an OUT, so it counts as complete on its own
	report.IsComplete = (report.In != nil && report.Out != nil) || isStandalone
	return &report, nil
}
