// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"database/sql"
	"errors"
	"math"

	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/weighbridge/internal/util"
	"github.com/sapcc/weighbridge/internal/weight/db"
)

// ItemKind classifies what an item ID refers to.
type ItemKind string

const (
	// ItemKindTruck is a truck license.
	ItemKindTruck ItemKind = "truck"
	// ItemKindContainer is a container ID.
	ItemKindContainer ItemKind = "container"
)

// ClassifyItem decides whether an item ID refers to a truck or a container.
// An ID with a registered tare is always a container; otherwise usage
// decides, preferring container when the ID was used as both.
func ClassifyItem(isRegistered, usedAsTruck, usedAsContainer bool) (kind ItemKind, found bool) {
	switch {
	case isRegistered:
		return ItemKindContainer, true
	case usedAsContainer:
		return ItemKindContainer, true
	case usedAsTruck:
		return ItemKindTruck, true
	default:
		return "", false
	}
}

// ItemReport is the rollup for one truck or container.
type ItemReport struct {
	ID       string         `json:"id"`
	Kind     ItemKind       `json:"kind"`
	Tara     util.KilosOrNA `json:"tara"`
	Sessions []string       `json:"sessions"`
}

// GetItemRollup computes the rollup for the given item ID over the given
// window. A nil result without error means that the ID is neither a
// registered container nor used by any transaction.
func GetItemRollup(dbi db.Interface, itemID string, window util.Window) (*ItemReport, error) {
	var registered db.RegisteredContainer
	isRegistered := true
	err := dbi.SelectOne(&registered, `SELECT * FROM registered_containers WHERE container_id = $1`, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		isRegistered = false
	} else if err != nil {
		return nil, err
	}

	truckSessions, truckTara, err := truckUsage(dbi, itemID, window)
	if err != nil {
		return nil, err
	}
	containerSessions, err := containerUsage(dbi, itemID, window)
	if err != nil {
		return nil, err
	}

	kind, found := ClassifyItem(isRegistered, len(truckSessions) > 0, len(containerSessions) > 0)
	if !found {
		return nil, nil
	}

	report := ItemReport{ID: itemID, Kind: kind}
	switch kind {
	case ItemKindTruck:
		report.Tara = truckTara
		report.Sessions = truckSessions
	case ItemKindContainer:
		if isRegistered {
			report.Tara = util.KilosOrNA{Value: registered.WeightKilos}
		}
		report.Sessions = containerSessions
	}
	if report.Sessions == nil {
		report.Sessions = []string{}
	}
	return &report, nil
}

var truckUsageQuery = sqlext.SimplifyWhitespace(`
	SELECT session_id, truck_tara FROM transactions
	 WHERE truck = $1 AND datetime >= $2 AND datetime <= $3
	 ORDER BY datetime, id
`)

// truckUsage lists the sessions that a truck participated in during the
// window, along with the mean of the non-null tara values over those
// transactions ("na" if there are none).
func truckUsage(dbi db.Interface, license string, window util.Window) (sessions []string, meanTara util.KilosOrNA, err error) {
	var (
		seen      = make(map[string]struct{})
		taraSum   int64
		taraCount int64
	)
	err = sqlext.ForeachRow(dbi, truckUsageQuery, []any{license, window.From, window.To}, func(rows *sql.Rows) error {
		var (
			sessionID string
			tara      *int64
		)
		err := rows.Scan(&sessionID, &tara)
		if err != nil {
			return err
		}
		if _, exists := seen[sessionID]; !exists {
			seen[sessionID] = struct{}{}
			sessions = append(sessions, sessionID)
		}
		if tara != nil {
			taraSum += *tara
			taraCount++
		}
		return nil
	})
	if err != nil {
		return nil, util.NAKilos(), err
	}

	if taraCount > 0 {
		mean := int64(math.Round(float64(taraSum) / float64(taraCount)))
		meanTara = util.SomeKilos(mean)
	}
	return sessions, meanTara, nil
}

var containerUsageQuery = sqlext.SimplifyWhitespace(`
	SELECT session_id FROM transactions
	 WHERE $1 = ANY(string_to_array(containers, ',')) AND datetime >= $2 AND datetime <= $3
	 ORDER BY datetime, id
`)

// containerUsage lists the sessions that touch the given container in the
// window.
func containerUsage(dbi db.Interface, containerID string, window util.Window) (sessions []string, err error) {
	seen := make(map[string]struct{})
	err = sqlext.ForeachRow(dbi, containerUsageQuery, []any{containerID, window.From, window.To}, func(rows *sql.Rows) error {
		var sessionID string
		err := rows.Scan(&sessionID)
		if err != nil {
			return err
		}
		if _, exists := seen[sessionID]; !exists {
			seen[sessionID] = struct{}{}
			sessions = append(sessions, sessionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
