// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"strings"
	"time"

	"github.com/go-gorp/gorp/v3"
)

// Direction classifies a weighing transaction.
type Direction string

const (
	// DirectionIn is the gross weighing of a loaded truck entering the facility.
	DirectionIn Direction = "in"
	// DirectionOut is the tare weighing of an unloaded truck leaving the facility.
	DirectionOut Direction = "out"
	// DirectionNone is a standalone weighing without session pairing.
	DirectionNone Direction = "none"
)

// IsValid returns whether this is one of the known directions.
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut || d == DirectionNone
}

// Transaction contains a record from the `transactions` table.
//
// The table is append-only: rows are inserted by the weighing engine and
// mutated exactly once, when an OUT weighing back-fills its matching IN row
// with the computed `truck_tara` and `neto` values.
type Transaction struct {
	ID         int64      `db:"id"`
	SessionID  string     `db:"session_id"`
	Datetime   time.Time  `db:"datetime"`
	Direction  Direction  `db:"direction"`
	Truck      *string    `db:"truck"`      // NULL when no license was recorded
	Containers string     `db:"containers"` // comma-joined container IDs, in submission order
	Bruto      int64      `db:"bruto"`      // gross weight in kg
	TruckTara  *int64     `db:"truck_tara"` // NULL until computed by the OUT weighing
	Neto       *int64     `db:"neto"`       // NULL encodes the external "na" sentinel
	Produce    *string    `db:"produce"`
}

// ContainerIDs splits the comma-joined container list of this transaction.
func (t Transaction) ContainerIDs() []string {
	return SplitContainerIDs(t.Containers)
}

// SplitContainerIDs splits a comma-joined container list, dropping empty
// entries.
func SplitContainerIDs(joined string) []string {
	if joined == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(joined, ",") {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// JoinContainerIDs is the inverse of SplitContainerIDs.
func JoinContainerIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// RegisteredContainer contains a record from the `registered_containers`
// table. A NULL weight means that the container is known, but its tare has
// not been measured yet.
type RegisteredContainer struct {
	ContainerID string  `db:"container_id"`
	WeightKilos *int64  `db:"weight"` // normalized to kg; NULL = unknown tare
	Unit        string  `db:"unit"`   // the unit the weight was originally reported in
}

// initGorp is used by InitORM to set up the ORM part of the database connection.
func initGorp(dbMap *gorp.DbMap) {
	dbMap.AddTableWithName(Transaction{}, "transactions").SetKeys(true, "id")
	dbMap.AddTableWithName(RegisteredContainer{}, "registered_containers").SetKeys(false, "container_id")
}
