// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the weighing state machine of the Weight
// service, along with the container tare registry it depends on.
//
// Each weighing session moves through a tiny state machine: an IN weighing
// opens a session, the matching OUT weighing closes it and computes the net
// produce weight, and a NONE weighing is a standalone single-row session.
package engine

import (
	"regexp"
	"slices"
	"strings"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/gofrs/uuid/v5"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/weighbridge/internal/weight/core"
	"github.com/sapcc/weighbridge/internal/weight/db"
)

// Engine performs weighings against the transaction store.
type Engine struct {
	DB             *gorp.DbMap
	MaxWeightKilos int64 // ceiling for all validated weights, after normalization to kg
	// slots for test doubles
	timeNow           func() time.Time
	generateSessionID func() string
}

// NewEngine builds an Engine.
func NewEngine(dbm *gorp.DbMap, maxWeightKilos int64, timeNow func() time.Time) *Engine {
	return &Engine{
		DB:                dbm,
		MaxWeightKilos:    maxWeightKilos,
		timeNow:           timeNow,
		generateSessionID: GenerateSessionID,
	}
}

// OverrideGenerateSessionID replaces the session ID generator, for tests
// that need deterministic session IDs.
func (e *Engine) OverrideGenerateSessionID(generate func() string) *Engine {
	e.generateSessionID = generate
	return e
}

// GenerateSessionID generates a random session UUID.
func GenerateSessionID() string {
	// UUID generation only fails if reading from /dev/urandom fails, which is
	// a wildly unexpected OS-level error and thus fine as a fatal error
	return must.Return(uuid.NewV4()).String()
}

// WeighingRequest is the engine-level form of a POST /weight body, after
// the handler has normalized the loose wire encoding.
type WeighingRequest struct {
	Direction  db.Direction
	Truck      string // empty or "na" = no license recorded
	Containers []string
	Weight     int64
	Unit       core.WeightUnit
	Produce    string // empty or "na" = none
	Force      bool
}

// WeighingResult describes the transaction that a weighing produced.
type WeighingResult struct {
	ID        int64
	SessionID string
	Direction db.Direction
	Truck     *string
	Bruto     int64
	TruckTara *int64
	Neto      *int64 // nil encodes the external "na" sentinel
}

// naSentinel is accepted in place of an absent truck license or produce label.
const naSentinel = "na"

var (
	containerIDRx = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,15}$`)
	whitespaceRx  = regexp.MustCompile(`\s+`)
)

// maxTruckLicenseLength bounds the externally meaningful truck license.
const maxTruckLicenseLength = 10

// RecordWeighing validates and persists one weighing. The `force` flag
// bypasses sequence checks only; structural validation (weight range, ID
// shapes, non-empty container list) is never bypassed.
func (e *Engine) RecordWeighing(req WeighingRequest) (WeighingResult, error) {
	if !req.Direction.IsValid() {
		return WeighingResult{}, validationErrorf("invalid direction %q: must be one of \"in\", \"out\", \"none\"", string(req.Direction))
	}

	truck, err := normalizeTruckLicense(req.Truck)
	if err != nil {
		return WeighingResult{}, err
	}
	containers, err := normalizeContainerIDs(req.Containers)
	if err != nil {
		return WeighingResult{}, err
	}
	bruto, err := core.ValidateWeight(req.Weight, req.Unit, e.MaxWeightKilos)
	if err != nil {
		return WeighingResult{}, ValidationError{Message: err.Error()}
	}
	produce := normalizeOptionalString(req.Produce)

	switch req.Direction {
	case db.DirectionIn:
		return e.recordIn(truck, containers, bruto, produce, req.Force)
	case db.DirectionOut:
		return e.recordOut(truck, containers, bruto, produce, req.Force)
	default:
		return e.recordNone(truck, containers, bruto, produce)
	}
}

func (e *Engine) recordIn(truck *string, containers []string, bruto int64, produce *string, force bool) (WeighingResult, error) {
	openIn, err := e.FindMatchingIn(truck, containers)
	if err != nil {
		return WeighingResult{}, err
	}
	if openIn != nil && !force {
		return WeighingResult{}, WeighingSequenceError{
			Message: "there already is an open weighing session for this truck and container set (use force to start another one)",
		}
	}

	tx := db.Transaction{
		SessionID:  e.generateSessionID(),
		Datetime:   e.timeNow().UTC(),
		Direction:  db.DirectionIn,
		Truck:      truck,
		Containers: db.JoinContainerIDs(containers),
		Bruto:      bruto,
		Produce:    produce,
	}
	err = e.DB.Insert(&tx)
	if err != nil {
		return WeighingResult{}, err
	}
	return resultFor(tx), nil
}

func (e *Engine) recordOut(truck *string, containers []string, bruto int64, produce *string, force bool) (WeighingResult, error) {
	openIn, err := e.FindMatchingIn(truck, containers)
	if err != nil {
		return WeighingResult{}, err
	}

	if openIn == nil {
		if !force {
			return WeighingResult{}, WeighingSequenceError{
				Message: "no open weighing session for this truck and container set (use force to record a standalone OUT)",
			}
		}
		// forced standalone OUT: no pairing, no calculation
		tx := db.Transaction{
			SessionID:  e.generateSessionID(),
			Datetime:   e.timeNow().UTC(),
			Direction:  db.DirectionOut,
			Truck:      truck,
			Containers: db.JoinContainerIDs(containers),
			Bruto:      bruto,
			Produce:    produce,
		}
		err = e.DB.Insert(&tx)
		if err != nil {
			return WeighingResult{}, err
		}
		return resultFor(tx), nil
	}

	infos, err := e.LookupContainers(containers)
	if err != nil {
		return WeighingResult{}, err
	}
	var (
		totalTare  int64
		unknownIDs []string
	)
	for _, info := range infos {
		if info.TareKilos == nil {
			unknownIDs = append(unknownIDs, info.ContainerID)
		} else {
			totalTare += *info.TareKilos
		}
	}

	var truckTara, neto *int64
	if len(unknownIDs) > 0 {
		if !force {
			return WeighingResult{}, ContainerNotFoundError{ContainerIDs: unknownIDs}
		}
		// forced through with unknown tares: close the session, but the net
		// weight stays "na" and the IN row is not back-filled
	} else {
		tara, net := core.ComputeNet(openIn.Bruto, bruto, totalTare)
		truckTara, neto = &tara, &net
	}

	outTx := db.Transaction{
		SessionID:  openIn.SessionID,
		Datetime:   e.timeNow().UTC(),
		Direction:  db.DirectionOut,
		Truck:      truck,
		Containers: db.JoinContainerIDs(containers),
		Bruto:      bruto,
		TruckTara:  truckTara,
		Neto:       neto,
		Produce:    coalesce(produce, openIn.Produce),
	}

	// The OUT insert and the IN back-fill must commit together: either row
	// alone has to be able to answer rollup queries afterwards.
	dbTx, err := e.DB.Begin()
	if err != nil {
		return WeighingResult{}, err
	}
	defer sqlext.RollbackUnlessCommitted(dbTx)

	err = dbTx.Insert(&outTx)
	if err != nil {
		return WeighingResult{}, err
	}
	if truckTara != nil {
		_, err = dbTx.Exec(
			`UPDATE transactions SET truck_tara = $1, neto = $2 WHERE id = $3`,
			*truckTara, *neto, openIn.ID,
		)
		if err != nil {
			return WeighingResult{}, err
		}
	}
	err = dbTx.Commit()
	if err != nil {
		return WeighingResult{}, err
	}
	return resultFor(outTx), nil
}

func (e *Engine) recordNone(truck *string, containers []string, bruto int64, produce *string) (WeighingResult, error) {
	tx := db.Transaction{
		SessionID:  e.generateSessionID(),
		Datetime:   e.timeNow().UTC(),
		Direction:  db.DirectionNone,
		Truck:      truck,
		Containers: db.JoinContainerIDs(containers),
		Bruto:      bruto,
		Produce:    produce,
	}
	err := e.DB.Insert(&tx)
	if err != nil {
		return WeighingResult{}, err
	}
	return resultFor(tx), nil
}

var findOpenInQueryWithTruck = sqlext.SimplifyWhitespace(`
	SELECT * FROM transactions t
	 WHERE t.direction = 'in' AND t.truck = $1
	   AND NOT EXISTS (SELECT 1 FROM transactions o WHERE o.session_id = t.session_id AND o.direction = 'out')
	 ORDER BY t.datetime DESC, t.id DESC
`)

var findOpenInQueryWithoutTruck = sqlext.SimplifyWhitespace(`
	SELECT * FROM transactions t
	 WHERE t.direction = 'in' AND t.truck IS NULL
	   AND NOT EXISTS (SELECT 1 FROM transactions o WHERE o.session_id = t.session_id AND o.direction = 'out')
	 ORDER BY t.datetime DESC, t.id DESC
`)

// FindMatchingIn locates the most recent IN transaction with the given
// truck and container multiset for which no OUT exists yet. A nil result
// without error means that no session is open for this combination.
func (e *Engine) FindMatchingIn(truck *string, containers []string) (*db.Transaction, error) {
	var candidates []db.Transaction
	var err error
	if truck == nil {
		_, err = e.DB.Select(&candidates, findOpenInQueryWithoutTruck)
	} else {
		_, err = e.DB.Select(&candidates, findOpenInQueryWithTruck, *truck)
	}
	if err != nil {
		return nil, err
	}

	wanted := containerMultisetKey(containers)
	for _, candidate := range candidates {
		if containerMultisetKey(candidate.ContainerIDs()) == wanted {
			return &candidate, nil
		}
	}
	return nil, nil
}

// containerMultisetKey produces a canonical key for multiset comparison of
// container lists: submission order is irrelevant for session matching.
func containerMultisetKey(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

func normalizeTruckLicense(input string) (*string, error) {
	license := strings.TrimSpace(input)
	if license == "" || strings.EqualFold(license, naSentinel) {
		return nil, nil
	}
	if len(license) > maxTruckLicenseLength {
		return nil, validationErrorf("invalid truck license %q: must not exceed %d characters", license, maxTruckLicenseLength)
	}
	return &license, nil
}

func normalizeContainerIDs(inputs []string) ([]string, error) {
	var ids []string
	for _, input := range inputs {
		id := whitespaceRx.ReplaceAllString(input, "")
		if id == "" {
			continue
		}
		if !containerIDRx.MatchString(id) {
			return nil, validationErrorf("invalid container ID %q: must be 1-15 characters drawn from [a-zA-Z0-9_-]", id)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ValidationError{Message: "at least one container ID is required"}
	}
	return ids, nil
}

func normalizeOptionalString(input string) *string {
	value := strings.TrimSpace(input)
	if value == "" || strings.EqualFold(value, naSentinel) {
		return nil
	}
	return &value
}

func coalesce(primary, fallback *string) *string {
	if primary != nil {
		return primary
	}
	return fallback
}

func resultFor(tx db.Transaction) WeighingResult {
	return WeighingResult{
		ID:        tx.ID,
		SessionID: tx.SessionID,
		Direction: tx.Direction,
		Truck:     tx.Truck,
		Bruto:     tx.Bruto,
		TruckTara: tx.TruckTara,
		Neto:      tx.Neto,
	}
}
