// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/weighbridge/internal/util"
	"github.com/sapcc/weighbridge/internal/weight/core"
	"github.com/sapcc/weighbridge/internal/weight/db"
)

// UpsertOutcome describes what a container upsert did.
type UpsertOutcome string

const (
	// OutcomeCreated means a new registry row was inserted.
	OutcomeCreated UpsertOutcome = "created"
	// OutcomeUpdated means an existing registry row was overwritten.
	OutcomeUpdated UpsertOutcome = "updated"
)

// UpsertContainer registers a single container tare. When the container is
// already registered and allowUpdate is false, a ValidationError is returned
// and nothing is written.
func (e *Engine) UpsertContainer(containerID string, weight *int64, unit core.WeightUnit, allowUpdate bool) (UpsertOutcome, error) {
	row, err := e.validateRegistryRow(containerID, weight, unit)
	if err != nil {
		return "", err
	}

	var existing db.RegisteredContainer
	err = e.DB.SelectOne(&existing, `SELECT * FROM registered_containers WHERE container_id = $1`, row.ContainerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return OutcomeCreated, e.DB.Insert(&row)
	case err != nil:
		return "", err
	case !allowUpdate:
		return "", validationErrorf("container %q is already registered", row.ContainerID)
	default:
		_, err = e.DB.Update(&row)
		return OutcomeUpdated, err
	}
}

// BatchRow is one row of a container tare batch.
type BatchRow struct {
	ContainerID string
	Weight      *int64 // in the given unit; nil = register with unknown tare
	Unit        core.WeightUnit
}

// BatchResult summarizes a container tare batch.
type BatchResult struct {
	Processed   int      `json:"processed"`
	Updated     int      `json:"updated"`
	Skipped     int      `json:"skipped"`
	Errors      int      `json:"errors"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// BatchUpsertContainers applies a container tare batch. Each row is
// validated independently; a failed row produces a diagnostic and does not
// abort the batch. The batch commits only if at least one row succeeded;
// if every row fails, the whole call fails and nothing is written.
func (e *Engine) BatchUpsertContainers(rows []BatchRow, allowUpdates, skipDuplicates bool) (BatchResult, error) {
	var result BatchResult

	dbTx, err := e.DB.Begin()
	if err != nil {
		return BatchResult{}, err
	}
	defer sqlext.RollbackUnlessCommitted(dbTx)

	var rowErrors *multierror.Error
	for idx, batchRow := range rows {
		row, err := e.validateRegistryRow(batchRow.ContainerID, batchRow.Weight, batchRow.Unit)
		if err != nil {
			result.Errors++
			result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("row %d: %s", idx+1, err.Error()))
			rowErrors = multierror.Append(rowErrors, err)
			continue
		}

		var existing db.RegisteredContainer
		err = dbTx.SelectOne(&existing, `SELECT * FROM registered_containers WHERE container_id = $1`, row.ContainerID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = dbTx.Insert(&row)
			if err != nil {
				return BatchResult{}, err
			}
			result.Processed++
		case err != nil:
			return BatchResult{}, err
		case allowUpdates:
			_, err = dbTx.Update(&row)
			if err != nil {
				return BatchResult{}, err
			}
			result.Updated++
		case skipDuplicates:
			result.Skipped++
		default:
			result.Errors++
			result.Diagnostics = append(result.Diagnostics, fmt.Sprintf("row %d: container %q is already registered", idx+1, row.ContainerID))
		}
	}

	if result.Processed+result.Updated+result.Skipped == 0 {
		// nothing succeeded, so do not commit anything
		if rowErrors.ErrorOrNil() != nil {
			return BatchResult{}, fmt.Errorf("no valid rows in batch: %w", rowErrors)
		}
		return BatchResult{}, ValidationError{Message: "no valid rows in batch"}
	}
	err = dbTx.Commit()
	if err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

// ContainerInfo is the lookup result for one container ID.
type ContainerInfo struct {
	ContainerID string `json:"id"`
	TareKilos   *int64 `json:"weight"`
	IsKnown     bool   `json:"is_known"`
}

// LookupContainers resolves registered tares for the given container IDs.
// The result has one entry per requested ID, in request order; IDs without
// a registered (non-NULL) tare have IsKnown = false.
func (e *Engine) LookupContainers(ids []string) ([]ContainerInfo, error) {
	registered := make(map[string]*int64)
	if len(ids) > 0 {
		whereStr, args := db.BuildSimpleWhereClause(map[string]any{"container_id": ids}, 0)
		err := sqlext.ForeachRow(e.DB, `SELECT container_id, weight FROM registered_containers WHERE `+whereStr, args, func(rows *sql.Rows) error {
			var (
				containerID string
				weight      *int64
			)
			err := rows.Scan(&containerID, &weight)
			if err != nil {
				return err
			}
			registered[containerID] = weight
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	result := make([]ContainerInfo, len(ids))
	for idx, id := range ids {
		weight, exists := registered[id]
		result[idx] = ContainerInfo{
			ContainerID: id,
			TareKilos:   weight,
			IsKnown:     exists && weight != nil,
		}
	}
	return result, nil
}

var containersInWindowQuery = sqlext.SimplifyWhitespace(`
	SELECT DISTINCT containers FROM transactions
	 WHERE datetime >= $1 AND datetime <= $2 AND containers != ''
`)

// UnknownContainers lists all container IDs that appear in at least one
// transaction in the given window, but have no registered tare.
func (e *Engine) UnknownContainers(window util.Window) ([]string, error) {
	seen := make(map[string]struct{})
	err := sqlext.ForeachRow(e.DB, containersInWindowQuery, []any{window.From, window.To}, func(rows *sql.Rows) error {
		var joined string
		err := rows.Scan(&joined)
		if err != nil {
			return err
		}
		for _, id := range db.SplitContainerIDs(joined) {
			seen[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(seen) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	infos, err := e.LookupContainers(ids)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for _, info := range infos {
		if !info.IsKnown {
			unknown = append(unknown, info.ContainerID)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

func (e *Engine) validateRegistryRow(containerID string, weight *int64, unit core.WeightUnit) (db.RegisteredContainer, error) {
	id := whitespaceRx.ReplaceAllString(containerID, "")
	if !containerIDRx.MatchString(id) {
		return db.RegisteredContainer{}, validationErrorf("invalid container ID %q: must be 1-15 characters drawn from [a-zA-Z0-9_-]", containerID)
	}

	row := db.RegisteredContainer{ContainerID: id, Unit: string(unit)}
	if weight != nil {
		kilos, err := core.ValidateWeight(*weight, unit, e.MaxWeightKilos)
		if err != nil {
			return db.RegisteredContainer{}, ValidationError{Message: err.Error()}
		}
		row.WeightKilos = &kilos
	}
	return row, nil
}
