// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/weighbridge/internal/util"
	"github.com/sapcc/weighbridge/internal/weight/core"
	"github.com/sapcc/weighbridge/internal/weight/db"
	"github.com/sapcc/weighbridge/internal/weight/engine"
)

// containerResponse is the wire form of one registry row.
type containerResponse struct {
	ContainerID string         `json:"id"`
	Weight      util.KilosOrNA `json:"weight"` // normalized to kg
	Unit        string         `json:"unit"`
}

// PostContainer implements the POST /container endpoint: it registers a
// single container tare.
func (p *v1API) PostContainer(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/container")
	var parseTarget struct {
		ContainerID string         `json:"id"`
		Weight      util.KilosOrNA `json:"weight"` // "na" = register with unknown tare
		Unit        string         `json:"unit"`
		AllowUpdate bool           `json:"allow_update"`
	}
	if !RequireJSON(w, r, &parseTarget) {
		return
	}

	unit := core.UnitKilograms
	if parseTarget.Unit != "" {
		var err error
		unit, err = core.ParseUnit(parseTarget.Unit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	outcome, err := p.Engine.UpsertContainer(parseTarget.ContainerID, parseTarget.Weight.Value, unit, parseTarget.AllowUpdate)
	if respondToEngineError(w, err) {
		return
	}

	status := http.StatusCreated
	if outcome == engine.OutcomeUpdated {
		status = http.StatusOK
	}
	p.respondWithContainer(w, status, parseTarget.ContainerID)
}

// GetContainer implements the GET /container/{id} endpoint.
func (p *v1API) GetContainer(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/container/:id")
	p.respondWithContainer(w, http.StatusOK, mux.Vars(r)["id"])
}

func (p *v1API) respondWithContainer(w http.ResponseWriter, status int, containerID string) {
	var row db.RegisteredContainer
	err := p.DB.SelectOne(&row, `SELECT * FROM registered_containers WHERE container_id = $1`, containerID)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "no such container", http.StatusNotFound)
		return
	}
	if respondwith.ErrorText(w, err) {
		return
	}
	respondwith.JSON(w, status, containerResponse{
		ContainerID: row.ContainerID,
		Weight:      util.KilosOrNA{Value: row.WeightKilos},
		Unit:        row.Unit,
	})
}
