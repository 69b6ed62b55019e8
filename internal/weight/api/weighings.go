// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/weighbridge/internal/util"
	"github.com/sapcc/weighbridge/internal/weight/core"
	"github.com/sapcc/weighbridge/internal/weight/db"
	"github.com/sapcc/weighbridge/internal/weight/engine"
)

// ContainerList accepts both wire encodings of a container list: a JSON
// array of strings, or a single comma-separated string.
type ContainerList []string

// UnmarshalJSON implements the json.Unmarshaler interface.
func (c *ContainerList) UnmarshalJSON(buf []byte) error {
	var list []string
	if err := json.Unmarshal(buf, &list); err == nil {
		*c = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(buf, &joined); err != nil {
		return fmt.Errorf("expected a list of container IDs or a comma-separated string, but got %s", string(buf))
	}
	*c = strings.Split(joined, ",")
	return nil
}

// weighingResponse is the wire form of an engine.WeighingResult.
type weighingResponse struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Direction db.Direction   `json:"direction"`
	Truck     *string        `json:"truck"`
	Bruto     int64          `json:"bruto"`
	TruckTara *int64         `json:"truck_tara"`
	Neto      util.KilosOrNA `json:"neto"`
}

// PostWeight implements the POST /weight endpoint.
func (p *v1API) PostWeight(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/weight")
	var parseTarget struct {
		Direction  string        `json:"direction"`
		Truck      string        `json:"truck"`
		Containers ContainerList `json:"containers"`
		Weight     int64         `json:"weight"`
		Unit       string        `json:"unit"`
		Produce    string        `json:"produce"`
		Force      bool          `json:"force"`
	}
	if !RequireJSON(w, r, &parseTarget) {
		return
	}

	unit, err := core.ParseUnit(parseTarget.Unit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := p.Engine.RecordWeighing(engine.WeighingRequest{
		Direction:  db.Direction(strings.ToLower(strings.TrimSpace(parseTarget.Direction))),
		Truck:      parseTarget.Truck,
		Containers: parseTarget.Containers,
		Weight:     parseTarget.Weight,
		Unit:       unit,
		Produce:    parseTarget.Produce,
		Force:      parseTarget.Force,
	})
	if respondToEngineError(w, err) {
		return
	}

	weighingsTotalCounter.WithLabelValues(string(result.Direction)).Inc()
	respondwith.JSON(w, http.StatusOK, weighingResponse{
		ID:        result.ID,
		SessionID: result.SessionID,
		Direction: result.Direction,
		Truck:     result.Truck,
		Bruto:     result.Bruto,
		TruckTara: result.TruckTara,
		Neto:      util.KilosOrNA{Value: result.Neto},
	})
}

// PostBatchWeight implements the POST /batch-weight endpoint: it ingests a
// container tare file from the configured ingest directory.
func (p *v1API) PostBatchWeight(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/batch-weight")
	var parseTarget struct {
		File           string `json:"file"`
		AllowUpdates   bool   `json:"allow_updates"`
		SkipDuplicates bool   `json:"skip_duplicates"`
	}
	if !RequireJSON(w, r, &parseTarget) {
		return
	}

	result, err := p.Engine.IngestTareFile(p.Ingest, parseTarget.File, parseTarget.AllowUpdates, parseTarget.SkipDuplicates)
	if respondToEngineError(w, err) {
		return
	}

	batchIngestRowsCounter.WithLabelValues("processed").Add(float64(result.Processed))
	batchIngestRowsCounter.WithLabelValues("updated").Add(float64(result.Updated))
	batchIngestRowsCounter.WithLabelValues("skipped").Add(float64(result.Skipped))
	batchIngestRowsCounter.WithLabelValues("errors").Add(float64(result.Errors))
	respondwith.JSON(w, http.StatusOK, result)
}
