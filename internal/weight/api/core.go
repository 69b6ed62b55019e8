// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package api implements the HTTP API of the Weight service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/weighbridge/internal/weight/engine"
)

type v1API struct {
	DB     *gorp.DbMap
	Engine *engine.Engine
	Ingest engine.IngestConfig
	// slots for test doubles
	timeNow func() time.Time
}

// NewV1API creates an httpapi.API that serves the Weight service API.
func NewV1API(dbm *gorp.DbMap, eng *engine.Engine, ingest engine.IngestConfig, timeNow func() time.Time) httpapi.API {
	return &v1API{DB: dbm, Engine: eng, Ingest: ingest, timeNow: timeNow}
}

// AddTo implements the httpapi.API interface.
func (p *v1API) AddTo(r *mux.Router) {
	r.Methods("POST").Path("/weight").HandlerFunc(p.PostWeight)
	r.Methods("POST").Path("/batch-weight").HandlerFunc(p.PostBatchWeight)
	r.Methods("GET").Path("/weight").HandlerFunc(p.ListWeighings)
	r.Methods("GET").Path("/weight/{id}").HandlerFunc(p.GetWeighing)

	r.Methods("POST").Path("/container").HandlerFunc(p.PostContainer)
	r.Methods("GET").Path("/container/{id}").HandlerFunc(p.GetContainer)

	r.Methods("GET").Path("/item/{id}").HandlerFunc(p.GetItem)
	r.Methods("GET").Path("/session/{session_id}").HandlerFunc(p.GetSession)
	r.Methods("GET").Path("/unknown").HandlerFunc(p.ListUnknownContainers)

	// the canonical healthcheck lives at /healthcheck (see main.go), but the
	// external contract also promises this alias
	r.Methods("GET", "HEAD").Path("/health").HandlerFunc(p.GetHealth)
}

// GetHealth implements the GET /health endpoint: liveness plus DB
// connectivity.
func (p *v1API) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/health")
	httpapi.SkipRequestLog(r)

	err := p.DB.Db.PingContext(r.Context())
	if respondwith.ErrorText(w, err) {
		return
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// RequireJSON will parse the request body into the given data structure, or
// write an error response if that fails.
func RequireJSON(w http.ResponseWriter, r *http.Request, data any) bool {
	err := json.NewDecoder(r.Body).Decode(data)
	if err != nil {
		http.Error(w, "request body is not valid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// respondToEngineError translates engine-level errors into HTTP responses.
// It returns true if an error response was written. Storage-layer errors are
// reported as a plain 500 and never leak their details to the client.
func respondToEngineError(w http.ResponseWriter, err error) bool {
	var (
		validationErr engine.ValidationError
		sequenceErr   engine.WeighingSequenceError
		containerErr  engine.ContainerNotFoundError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
		return true
	case errors.As(err, &sequenceErr):
		http.Error(w, sequenceErr.Error(), http.StatusBadRequest)
		return true
	case errors.As(err, &containerErr):
		http.Error(w, containerErr.Error(), http.StatusBadRequest)
		return true
	default:
		return respondwith.ErrorText(w, err)
	}
}
