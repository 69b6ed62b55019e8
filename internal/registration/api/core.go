// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package api implements the HTTP API of the Provider-Registration service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/weighbridge/internal/registration/auth"
	"github.com/sapcc/weighbridge/internal/registration/workflow"
)

type v1API struct {
	Workflow *workflow.Workflow
	Auth     *auth.TokenIssuer
}

// NewV1API creates an httpapi.API that serves the Registration service API.
func NewV1API(wf *workflow.Workflow, tokenIssuer *auth.TokenIssuer) httpapi.API {
	return &v1API{Workflow: wf, Auth: tokenIssuer}
}

// AddTo implements the httpapi.API interface.
func (p *v1API) AddTo(r *mux.Router) {
	r.Methods("POST").Path("/candidates").HandlerFunc(p.PostCandidate)
	r.Methods("GET").Path("/candidates").HandlerFunc(p.ListCandidates)
	r.Methods("GET").Path("/candidates/{id}").HandlerFunc(p.GetCandidate)
	r.Methods("POST").Path("/candidates/{id}/approve").HandlerFunc(p.ApproveCandidate)
	r.Methods("POST").Path("/candidates/{id}/reject").HandlerFunc(p.RejectCandidate)

	r.Methods("POST").Path("/auth/login").HandlerFunc(p.PostLogin)
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

// respondToWorkflowError translates workflow-level errors into HTTP
// responses. It returns true if an error response was written.
func respondToWorkflowError(w http.ResponseWriter, err error) bool {
	var (
		validationErr workflow.ValidationError
		duplicateErr  workflow.DuplicateEmailError
		stateErr      workflow.StateError
		concurrentErr workflow.ConcurrentModificationError
		upstreamErr   workflow.UpstreamError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusUnprocessableEntity)
		return true
	case errors.As(err, &duplicateErr):
		http.Error(w, duplicateErr.Error(), http.StatusConflict)
		return true
	case errors.As(err, &stateErr):
		http.Error(w, stateErr.Error(), http.StatusBadRequest)
		return true
	case errors.As(err, &concurrentErr):
		http.Error(w, concurrentErr.Error(), http.StatusConflict)
		return true
	case errors.As(err, &upstreamErr):
		http.Error(w, upstreamErr.Error(), http.StatusBadGateway)
		return true
	default:
		logg.Error("request failed: %s", err.Error())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return true
	}
}
