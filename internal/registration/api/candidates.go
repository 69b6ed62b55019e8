// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/weighbridge/internal/registration/db"
	"github.com/sapcc/weighbridge/internal/registration/workflow"
)

// PostCandidate implements the POST /candidates endpoint.
func (p *v1API) PostCandidate(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/candidates")
	var req workflow.CandidateRequest
	if !RequireJSON(w, r, &req) {
		return
	}

	candidate, err := p.Workflow.CreateCandidate(req)
	if respondToWorkflowError(w, err) {
		return
	}
	p.respondWithCandidate(w, http.StatusCreated, *candidate)
}

// ListCandidates implements the GET /candidates endpoint.
func (p *v1API) ListCandidates(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/candidates")
	filter, err := workflow.ReadListFilter(r.URL.Query())
	if respondToWorkflowError(w, err) {
		return
	}

	candidates, err := p.Workflow.ListCandidates(filter)
	if respondToWorkflowError(w, err) {
		return
	}

	reports := make([]workflow.CandidateReport, len(candidates))
	for idx, candidate := range candidates {
		reports[idx], err = workflow.ReportForCandidate(candidate)
		if respondToWorkflowError(w, err) {
			return
		}
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{"candidates": reports})
}

// GetCandidate implements the GET /candidates/{id} endpoint.
func (p *v1API) GetCandidate(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/candidates/:id")
	candidate, err := p.Workflow.GetCandidate(mux.Vars(r)["id"])
	if respondToWorkflowError(w, err) {
		return
	}
	if candidate == nil {
		http.Error(w, "no such candidate", http.StatusNotFound)
		return
	}
	p.respondWithCandidate(w, http.StatusOK, *candidate)
}

// ApproveCandidate implements the POST /candidates/{id}/approve endpoint.
// Admin only.
func (p *v1API) ApproveCandidate(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/candidates/:id/approve")
	if !p.Auth.CheckAdmin(w, r) {
		return
	}

	candidate, err := p.Workflow.ApproveCandidate(r.Context(), mux.Vars(r)["id"])
	if respondToWorkflowError(w, err) {
		return
	}
	if candidate == nil {
		http.Error(w, "no such candidate", http.StatusNotFound)
		return
	}
	p.respondWithCandidate(w, http.StatusOK, *candidate)
}

// RejectCandidate implements the POST /candidates/{id}/reject endpoint.
// Admin only.
func (p *v1API) RejectCandidate(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/candidates/:id/reject")
	if !p.Auth.CheckAdmin(w, r) {
		return
	}

	// the body is optional, so a missing or empty one is fine
	var parseTarget struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 && !RequireJSON(w, r, &parseTarget) {
		return
	}

	candidate, err := p.Workflow.RejectCandidate(mux.Vars(r)["id"], parseTarget.Reason)
	if respondToWorkflowError(w, err) {
		return
	}
	if candidate == nil {
		http.Error(w, "no such candidate", http.StatusNotFound)
		return
	}
	p.respondWithCandidate(w, http.StatusOK, *candidate)
}

// PostLogin implements the POST /auth/login endpoint.
func (p *v1API) PostLogin(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/auth/login")
	httpapi.SkipRequestLog(r) // never log credentials, even on parse errors
	var parseTarget struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !RequireJSON(w, r, &parseTarget) {
		return
	}

	token, ok := p.Auth.Login(parseTarget.Username, parseTarget.Password)
	if !ok {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
	})
}

func (p *v1API) respondWithCandidate(w http.ResponseWriter, status int, candidate db.Candidate) {
	report, err := workflow.ReportForCandidate(candidate)
	if respondToWorkflowError(w, err) {
		return
	}
	respondwith.JSON(w, status, report)
}
