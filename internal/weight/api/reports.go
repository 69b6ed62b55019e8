// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/weighbridge/internal/util"
	"github.com/sapcc/weighbridge/internal/weight/reports"
)

// ListWeighings implements the GET /weight endpoint.
func (p *v1API) ListWeighings(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/weight")
	filter, err := reports.ReadFilter(r, p.timeNow())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := reports.GetTransactions(p.DB, filter)
	if respondwith.ErrorText(w, err) {
		return
	}
	respondwith.JSON(w, http.StatusOK, result)
}

// GetWeighing implements the GET /weight/{id} endpoint.
func (p *v1API) GetWeighing(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/weight/:id")
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid transaction ID", http.StatusBadRequest)
		return
	}

	report, err := reports.GetTransactionByID(p.DB, id)
	if respondwith.ErrorText(w, err) {
		return
	}
	if report == nil {
		http.Error(w, "no such transaction", http.StatusNotFound)
		return
	}
	respondwith.JSON(w, http.StatusOK, report)
}

// GetSession implements the GET /session/{session_id} endpoint.
func (p *v1API) GetSession(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/session/:id")
	report, err := reports.GetSession(p.DB, mux.Vars(r)["session_id"])
	if respondwith.ErrorText(w, err) {
		return
	}
	if report == nil {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}
	respondwith.JSON(w, http.StatusOK, report)
}

// GetItem implements the GET /item/{id} endpoint: the truck or container
// rollup over a time window.
func (p *v1API) GetItem(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/item/:id")
	query := r.URL.Query()
	window, err := util.ParseWindow(query.Get("from"), query.Get("to"), p.timeNow())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := reports.GetItemRollup(p.DB, mux.Vars(r)["id"], window)
	if respondwith.ErrorText(w, err) {
		return
	}
	if report == nil {
		http.Error(w, "no such item", http.StatusNotFound)
		return
	}
	respondwith.JSON(w, http.StatusOK, report)
}

// ListUnknownContainers implements the GET /unknown endpoint.
func (p *v1API) ListUnknownContainers(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/unknown")
	query := r.URL.Query()
	window, err := util.ParseWindow(query.Get("from"), query.Get("to"), p.timeNow())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids, err := p.Engine.UnknownContainers(window)
	if respondwith.ErrorText(w, err) {
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondwith.JSON(w, http.StatusOK, ids)
}
