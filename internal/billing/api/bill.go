// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/weighbridge/internal/billing/aggregate"
	"github.com/sapcc/weighbridge/internal/util"
)

// GetBill implements the GET /bill/{provider_id} endpoint.
func (p *v1API) GetBill(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/bill/:provider_id")

	providerID, err := strconv.ParseInt(mux.Vars(r)["provider_id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid provider ID", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	window, err := util.ParseWindow(query.Get("from"), query.Get("to"), p.timeNow())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bill, err := aggregate.GetBill(r.Context(), p.DB, p.WeightSource, providerID, window)
	if respondwith.ErrorText(w, err) {
		return
	}
	if bill == nil {
		http.Error(w, "no such provider", http.StatusNotFound)
		return
	}
	respondwith.JSON(w, http.StatusOK, bill)
}
