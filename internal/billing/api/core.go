// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package api implements the HTTP API of the Billing service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/weighbridge/internal/billing/aggregate"
)

type v1API struct {
	DB           *gorp.DbMap
	WeightSource aggregate.WeightSource
	// slots for test doubles
	timeNow func() time.Time
}

// NewV1API creates an httpapi.API that serves the Billing service API.
func NewV1API(dbm *gorp.DbMap, source aggregate.WeightSource, timeNow func() time.Time) httpapi.API {
	return &v1API{DB: dbm, WeightSource: source, timeNow: timeNow}
}

// AddTo implements the httpapi.API interface.
func (p *v1API) AddTo(r *mux.Router) {
	r.Methods("POST").Path("/provider").HandlerFunc(p.PostProvider)
	r.Methods("PUT").Path("/provider/{id}").HandlerFunc(p.PutProvider)
	r.Methods("GET").Path("/provider/{id}").HandlerFunc(p.GetProvider)
	r.Methods("GET").Path("/providers").HandlerFunc(p.ListProviders)

	r.Methods("POST").Path("/truck").HandlerFunc(p.PostTruck)
	r.Methods("PUT").Path("/truck/{id}").HandlerFunc(p.PutTruck)
	r.Methods("GET").Path("/trucks").HandlerFunc(p.ListTrucks)

	r.Methods("POST").Path("/rates").HandlerFunc(p.PostRates)
	r.Methods("GET").Path("/rates").HandlerFunc(p.GetRates)

	r.Methods("GET").Path("/bill/{provider_id}").HandlerFunc(p.GetBill)
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

// isUniqueViolation detects a Postgres unique-constraint error, which the
// handlers translate into 409.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation detects a Postgres foreign-key error. For truck
// upserts this means that the referenced provider does not exist.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
