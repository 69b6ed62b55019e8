// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/weighbridge/internal/billing/db"
)

// maxProviderNameLength bounds the provider display name.
const maxProviderNameLength = 255

// maxTruckLicenseLength bounds the externally meaningful truck license.
const maxTruckLicenseLength = 10

func parseProviderName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", errors.New("provider name must not be empty")
	}
	if len(name) > maxProviderNameLength {
		return "", errors.New("provider name must not exceed 255 characters")
	}
	return name, nil
}

// PostProvider implements the POST /provider endpoint.
func (p *v1API) PostProvider(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/provider")
	var parseTarget struct {
		Name string `json:"name"`
	}
	if !RequireJSON(w, r, &parseTarget) {
		return
	}
	name, err := parseProviderName(parseTarget.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	provider := db.Provider{Name: name}
	err = p.DB.Insert(&provider)
	if isUniqueViolation(err) {
		http.Error(w, "a provider with this name already exists", http.StatusConflict)
		return
	}
	if respondwith.ErrorText(w, err) {
		return
	}
	respondwith.JSON(w, http.StatusCreated, provider)
}

// PutProvider implements the PUT /provider/{id} endpoint (rename).
func (p *v1API) PutProvider(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/provider/:id")
	provider := p.findProviderFromRequest(w, r, "id")
	if provider == nil {
		return
	}
	var parseTarget struct {
		Name string `json:"name"`
	}
	if !RequireJSON(w, r, &parseTarget) {
		return
	}
	name, err := parseProviderName(parseTarget.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	provider.Name = name
	_, err = p.DB.Update(provider)
	if isUniqueViolation(err) {
		http.Error(w, "a provider with this name already exists", http.StatusConflict)
		return
	}
	if respondwith.ErrorText(w, err) {
		return
	}
	respondwith.JSON(w, http.StatusOK, provider)
}

// GetProvider implements the GET /provider/{id} endpoint.
func (p *v1API) GetProvider(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/provider/:id")
	provider := p.findProviderFromRequest(w, r, "id")
	if provider == nil {
		return
	}
	respondwith.JSON(w, http.StatusOK, provider)
}

// ListProviders implements the GET /providers endpoint.
func (p *v1API) ListProviders(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/providers")
	var providers []db.Provider
	_, err := p.DB.Select(&providers, `SELECT * FROM providers ORDER BY id`)
	if respondwith.ErrorText(w, err) {
		return
	}
	if providers == nil {
		providers = []db.Provider{}
	}
	respondwith.JSON(w, http.StatusOK, providers)
}

// findProviderFromRequest loads the db.Provider referenced by the given
// path parameter. Any errors will be written into the response immediately
// and cause a nil return value.
func (p *v1API) findProviderFromRequest(w http.ResponseWriter, r *http.Request, pathParam string) *db.Provider {
	providerID, err := strconv.ParseInt(mux.Vars(r)[pathParam], 10, 64)
	if err != nil {
		http.Error(w, "invalid provider ID", http.StatusBadRequest)
		return nil
	}

	var provider db.Provider
	err = p.DB.SelectOne(&provider, `SELECT * FROM providers WHERE id = $1`, providerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		http.Error(w, "no such provider", http.StatusNotFound)
		return nil
	case respondwith.ErrorText(w, err):
		return nil
	default:
		return &provider
	}
}

// PostTruck implements the POST /truck endpoint. This is an upsert: posting
// an existing license reassigns the truck to the given provider.
func (p *v1API) PostTruck(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/truck")
	var parseTarget struct {
		ID         string `json:"id"`
		ProviderID int64  `json:"provider_id"`
	}
	if !RequireJSON(w, r, &parseTarget) {
		return
	}

	license := strings.TrimSpace(parseTarget.ID)
	if license == "" || len(license) > maxTruckLicenseLength {
		http.Error(w, "truck license must be 1-10 characters", http.StatusBadRequest)
		return
	}

	truck := db.Truck{ID: license, ProviderID: parseTarget.ProviderID}
	err := p.upsertTruck(&truck)
	if isForeignKeyViolation(err) {
		http.Error(w, "no such provider", http.StatusNotFound)
		return
	}
	if respondwith.ErrorText(w, err) {
		return
	}
	respondwith.JSON(w, http.StatusCreated, truck)
}

// PutTruck implements the PUT /truck/{id} endpoint (provider reassignment).
func (p *v1API) PutTruck(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/truck/:id")
	var truck db.Truck
	err := p.DB.SelectOne(&truck, `SELECT * FROM trucks WHERE id = $1`, mux.Vars(r)["id"])
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "no such truck", http.StatusNotFound)
		return
	}
	if respondwith.ErrorText(w, err) {
		return
	}

	var parseTarget struct {
		ProviderID int64 `json:"provider_id"`
	}
	if !RequireJSON(w, r, &parseTarget) {
		return
	}

	truck.ProviderID = parseTarget.ProviderID
	_, err = p.DB.Update(&truck)
	if isForeignKeyViolation(err) {
		http.Error(w, "no such provider", http.StatusNotFound)
		return
	}
	if respondwith.ErrorText(w, err) {
		return
	}
	respondwith.JSON(w, http.StatusOK, truck)
}

// ListTrucks implements the GET /trucks endpoint. The provider_id query
// parameter restricts the result to one provider's trucks.
func (p *v1API) ListTrucks(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/trucks")
	queryStr := `SELECT * FROM trucks ORDER BY id`
	var args []any
	if providerIDStr := r.URL.Query().Get("provider_id"); providerIDStr != "" {
		providerID, err := strconv.ParseInt(providerIDStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid provider ID", http.StatusBadRequest)
			return
		}
		queryStr = `SELECT * FROM trucks WHERE provider_id = $1 ORDER BY id`
		args = append(args, providerID)
	}

	var trucks []db.Truck
	_, err := p.DB.Select(&trucks, queryStr, args...)
	if respondwith.ErrorText(w, err) {
		return
	}
	if trucks == nil {
		trucks = []db.Truck{}
	}
	respondwith.JSON(w, http.StatusOK, trucks)
}

// upsertTruck inserts the truck, or reassigns it if the license is already
// registered.
func (p *v1API) upsertTruck(truck *db.Truck) error {
	var existing db.Truck
	err := p.DB.SelectOne(&existing, `SELECT * FROM trucks WHERE id = $1`, truck.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return p.DB.Insert(truck)
	}
	if err != nil {
		return err
	}
	_, err = p.DB.Update(truck)
	return err
}
