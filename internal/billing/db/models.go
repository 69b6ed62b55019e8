// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

import (
	gorp "github.com/go-gorp/gorp/v3"
)

// Provider contains a record from the `providers` table. This type also
// doubles as its own API representation.
type Provider struct {
	ID   int64  `db:"id"   json:"id"`
	Name string `db:"name" json:"name"`
}

// Truck contains a record from the `trucks` table. The ID is the
// externally meaningful license plate.
type Truck struct {
	ID         string `db:"id"          json:"id"`
	ProviderID int64  `db:"provider_id" json:"provider_id"`
}

// Rate contains a record from the `rates` table.
//
// The table has no per-row identity worth preserving: each upload replaces
// it wholesale, and duplicate (product, scope) pairs are a user error that
// the model does not reject.
type Rate struct {
	ID      int64  `db:"id"      json:"-"`
	Product string `db:"product" json:"product"` // matched case-insensitively
	Rate    int64  `db:"rate"    json:"rate"`    // units of account; zero and negative encode rebates
	Scope   string `db:"scope"   json:"scope"`   // "ALL" or the decimal string of a provider ID
}

// ScopeAll is the rate scope that applies to every provider.
const ScopeAll = "ALL"

// initGorp is used by InitORM to set up the ORM part of the database connection.
func initGorp(dbMap *gorp.DbMap) {
	dbMap.AddTableWithName(Provider{}, "providers").SetKeys(true, "id")
	dbMap.AddTableWithName(Truck{}, "trucks").SetKeys(false, "id")
	dbMap.AddTableWithName(Rate{}, "rates").SetKeys(true, "id")
}
