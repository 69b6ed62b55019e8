// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package ratebook manages the product rate table of the Billing service:
// atomic wholesale replacement on upload, and scope-aware rate resolution.
package ratebook

import (
	"strconv"
	"strings"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/weighbridge/internal/billing/db"
)

// ReplaceAll replaces the entire rate table with the given rows, in one
// transaction. There is no per-product history: the previous table is gone
// after this commits.
func ReplaceAll(dbm *gorp.DbMap, rates []db.Rate) error {
	dbTx, err := dbm.Begin()
	if err != nil {
		return err
	}
	defer sqlext.RollbackUnlessCommitted(dbTx)

	_, err = dbTx.Exec(`DELETE FROM rates`)
	if err != nil {
		return err
	}
	for _, rate := range rates {
		rate.ID = 0 // assigned by the database
		err = dbTx.Insert(&rate)
		if err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

// ListAll returns the entire rate table.
func ListAll(dbi db.Interface) ([]db.Rate, error) {
	var rates []db.Rate
	_, err := dbi.Select(&rates, `SELECT * FROM rates ORDER BY product, scope, id`)
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// Resolve finds the rate for the given product and provider. A rate scoped
// to the provider's ID takes precedence over an "ALL"-scoped rate; products
// are matched case-insensitively. The second return value is false if no
// applicable rate exists.
func Resolve(rates []db.Rate, product string, providerID int64) (int64, bool) {
	providerScope := strconv.FormatInt(providerID, 10)

	var (
		fallback    int64
		hasFallback bool
	)
	for _, rate := range rates {
		if !strings.EqualFold(rate.Product, product) {
			continue
		}
		if rate.Scope == providerScope {
			return rate.Rate, true
		}
		if !hasFallback && strings.EqualFold(rate.Scope, db.ScopeAll) {
			fallback, hasFallback = rate.Rate, true
		}
	}
	return fallback, hasFallback
}
