// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package aggregate computes per-provider bills by joining the truck
// registry and the rate book with transaction data pulled from the Weight
// service.
package aggregate

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/weighbridge/internal/billing/db"
	"github.com/sapcc/weighbridge/internal/billing/ratebook"
	"github.com/sapcc/weighbridge/internal/billing/weightclient"
	"github.com/sapcc/weighbridge/internal/util"
)

// WeightSource produces the transactions that a bill is computed from.
// It is implemented by weightclient.Client.
type WeightSource interface {
	ListWeighings(ctx context.Context, window util.Window, directionFilter string) ([]weightclient.TransactionRecord, error)
}

// ProductCharge is the per-product rollup within a Bill.
type ProductCharge struct {
	Product string             `json:"product"`
	Count   util.DecimalString `json:"count"`  // session tally; a decimal string on the wire
	Amount  int64              `json:"amount"` // sum of neto, in kg
	Rate    int64              `json:"rate"`
	Pay     int64              `json:"pay"` // amount * rate
}

// Bill is the invoice for one provider over one time window.
type Bill struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	TruckCount   int             `json:"truckCount"`
	SessionCount int             `json:"sessionCount"`
	Products     []ProductCharge `json:"products"`
	Total        int64           `json:"total"`
}

// GetBill computes the bill for the given provider. A nil result without
// error means that the provider does not exist.
//
// When the Weight service is unavailable, the bill degrades to an empty
// product list with total = 0 instead of failing the request.
func GetBill(ctx context.Context, dbi db.Interface, source WeightSource, providerID int64, window util.Window) (*Bill, error) {
	var provider db.Provider
	err := dbi.SelectOne(&provider, `SELECT * FROM providers WHERE id = $1`, providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var trucks []db.Truck
	_, err = dbi.Select(&trucks, `SELECT * FROM trucks WHERE provider_id = $1 ORDER BY id`, providerID)
	if err != nil {
		return nil, err
	}
	truckSet := make(map[string]struct{}, len(trucks))
	for _, truck := range trucks {
		truckSet[truck.ID] = struct{}{}
	}

	bill := Bill{
		ID:         provider.ID,
		Name:       provider.Name,
		From:       util.FormatTimestamp(window.From),
		To:         util.FormatTimestamp(window.To),
		TruckCount: len(trucks),
		Products:   []ProductCharge{},
	}

	records, err := source.ListWeighings(ctx, window, "")
	if err != nil {
		logg.Error("billing for provider %d degrades to an empty bill: %s", providerID, err.Error())
		billsDegradedCounter.Inc()
		return &bill, nil
	}

	rates, err := ratebook.ListAll(dbi)
	if err != nil {
		return nil, err
	}

	charges := make(map[string]*ProductCharge) // key = lowercased product
	for _, record := range dedupeSessions(filterByTrucks(records, truckSet)) {
		bill.SessionCount++

		if !record.Neto.IsKnown() || *record.Neto.Value <= 0 {
			continue
		}
		if record.Produce == nil {
			continue
		}
		product := *record.Produce

		rate, ok := ratebook.Resolve(rates, product, providerID)
		if !ok {
			continue
		}

		key := strings.ToLower(product)
		charge := charges[key]
		if charge == nil {
			charge = &ProductCharge{Product: product, Rate: rate}
			charges[key] = charge
		}
		charge.Count++
		charge.Amount += *record.Neto.Value
	}

	for _, charge := range charges {
		charge.Pay = charge.Amount * charge.Rate
		bill.Total += charge.Pay
		bill.Products = append(bill.Products, *charge)
	}
	slices.SortFunc(bill.Products, func(lhs, rhs ProductCharge) int {
		return strings.Compare(strings.ToLower(lhs.Product), strings.ToLower(rhs.Product))
	})
	billsComputedCounter.Inc()
	return &bill, nil
}

func filterByTrucks(records []weightclient.TransactionRecord, truckSet map[string]struct{}) []weightclient.TransactionRecord {
	var result []weightclient.TransactionRecord
	for _, record := range records {
		if record.Truck == nil {
			continue
		}
		if _, exists := truckSet[*record.Truck]; exists {
			result = append(result, record)
		}
	}
	return result
}

// dedupeSessions reduces each session to a single representative record.
// A closed session appears twice in the transaction listing (the OUT row
// and the back-filled IN row carry the same neto), so counting both would
// double the bill. The OUT row wins; otherwise the first row with a known
// neto; otherwise the first row.
func dedupeSessions(records []weightclient.TransactionRecord) []weightclient.TransactionRecord {
	var (
		order          []string
		representative = make(map[string]weightclient.TransactionRecord)
	)
	for _, record := range records {
		current, exists := representative[record.SessionID]
		if !exists {
			order = append(order, record.SessionID)
			representative[record.SessionID] = record
			continue
		}
		if current.Direction == "out" {
			continue
		}
		if record.Direction == "out" || (!current.Neto.IsKnown() && record.Neto.IsKnown()) {
			representative[record.SessionID] = record
		}
	}

	result := make([]weightclient.TransactionRecord, len(order))
	for idx, sessionID := range order {
		result[idx] = representative[sessionID]
	}
	return result
}
