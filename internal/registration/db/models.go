// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"encoding/json"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
)

// CandidateStatus is the lifecycle state of a provider candidate.
type CandidateStatus string

const (
	// StatusPending is the initial state of every candidate.
	StatusPending CandidateStatus = "pending"
	// StatusApproved means a Provider was provisioned for this candidate.
	StatusApproved CandidateStatus = "approved"
	// StatusRejected is terminal and carries an optional reason.
	StatusRejected CandidateStatus = "rejected"
)

// IsValid returns whether this is one of the known statuses.
func (s CandidateStatus) IsValid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// ProductVocabulary is the closed set of products that candidates may offer.
var ProductVocabulary = []string{"apples", "oranges", "grapes", "bananas", "mangoes"}

// Candidate contains a record from the `candidates` table.
//
// Status transitions are guarded by an optimistic lock: every mutation
// carries `WHERE status = 'pending' AND version = <expected>` and bumps the
// version, so concurrent approvals cannot both win.
type Candidate struct {
	ID                 string          `db:"id"` // UUID
	CompanyName        string          `db:"company_name"`
	ContactEmail       string          `db:"contact_email"` // unique across all statuses
	Phone              *string         `db:"phone"`
	Products           string          `db:"products"` // JSON array, stored as JSONB
	TruckCount         int64           `db:"truck_count"`
	CapacityTonsPerDay int64           `db:"capacity_tons_per_day"`
	Location           *string         `db:"location"`
	Status             CandidateStatus `db:"status"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
	ProviderID         *int64          `db:"provider_id"` // set only on approval
	Version            int64           `db:"version"`
	RejectionReason    *string         `db:"rejection_reason"`
}

// ProductList decodes the JSONB products column.
func (c Candidate) ProductList() ([]string, error) {
	var products []string
	err := json.Unmarshal([]byte(c.Products), &products)
	return products, err
}

// SetProductList encodes the given products into the JSONB products column.
func (c *Candidate) SetProductList(products []string) error {
	buf, err := json.Marshal(products)
	if err != nil {
		return err
	}
	c.Products = string(buf)
	return nil
}

// initGorp is used by InitORM to set up the ORM part of the database connection.
func initGorp(dbMap *gorp.DbMap) {
	dbMap.AddTableWithName(Candidate{}, "candidates").SetKeys(false, "id")
}
