// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"

	"github.com/sapcc/weighbridge/internal/billing/weightclient"
	"github.com/sapcc/weighbridge/internal/util"
)

// BillingClientDouble stands in for billingclient.Client in workflow tests.
type BillingClientDouble struct {
	NextProviderID int64
	Err            error
	CallCount      int
}

// CreateProvider implements the workflow.BillingClient interface.
func (d *BillingClientDouble) CreateProvider(ctx context.Context, name string) (int64, error) {
	d.CallCount++
	if d.Err != nil {
		return 0, d.Err
	}
	return d.NextProviderID, nil
}

// WeightSourceDouble stands in for weightclient.Client in aggregator tests.
type WeightSourceDouble struct {
	Records []weightclient.TransactionRecord
	Err     error
}

// ListWeighings implements the aggregate.WeightSource interface.
func (d *WeightSourceDouble) ListWeighings(ctx context.Context, window util.Window, directionFilter string) ([]weightclient.TransactionRecord, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Records, nil
}
