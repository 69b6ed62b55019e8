// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"github.com/prometheus/client_golang/prometheus"
)

var billsComputedCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "weighbridge_bills_computed_total",
		Help: "Number of successfully computed provider bills.",
	},
)

var billsDegradedCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "weighbridge_bills_degraded_total",
		Help: "Number of bills that degraded to an empty product list because the weight service was unreachable.",
	},
)

func init() {
	prometheus.MustRegister(billsComputedCounter)
	prometheus.MustRegister(billsDegradedCounter)
}
