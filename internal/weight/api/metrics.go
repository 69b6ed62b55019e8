// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

var weighingsTotalCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "weighbridge_weighings_total",
		Help: "Number of successfully recorded weighings, by direction.",
	},
	[]string{"direction"},
)

var batchIngestRowsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "weighbridge_container_batch_rows_total",
		Help: "Number of container tare batch rows, by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(weighingsTotalCounter)
	prometheus.MustRegister(batchIngestRowsCounter)
}
