// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
)

var candidateTransitionsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "weighbridge_candidate_transitions_total",
		Help: "Number of candidate state transitions, by outcome.",
	},
	[]string{"outcome"},
)

var orphanedProvidersCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "weighbridge_orphaned_providers_total",
		Help: "Number of providers created in the Billing service whose approval then lost the optimistic lock.",
	},
)

func init() {
	prometheus.MustRegister(candidateTransitionsCounter)
	prometheus.MustRegister(orphanedProvidersCounter)
}
