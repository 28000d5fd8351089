/*
SPDX-FileCopyrightText: 2026 urumi.ai and store-operator contributors
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	prefix = "store_platform"
)

var (
	Reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_reconcile_total",
			Help: "Total number of store reconciliations per outcome",
		},
		[]string{"outcome"},
	)
	ProvisionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_provisioning_failures_total",
			Help: "Total provisioning failures",
		},
	)
	DriftHeals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_drift_heals_total",
			Help: "Total drift detections that triggered a self-heal upgrade",
		},
	)
	HelmInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_helm_invocations_total",
			Help: "Helm CLI invocations per subcommand",
		},
		[]string{"subcommand"},
	)
	StoresByPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_stores_total",
			Help: "Current number of stores per phase",
		},
		[]string{"phase"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		Reconciles,
		ProvisionFailures,
		DriftHeals,
		HelmInvocations,
		StoresByPhase,
	)
}
