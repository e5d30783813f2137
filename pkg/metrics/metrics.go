// Package metrics exposes the Prometheus collectors of the delta-join engine.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deltajoin"

var (
	// UpdatesRouted counts updates sent through a channel, by pact (pipeline, exchange, broadcast).
	UpdatesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_routed_total",
		Help:      "Number of updates sent to workers, by channel and pact",
	}, []string{"channel", "pact"})

	// ArrangementEntries tracks the number of entries stored in each arrangement shard.
	ArrangementEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "arrangement_entries",
		Help:      "Number of entries held by an arrangement shard",
	}, []string{"arrangement", "worker"})

	// HalfJoinLookups counts arrangement lookups performed by half-joins.
	HalfJoinLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "halfjoin_lookups_total",
		Help:      "Number of arrangement lookups performed by a half-join",
	}, []string{"operator"})

	// HalfJoinResults counts the rows emitted by half-joins.
	HalfJoinResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "halfjoin_results_total",
		Help:      "Number of join results emitted by a half-join",
	}, []string{"operator"})

	// HalfJoinPending tracks the broadcast records a half-join holds back until the arrangement
	// it reads is complete.
	HalfJoinPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "halfjoin_pending_records",
		Help:      "Number of broadcast records waiting for the arrangement frontier",
	}, []string{"operator", "worker"})

	// ValueClones counts the value copies made while producing join results.
	ValueClones = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "value_clones_total",
		Help:      "Number of value copies made by join operators",
	}, []string{"operator"})
)

// Worker renders a worker index as a label value.
func Worker(index int) string { return strconv.Itoa(index) }
