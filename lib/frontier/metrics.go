// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frontier

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts frontier traffic. One Metrics may be shared by an
// Acquire and a Gossip.
type Metrics struct {
	fetches  *prometheus.CounterVec
	ingested prometheus.Counter
	sends    *prometheus.CounterVec
	pdus     *prometheus.CounterVec
}

// NewMetrics creates unregistered frontier metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgraph_fetches_total",
			Help: "Remote event fetches by source and final state.",
		}, []string{"source", "state"}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventgraph_fetched_events_ingested_total",
			Help: "Events received from remotes and written to the store.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgraph_gossip_transactions_total",
			Help: "Gossip transactions by final state.",
		}, []string{"state"}),
		pdus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgraph_gossip_pdus_total",
			Help: "Gossiped PDUs by remote verdict.",
		}, []string{"result"}),
	}
}

// Collectors returns the metrics for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.fetches, m.ingested, m.sends, m.pdus}
}
