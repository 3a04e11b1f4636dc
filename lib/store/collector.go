// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// pebbleMetric maps one pebble.Metrics field onto a Prometheus series.
type pebbleMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func(*pebble.Metrics) float64
}

// Collector exports pebble's internal metrics. Register it with the
// engine's prometheus.Registry; values are read from the database on
// every scrape.
type Collector struct {
	db      *DB
	metrics []pebbleMetric
}

// NewCollector returns a Collector for db.
func NewCollector(db *DB) *Collector {
	metric := func(name, help string, valueType prometheus.ValueType, value func(*pebble.Metrics) float64) pebbleMetric {
		return pebbleMetric{
			desc:      prometheus.NewDesc("eventgraph_pebble_"+name, help, nil, nil),
			valueType: valueType,
			value:     value,
		}
	}
	return &Collector{
		db: db,
		metrics: []pebbleMetric{
			metric("compaction_count_total", "Compactions performed.", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }),
			metric("compaction_estimated_debt_bytes", "Bytes to compact before the LSM is stable.", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }),
			metric("compaction_in_progress_bytes", "Bytes being compacted now.", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.Compact.InProgressBytes) }),
			metric("flush_count_total", "Memtable flushes performed.", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.Flush.Count) }),
			metric("memtable_size_bytes", "Bytes allocated by memtables.", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }),
			metric("memtable_count", "Live memtables.", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }),
			metric("block_cache_size_bytes", "Bytes in the block cache.", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.BlockCache.Size) }),
			metric("block_cache_hits_total", "Block cache hits.", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.BlockCache.Hits) }),
			metric("block_cache_misses_total", "Block cache misses.", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.BlockCache.Misses) }),
			metric("wal_files", "Live WAL files.", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }),
			metric("wal_size_bytes", "Bytes of live WAL data.", prometheus.GaugeValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }),
			metric("wal_bytes_in_total", "Logical bytes written to the WAL.", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesIn) }),
			metric("wal_bytes_written_total", "Physical bytes written to the WAL.", prometheus.CounterValue,
				func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.metrics {
		ch <- metric.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.db.Metrics()
	for _, metric := range c.metrics {
		ch <- prometheus.MustNewConstMetric(metric.desc, metric.valueType, metric.value(snapshot))
	}
}
