// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pebble

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pebble"

type metrics struct {
	stallStart atomic.Int64

	writeStall        prometheus.Histogram
	readLatency       prometheus.Histogram
	compactions       *prometheus.CounterVec
	activeCompactions prometheus.Gauge
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		writeStall: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_stall_seconds",
			Help:      "time writes were stalled by compaction debt",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		readLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "read_seconds",
			Help:      "time spent in db get",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions",
			Help:      "number of compactions started by input level",
		}, []string{"level"}),
		activeCompactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_compactions",
			Help:      "number of running compactions",
		}),
	}
	return m, errors.Join(
		r.Register(m.writeStall),
		r.Register(m.readLatency),
		r.Register(m.compactions),
		r.Register(m.activeCompactions),
	)
}

func (db *Database) listener() *pebble.EventListener {
	return &pebble.EventListener{
		CompactionBegin: func(info pebble.CompactionInfo) {
			db.metrics.activeCompactions.Inc()
			level := "other"
			if len(info.Input) > 0 && info.Input[0].Level == 0 {
				level = "l0"
			}
			db.metrics.compactions.WithLabelValues(level).Inc()
		},
		CompactionEnd: func(pebble.CompactionInfo) {
			db.metrics.activeCompactions.Dec()
		},
		WriteStallBegin: func(pebble.WriteStallBeginInfo) {
			db.metrics.stallStart.Store(time.Now().UnixNano())
		},
		WriteStallEnd: func() {
			start := db.metrics.stallStart.Swap(0)
			if start == 0 {
				return
			}
			db.metrics.writeStall.Observe(time.Since(time.Unix(0, start)).Seconds())
		},
	}
}

// sizeCollector reads table and WAL gauges from pebble on every scrape.
type sizeCollector struct {
	db *Database

	tombstones    *prometheus.Desc
	obsoleteBytes *prometheus.Desc
	obsoleteFiles *prometheus.Desc
	zombieBytes   *prometheus.Desc
	zombieFiles   *prometheus.Desc
}

func newSizeCollector(db *Database) *sizeCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &sizeCollector{
		db:            db,
		tombstones:    desc("tombstones", "approximate count of internal tombstones"),
		obsoleteBytes: desc("obsolete_bytes", "bytes in files the db no longer needs", "kind"),
		obsoleteFiles: desc("obsolete_files", "files the db no longer needs", "kind"),
		zombieBytes:   desc("zombie_table_bytes", "bytes in unreferenced tables still held by iterators"),
		zombieFiles:   desc("zombie_tables", "unreferenced tables still held by iterators"),
	}
}

func (c *sizeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tombstones
	ch <- c.obsoleteBytes
	ch <- c.obsoleteFiles
	ch <- c.zombieBytes
	ch <- c.zombieFiles
}

func (c *sizeCollector) Collect(ch chan<- prometheus.Metric) {
	c.db.lock.RLock()
	defer c.db.lock.RUnlock()

	if c.db.closed {
		return
	}
	m := c.db.db.Metrics()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	gauge(c.tombstones, float64(m.Keys.TombstoneCount))
	gauge(c.obsoleteBytes, float64(m.Table.ObsoleteSize), "table")
	gauge(c.obsoleteFiles, float64(m.Table.ObsoleteCount), "table")
	gauge(c.obsoleteBytes, float64(m.WAL.ObsoletePhysicalSize), "wal")
	gauge(c.obsoleteFiles, float64(m.WAL.ObsoleteFiles), "wal")
	gauge(c.zombieBytes, float64(m.Table.ZombieSize))
	gauge(c.zombieFiles, float64(m.Table.ZombieCount))
}
