// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	txsSubmitted    prometheus.Counter
	txsAccepted     prometheus.Counter
	blocksImported  prometheus.Counter
	mempoolSize     prometheus.Gauge
	indexFailures   prometheus.Counter
	telemetryDrops  prometheus.GaugeFunc
	strategyRunning *prometheus.GaugeVec
}

func newMetrics(r prometheus.Registerer, dropped func() float64) (*metrics, error) {
	m := &metrics{
		txsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "node",
			Name:      "txs_submitted",
			Help:      "number of txs admitted to the pool",
		}),
		txsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "node",
			Name:      "txs_accepted",
			Help:      "number of txs included in imported blocks",
		}),
		blocksImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "node",
			Name:      "blocks_imported",
			Help:      "number of blocks appended to the chain",
		}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "node",
			Name:      "mempool_size",
			Help:      "number of transactions in the pool",
		}),
		indexFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "node",
			Name:      "index_failures",
			Help:      "number of blocks that could not be indexed",
		}),
		telemetryDrops: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "node",
			Name:      "telemetry_dropped",
			Help:      "number of telemetry messages dropped",
		}, dropped),
		strategyRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "node",
			Name:      "strategy",
			Help:      "selected consensus strategy",
		}, []string{"kind"}),
	}
	return m, errors.Join(
		r.Register(m.txsSubmitted),
		r.Register(m.txsAccepted),
		r.Register(m.blocksImported),
		r.Register(m.mempoolSize),
		r.Register(m.indexFailures),
		r.Register(m.telemetryDrops),
		r.Register(m.strategyRunning),
	)
}
