// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/proposer"
	"github.com/ava-labs/paranode/relay"
)

type metrics struct {
	authored       prometheus.Counter
	skipped        *prometheus.CounterVec
	relayRejected  prometheus.Counter
	resubmitted    prometheus.Counter
	finalized      prometheus.Gauge
	relayNumber    prometheus.Gauge
	roundDurations prometheus.Histogram
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		authored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consensus",
			Name:      "authored_blocks",
			Help:      "number of blocks authored and imported locally",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consensus",
			Name:      "skipped_rounds",
			Help:      "number of rounds abandoned, by reason",
		}, []string{"reason"}),
		relayRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consensus",
			Name:      "relay_rejected_collations",
			Help:      "number of collations the relay refused",
		}),
		resubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consensus",
			Name:      "resubmitted_collations",
			Help:      "number of locally imported blocks announced again after the relay missed them",
		}),
		finalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus",
			Name:      "finalized_height",
			Help:      "height of the last finalized block",
		}),
		relayNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus",
			Name:      "relay_finalized_number",
			Help:      "number of the latest finalized relay block seen",
		}),
		roundDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consensus",
			Name:      "round_seconds",
			Help:      "time spent in authoring rounds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	return m, errors.Join(
		r.Register(m.authored),
		r.Register(m.skipped),
		r.Register(m.relayRejected),
		r.Register(m.resubmitted),
		r.Register(m.finalized),
		r.Register(m.relayNumber),
		r.Register(m.roundDurations),
	)
}

func reason(err error) string {
	switch {
	case errors.Is(err, inherent.ErrInherentUnavailable):
		return "inherent_unavailable"
	case errors.Is(err, relay.ErrUnavailable):
		return "relay_unavailable"
	case errors.Is(err, proposer.ErrProposalTimeout):
		return "proposal_timeout"
	case errors.Is(err, proposer.ErrPoVExceeded):
		return "pov_exceeded"
	case errors.Is(err, ErrImportRejected):
		return "import_rejected"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	default:
		return "other"
	}
}
