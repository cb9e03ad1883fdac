// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proposer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/mempool"
)

var (
	ErrProposalTimeout = errors.New("proposal timed out")
	ErrPoVExceeded     = errors.New("proof of validity exceeds relay limit")
)

type Config struct {
	MaxBlockTxs  int
	MaxBlockSize int
	Timeout      time.Duration
}

func NewConfig(c config.ConsensusConfig) Config {
	return Config{
		MaxBlockTxs:  c.MaxBlockTxs,
		MaxBlockSize: c.MaxBlockSize,
		Timeout:      c.ProposalTimeout,
	}
}

// Signer is satisfied by *keystore.Keystore.
type Signer interface {
	Key() (ed25519.PrivateKey, error)
}

// TxFilter drops a pooled transaction from a proposal when it returns an
// error.
type TxFilter func(context.Context, *mempool.Tx) error

// Proposal is a signed block and the pool transactions it consumed.
type Proposal struct {
	Block   *block.Block
	Txs     []*mempool.Tx
	Dropped int
}

type metrics struct {
	proposed prometheus.Counter
	timeouts prometheus.Counter
	txs      prometheus.Histogram
	pov      prometheus.Histogram
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		proposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proposer",
			Name:      "proposals",
			Help:      "number of blocks proposed",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proposer",
			Name:      "timeouts",
			Help:      "number of proposals abandoned at the deadline",
		}),
		txs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proposer",
			Name:      "block_txs",
			Help:      "transactions per proposed block",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		pov: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proposer",
			Name:      "pov_bytes",
			Help:      "encoded size of proposed blocks",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}),
	}
	return m, errors.Join(
		r.Register(m.proposed),
		r.Register(m.timeouts),
		r.Register(m.txs),
		r.Register(m.pov),
	)
}

// Proposer fills blocks from the transaction pool and signs them.
type Proposer struct {
	config  Config
	log     logging.Logger
	tracer  trace.Tracer
	pool    *mempool.Mempool
	signer  Signer
	filter  TxFilter
	now     func() time.Time
	metrics *metrics
}

func New(
	config Config,
	log logging.Logger,
	tracer trace.Tracer,
	pool *mempool.Mempool,
	signer Signer,
	filter TxFilter,
	registerer prometheus.Registerer,
) (*Proposer, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Proposer{
		config:  config,
		log:     log,
		tracer:  tracer,
		pool:    pool,
		signer:  signer,
		filter:  filter,
		now:     time.Now,
		metrics: m,
	}, nil
}

// Propose builds a child of [parent] carrying [inherents]. Consumed
// transactions are returned to the pool when the proposal fails.
func (p *Proposer) Propose(ctx context.Context, parent *block.Block, inherents *inherent.Bundle) (*Proposal, error) {
	ctx, span := p.tracer.Start(ctx, "Proposer.Propose")
	defer span.End()

	// Fail before touching the pool when no key is available.
	key, err := p.signer.Key()
	if err != nil {
		return nil, err
	}
	ts, err := inherents.Timestamp()
	if err != nil {
		return nil, err
	}
	var maxPoV uint32
	if d, err := inherents.Parachain(); err == nil {
		maxPoV = d.ValidationData.MaxPoVSize
	}

	deadline := p.now().Add(p.config.Timeout)
	popped := p.pool.Pop(ctx, p.config.MaxBlockTxs, p.config.MaxBlockSize)
	var (
		included = make([]*mempool.Tx, 0, len(popped))
		dropped  int
	)
	for _, tx := range popped {
		if p.now().After(deadline) {
			p.pool.Restore(ctx, popped)
			p.metrics.timeouts.Inc()
			return nil, fmt.Errorf("%w: after %d of %d txs", ErrProposalTimeout, len(included)+dropped, len(popped))
		}
		if p.filter != nil {
			if err := p.filter(ctx, tx); err != nil {
				p.log.Debug("dropping transaction from proposal",
					zap.Stringer("txID", tx.ID()),
					zap.Error(err),
				)
				dropped++
				continue
			}
		}
		included = append(included, tx)
	}

	b := &block.Block{
		Parent:    parent.ID(),
		Height:    parent.Height + 1,
		Timestamp: ts,
		Inherents: inherents,
		Txs:       make([][]byte, len(included)),
	}
	for i, tx := range included {
		b.Txs[i] = tx.Bytes()
	}
	if err := b.Sign(key); err != nil {
		p.pool.Restore(ctx, included)
		return nil, fmt.Errorf("failed to sign block: %w", err)
	}
	if maxPoV > 0 && b.Size() > int(maxPoV) {
		p.pool.Restore(ctx, included)
		return nil, fmt.Errorf("%w: %d > %d", ErrPoVExceeded, b.Size(), maxPoV)
	}

	p.metrics.proposed.Inc()
	p.metrics.txs.Observe(float64(len(included)))
	p.metrics.pov.Observe(float64(b.Size()))
	return &Proposal{Block: b, Txs: included, Dropped: dropped}, nil
}

// Abandon returns the transactions of a proposal that was not imported.
func (p *Proposer) Abandon(ctx context.Context, proposal *Proposal) {
	p.pool.Restore(ctx, proposal.Txs)
}
