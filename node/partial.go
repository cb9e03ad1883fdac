// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/set"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/chain"
	"github.com/ava-labs/paranode/chainstore"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/event"
	"github.com/ava-labs/paranode/importer"
	"github.com/ava-labs/paranode/index"
	"github.com/ava-labs/paranode/mempool"
	"github.com/ava-labs/paranode/storage"
	"github.com/ava-labs/paranode/tasks"
	"github.com/ava-labs/paranode/telemetry"
	ptrace "github.com/ava-labs/paranode/trace"
)

const metricsPrefix = "paranode_"

// PartialComponents are the services shared by every mode.
type PartialComponents struct {
	Config config.Config
	Log    logging.Logger
	Tracer trace.Tracer

	// Gatherer exposes everything registered through Registerer.
	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer

	Tasks *tasks.Manager
	Spec  *chain.Spec
	// ParaID is the configured para id, or the chain spec's when unset.
	ParaID      config.ParaID
	DB          database.Database
	Store       *chainstore.ChainStore
	Client      *chain.Client
	SelectChain chain.SelectChain
	Pool        *mempool.Mempool
	Importer    *importer.Queue
	Index       index.Index
	// Telemetry is nil when no endpoint is configured.
	Telemetry *telemetry.Handle

	metrics *metrics
}

// NewPartial builds the shared services. On failure everything opened so
// far is closed.
func NewPartial(ctx context.Context, c config.Config, log logging.Logger, parachain bool) (_ *PartialComponents, err error) {
	p := &PartialComponents{
		Config: c,
		Log:    log,
		Tasks:  tasks.New(ctx, log),
	}
	defer func() {
		if err != nil {
			if serr := p.Tasks.Shutdown(); serr != nil {
				log.Warn("failed to release partial components", zap.Error(serr))
			}
		}
	}()

	p.Spec, err = chain.LoadSpec(c.ChainSpec)
	if err != nil {
		return nil, initError(PhaseStore, err)
	}
	p.ParaID = c.ParaID
	if p.ParaID == 0 {
		p.ParaID = p.Spec.ParaID
	}

	registry := prometheus.NewRegistry()
	p.Gatherer = registry
	p.Registerer = prometheus.WrapRegistererWith(
		prometheus.Labels{"chain": p.Spec.ID},
		prometheus.WrapRegistererWithPrefix(metricsPrefix, registry),
	)

	worker, err := telemetry.New(c.Telemetry, p.Spec.Name, log)
	switch {
	case errors.Is(err, telemetry.ErrNoEndpoints):
	case err != nil:
		return nil, initError(PhaseTelemetry, err)
	default:
		p.Telemetry = worker.Handle()
		p.Tasks.Spawn("telemetry", worker.Run)
		log.Info("telemetry enabled", zap.String("session", worker.Session()))
	}
	traceConfig := c.Trace
	traceConfig.ChainID = p.Spec.ID
	p.Tracer, err = ptrace.New(&traceConfig)
	if err != nil {
		return nil, initError(PhaseTelemetry, err)
	}
	p.Tasks.AddCloser("tracer", p.Tracer.Close)
	dropped := func() float64 { return 0 }
	if worker != nil {
		dropped = func() float64 { return float64(worker.Dropped()) }
	}
	p.metrics, err = newMetrics(p.Registerer, dropped)
	if err != nil {
		return nil, initError(PhaseTelemetry, err)
	}

	if err := p.openStore(ctx, parachain); err != nil {
		return nil, initError(PhaseStore, err)
	}
	p.subscribe()
	return p, nil
}

func (p *PartialComponents) openStore(ctx context.Context, parachain bool) error {
	var (
		c   = p.Config
		err error
	)
	p.DB, err = storage.Open(c.Database, storage.PrimaryPath(c.DataDir, p.Spec.ID), p.Registerer)
	if err != nil {
		return err
	}
	p.Tasks.AddCloser("database", p.DB.Close)

	p.Store, err = chainstore.New(p.Log, p.DB, p.Registerer, chainstore.NewDefaultConfig())
	if err != nil {
		return err
	}
	p.Client, err = chain.NewClient(ctx, p.Spec, p.Store)
	if err != nil {
		return err
	}
	p.SelectChain = chain.NewLongestChain(p.Client)

	p.Index, err = index.Open(ctx, c.Index, c.Database, storage.IndexPath(c.DataDir, p.Spec.ID), p.Spec.ID, p.Registerer)
	if err != nil {
		return err
	}
	p.Tasks.AddCloser("index", p.Index.Close)

	p.Pool = mempool.New(p.Tracer, c.Pool.MaxSize, c.Pool.MaxTxSize)

	authorities, err := parseAuthorities(c.Consensus.EligibleAuthors)
	if err != nil {
		return err
	}
	p.Importer, err = importer.New(
		importer.Config{Mocked: !parachain, ParaID: p.ParaID, Authorities: authorities},
		p.Log,
		p.Tracer,
		p.Client,
		p.Registerer,
	)
	return err
}

// subscribe wires post-import bookkeeping. Failures are logged, never
// propagated to the import pipeline.
func (p *PartialComponents) subscribe() {
	p.Pool.Subscribe(event.SubscriptionFunc[*mempool.Tx]{
		AcceptF: func(ctx context.Context, _ *mempool.Tx) error {
			p.metrics.txsSubmitted.Inc()
			p.metrics.mempoolSize.Set(float64(p.Pool.Len(ctx)))
			return nil
		},
	})
	p.Importer.Subscribe(event.SubscriptionFunc[*block.Block]{
		AcceptF: func(ctx context.Context, b *block.Block) error {
			p.metrics.blocksImported.Inc()
			p.metrics.txsAccepted.Add(float64(len(b.Txs)))
			p.Pool.Remove(ctx, b.TxIDs())
			p.metrics.mempoolSize.Set(float64(p.Pool.Len(ctx)))
			if err := p.Index.IndexBlock(ctx, b); err != nil {
				p.metrics.indexFailures.Inc()
				p.Log.Warn("failed to index block",
					zap.Stringer("blkID", b.ID()),
					zap.Uint64("height", b.Height),
					zap.Error(err),
				)
			}
			p.Telemetry.Report(telemetry.VerbosityDebug, "block.imported", map[string]interface{}{
				"id":     b.ID().String(),
				"height": b.Height,
				"txs":    len(b.Txs),
			})
			return nil
		},
	})
}

func parseAuthorities(keys []string) (set.Set[ed25519.PublicKey], error) {
	authorities := set.NewSet[ed25519.PublicKey](len(keys))
	for _, k := range keys {
		pk, err := ed25519.ParsePublicKey(k)
		if err != nil {
			return nil, fmt.Errorf("invalid eligible author %q: %w", k, err)
		}
		authorities.Add(pk)
	}
	return authorities, nil
}
