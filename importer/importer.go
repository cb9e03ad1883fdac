// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package importer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/set"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/chain"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/event"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/relay"
)

const sigBatchSize = 16

var (
	ErrRejected      = errors.New("block rejected")
	ErrKnownBlock    = errors.New("block already imported")
	ErrUnknownParent = errors.New("unknown parent")
)

type Config struct {
	// Mocked is true for standalone nodes, whose blocks carry mocked relay
	// data instead of relay proofs.
	Mocked bool
	// ParaID is the para relay proofs must be issued for.
	ParaID config.ParaID
	// Authorities restricts block authors when non-empty.
	Authorities set.Set[ed25519.PublicKey]
}

type metrics struct {
	imported prometheus.Counter
	rejected prometheus.Counter
	latency  prometheus.Histogram
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		imported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "importer",
			Name:      "imported_blocks",
			Help:      "number of blocks imported",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "importer",
			Name:      "rejected_blocks",
			Help:      "number of blocks that failed verification",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "importer",
			Name:      "import_seconds",
			Help:      "time spent verifying and writing a block",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	return m, errors.Join(
		r.Register(m.imported),
		r.Register(m.rejected),
		r.Register(m.latency),
	)
}

// Queue verifies blocks and appends them to the chain one at a time.
// Subscribers are notified after each import, in import order.
type Queue struct {
	config  Config
	log     logging.Logger
	tracer  trace.Tracer
	client  *chain.Client
	metrics *metrics

	lock sync.Mutex
	feed event.Feed[*block.Block]
}

func New(
	config Config,
	log logging.Logger,
	tracer trace.Tracer,
	client *chain.Client,
	registerer prometheus.Registerer,
) (*Queue, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Queue{
		config:  config,
		log:     log,
		tracer:  tracer,
		client:  client,
		metrics: m,
	}, nil
}

func (q *Queue) Subscribe(sub event.Subscription[*block.Block]) {
	q.feed.Subscribe(sub)
}

func (q *Queue) Client() *chain.Client {
	return q.client
}

func (q *Queue) HasBlock(ctx context.Context, id ids.ID) (bool, error) {
	return q.client.HasBlock(ctx, id)
}

func (q *Queue) GetBlock(ctx context.Context, id ids.ID) (*block.Block, error) {
	return q.client.GetBlock(ctx, id)
}

// Import verifies [b] against the current best block and accepts it.
func (q *Queue) Import(ctx context.Context, b *block.Block) error {
	ctx, span := q.tracer.Start(ctx, "Queue.Import")
	defer span.End()

	q.lock.Lock()
	defer q.lock.Unlock()

	return q.importLocked(ctx, b, false)
}

// ImportBatch verifies signatures of [blks] in parallel and then imports
// them in order. It stops at the first failure and returns how many blocks
// were imported.
func (q *Queue) ImportBatch(ctx context.Context, blks []*block.Block) (int, error) {
	ctx, span := q.tracer.Start(ctx, "Queue.ImportBatch")
	defer span.End()

	verified := q.verifySignatures(ctx, blks)

	q.lock.Lock()
	defer q.lock.Unlock()

	for i, b := range blks {
		if err := q.importLocked(ctx, b, verified); err != nil {
			return i, err
		}
	}
	return len(blks), nil
}

// verifySignatures reports whether every block in [blks] carries a valid
// signature. A false result means blocks are checked one by one.
func (q *Queue) verifySignatures(ctx context.Context, blks []*block.Block) bool {
	msgs := make([][]byte, len(blks))
	for i, b := range blks {
		if !b.Signed() {
			return false
		}
		msg, err := b.UnsignedBytes()
		if err != nil {
			return false
		}
		msgs[i] = msg
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for start := 0; start < len(blks); start += sigBatchSize {
		end := min(start+sigBatchSize, len(blks))
		batch := ed25519.NewBatch(end - start)
		for i := start; i < end; i++ {
			batch.Add(msgs[i], blks[i].Author, blks[i].Signature)
		}
		g.Go(batch.VerifyAsync())
	}
	if err := g.Wait(); err != nil {
		q.log.Debug("batch signature verification failed", zap.Error(err))
		return false
	}
	return true
}

func (q *Queue) importLocked(ctx context.Context, b *block.Block, sigVerified bool) error {
	start := time.Now()
	if err := q.verify(ctx, b, sigVerified); err != nil {
		if errors.Is(err, ErrRejected) {
			q.metrics.rejected.Inc()
		}
		return err
	}
	if err := q.client.Accept(ctx, b); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	q.metrics.imported.Inc()
	q.metrics.latency.Observe(time.Since(start).Seconds())
	q.log.Debug("imported block",
		zap.Stringer("id", b.ID()),
		zap.Uint64("height", b.Height),
		zap.Int("txs", len(b.Txs)),
	)
	if err := q.feed.Notify(ctx, b); err != nil {
		q.log.Warn("import subscriber failed", zap.Stringer("id", b.ID()), zap.Error(err))
	}
	return nil
}

func reject(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

func (q *Queue) verify(ctx context.Context, b *block.Block, sigVerified bool) error {
	known, err := q.client.HasBlock(ctx, b.ID())
	if err != nil {
		return err
	}
	if known {
		return ErrKnownBlock
	}
	parent := q.client.Best()
	if b.Parent != parent.ID() {
		if ok, _ := q.client.HasBlock(ctx, b.Parent); ok {
			return reject("parent %s is not the best block %s", b.Parent, parent.ID())
		}
		return fmt.Errorf("%w: %s", ErrUnknownParent, b.Parent)
	}
	if b.Height != parent.Height+1 {
		return reject("height %d does not follow parent %d", b.Height, parent.Height)
	}
	if b.Timestamp < parent.Timestamp {
		return reject("timestamp %d before parent %d", b.Timestamp, parent.Timestamp)
	}

	if err := b.Inherents.Validate(true); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	ts, err := b.Inherents.Timestamp()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if ts != b.Timestamp {
		return reject("timestamp inherent %d does not match header %d", ts, b.Timestamp)
	}
	d, err := b.Inherents.Parachain()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if err := q.verifyParachain(b, d); err != nil {
		return err
	}

	author, err := b.Inherents.Author()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if author != b.Author {
		return reject("author inherent %s does not match signer %s", author, b.Author)
	}
	if q.config.Authorities.Len() > 0 && !q.config.Authorities.Contains(author) {
		return reject("author %s is not an authority", author)
	}
	if !sigVerified {
		if err := b.VerifySignature(); err != nil {
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
	}
	return nil
}

func (q *Queue) verifyParachain(b *block.Block, d *inherent.ParachainData) error {
	vd := d.ValidationData
	switch {
	case d.Mocked != q.config.Mocked:
		return reject("mocked relay data %t, expected %t", d.Mocked, q.config.Mocked)
	case d.Mocked && vd.ParentHead != b.Parent:
		return reject("mocked parent head %s does not match parent %s", vd.ParentHead, b.Parent)
	case !d.Mocked && len(vd.Proof) == 0:
		return reject("missing relay proof")
	case !d.Mocked && vd.RelayParent == ids.Empty:
		return reject("missing relay parent")
	case vd.MaxPoVSize > 0 && b.Size() > int(vd.MaxPoVSize):
		return reject("block size %d exceeds pov limit %d", b.Size(), vd.MaxPoVSize)
	}
	if !d.Mocked {
		if err := relay.VerifyProof(&vd, q.config.ParaID); err != nil {
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
	}
	return nil
}
