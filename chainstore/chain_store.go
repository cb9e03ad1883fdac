// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/consts"
)

const (
	blockPrefix         byte = 0x0 // Height -> Block bytes
	blockIDHeightPrefix byte = 0x1 // ID -> Height
	blockHeightIDPrefix byte = 0x2 // Height -> ID
	lastAcceptedByte    byte = 0x3 // -> last accepted height
	finalizedByte       byte = 0x4 // -> finalized height
)

var (
	ErrGenesisMismatch   = errors.New("stored genesis does not match chain spec")
	ErrFinalityRegressed = errors.New("finalized height cannot decrease")
)

type Config struct {
	// AcceptedBlockWindow is the number of blocks kept on disk. Zero keeps
	// every block.
	AcceptedBlockWindow             uint64
	BlockCompactionAverageFrequency int
}

func NewDefaultConfig() Config {
	return Config{
		BlockCompactionAverageFrequency: 32,
	}
}

type metrics struct {
	accepted      prometheus.Counter
	deletedBlocks prometheus.Counter
	height        prometheus.Gauge
	finalized     prometheus.Gauge
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chainstore",
			Name:      "accepted_blocks",
			Help:      "number of blocks written",
		}),
		deletedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chainstore",
			Name:      "deleted_blocks",
			Help:      "number of blocks pruned",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chainstore",
			Name:      "last_accepted_height",
			Help:      "height of the last accepted block",
		}),
		finalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chainstore",
			Name:      "finalized_height",
			Help:      "height of the last finalized block",
		}),
	}
	return m, errors.Join(
		r.Register(m.accepted),
		r.Register(m.deletedBlocks),
		r.Register(m.height),
		r.Register(m.finalized),
	)
}

// ChainStore persists accepted blocks:
// height -> block bytes
// block ID -> height
// height -> block ID
type ChainStore struct {
	config  Config
	metrics *metrics
	log     logging.Logger
	db      database.Database
}

func New(log logging.Logger, db database.Database, registerer prometheus.Registerer, config Config) (*ChainStore, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &ChainStore{
		config:  config,
		metrics: m,
		log:     log,
		db:      db,
	}, nil
}

// Initialize writes [genesis] into an empty store, or checks that the stored
// genesis matches it.
func (c *ChainStore) Initialize(ctx context.Context, genesis *block.Block) error {
	stored, err := c.GetBlockIDAtHeight(ctx, 0)
	switch {
	case errors.Is(err, database.ErrNotFound):
		if err := c.Accept(ctx, genesis); err != nil {
			return err
		}
		return c.SetFinalizedHeight(ctx, 0)
	case err != nil:
		return err
	case stored != genesis.ID():
		return fmt.Errorf("%w: stored %s, expected %s", ErrGenesisMismatch, stored, genesis.ID())
	}
	return nil
}

func (c *ChainStore) GetLastAcceptedHeight(_ context.Context) (uint64, error) {
	b, err := c.db.Get([]byte{lastAcceptedByte})
	if err != nil {
		return 0, err
	}
	return database.ParseUInt64(b)
}

func (c *ChainStore) GetFinalizedHeight(_ context.Context) (uint64, error) {
	b, err := c.db.Get([]byte{finalizedByte})
	if err != nil {
		return 0, err
	}
	return database.ParseUInt64(b)
}

func (c *ChainStore) SetFinalizedHeight(ctx context.Context, height uint64) error {
	current, err := c.GetFinalizedHeight(ctx)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return err
	case height < current:
		return fmt.Errorf("%w: %d < %d", ErrFinalityRegressed, height, current)
	}
	if err := c.db.Put([]byte{finalizedByte}, database.PackUInt64(height)); err != nil {
		return err
	}
	c.metrics.finalized.Set(float64(height))
	return nil
}

func (c *ChainStore) Accept(_ context.Context, blk *block.Block) error {
	batch := c.db.NewBatch()

	var (
		blkID       = blk.ID()
		height      = blk.Height
		heightBytes = binary.BigEndian.AppendUint64(nil, height)
	)
	err := errors.Join(
		batch.Put([]byte{lastAcceptedByte}, heightBytes),
		batch.Put(PrefixBlockIDHeightKey(blkID), heightBytes),
		batch.Put(PrefixBlockHeightIDKey(height), blkID[:]),
		batch.Put(PrefixBlockKey(height), blk.Bytes()),
	)
	if err != nil {
		return err
	}

	var expiryHeight uint64
	if w := c.config.AcceptedBlockWindow; w > 0 && height > w {
		expiryHeight = height - w
	}
	// genesis is never pruned
	if expiryHeight > 0 {
		expiredID, err := c.db.Get(PrefixBlockHeightIDKey(expiryHeight))
		if err != nil {
			return fmt.Errorf("unable to fetch blockID at height %d: %w", expiryHeight, err)
		}
		if err := errors.Join(
			batch.Delete(PrefixBlockKey(expiryHeight)),
			batch.Delete(PrefixBlockIDHeightKey(ids.ID(expiredID))),
			batch.Delete(PrefixBlockHeightIDKey(expiryHeight)),
		); err != nil {
			return err
		}
		c.metrics.deletedBlocks.Inc()
		if rand.Intn(c.config.BlockCompactionAverageFrequency) == 0 { //nolint:gosec
			go c.compact(expiryHeight)
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	c.metrics.accepted.Inc()
	c.metrics.height.Set(float64(height))
	return nil
}

func (c *ChainStore) compact(end uint64) {
	start := time.Now()
	if err := c.db.Compact([]byte{blockPrefix}, PrefixBlockKey(end)); err != nil {
		c.log.Error("failed to compact block store", zap.Error(err))
		return
	}
	c.log.Info("compacted disk blocks", zap.Uint64("end", end), zap.Duration("t", time.Since(start)))
}

func (c *ChainStore) GetBlock(ctx context.Context, blkID ids.ID) (*block.Block, error) {
	height, err := c.GetBlockIDHeight(ctx, blkID)
	if err != nil {
		return nil, err
	}
	return c.GetBlockByHeight(ctx, height)
}

func (c *ChainStore) HasBlock(ctx context.Context, blkID ids.ID) (bool, error) {
	return c.db.Has(PrefixBlockIDHeightKey(blkID))
}

func (c *ChainStore) GetBlockIDAtHeight(_ context.Context, height uint64) (ids.ID, error) {
	b, err := c.db.Get(PrefixBlockHeightIDKey(height))
	if err != nil {
		return ids.Empty, err
	}
	return ids.ID(b), nil
}

func (c *ChainStore) GetBlockIDHeight(_ context.Context, blkID ids.ID) (uint64, error) {
	b, err := c.db.Get(PrefixBlockIDHeightKey(blkID))
	if err != nil {
		return 0, err
	}
	return database.ParseUInt64(b)
}

func (c *ChainStore) GetBlockByHeight(_ context.Context, height uint64) (*block.Block, error) {
	b, err := c.db.Get(PrefixBlockKey(height))
	if err != nil {
		return nil, err
	}
	return block.Parse(b)
}

func PrefixBlockKey(height uint64) []byte {
	k := make([]byte, 1+consts.Uint64Len)
	k[0] = blockPrefix
	binary.BigEndian.PutUint64(k[1:], height)
	return k
}

func PrefixBlockIDHeightKey(id ids.ID) []byte {
	k := make([]byte, 1+ids.IDLen)
	k[0] = blockIDHeightPrefix
	copy(k[1:], id[:])
	return k
}

func PrefixBlockHeightIDKey(height uint64) []byte {
	k := make([]byte, 1+consts.Uint64Len)
	k[0] = blockHeightIDPrefix
	binary.BigEndian.PutUint64(k[1:], height)
	return k
}
