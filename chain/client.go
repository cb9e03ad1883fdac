// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/chainstore"
)

var (
	ErrNotBest     = errors.New("block does not extend best block")
	ErrNotAncestor = errors.New("block is not on the canonical chain")
)

// Client is the shared read/write handle on the local chain. The chain is
// linear: only blocks extending the current best block are accepted.
type Client struct {
	spec  *Spec
	store *chainstore.ChainStore

	lock      sync.RWMutex
	best      *block.Block
	finalized *block.Block
}

func NewClient(ctx context.Context, spec *Spec, store *chainstore.ChainStore) (*Client, error) {
	if err := store.Initialize(ctx, spec.Genesis()); err != nil {
		return nil, err
	}
	height, err := store.GetLastAcceptedHeight(ctx)
	if err != nil {
		return nil, err
	}
	best, err := store.GetBlockByHeight(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("failed to load best block at %d: %w", height, err)
	}
	fheight, err := store.GetFinalizedHeight(ctx)
	if err != nil {
		return nil, err
	}
	finalized, err := store.GetBlockByHeight(ctx, fheight)
	if err != nil {
		return nil, fmt.Errorf("failed to load finalized block at %d: %w", fheight, err)
	}
	return &Client{
		spec:      spec,
		store:     store,
		best:      best,
		finalized: finalized,
	}, nil
}

func (c *Client) Spec() *Spec {
	return c.spec
}

func (c *Client) Best() *block.Block {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.best
}

func (c *Client) Finalized() *block.Block {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.finalized
}

func (c *Client) GetBlock(ctx context.Context, id ids.ID) (*block.Block, error) {
	return c.store.GetBlock(ctx, id)
}

func (c *Client) GetBlockByHeight(ctx context.Context, height uint64) (*block.Block, error) {
	return c.store.GetBlockByHeight(ctx, height)
}

func (c *Client) HasBlock(ctx context.Context, id ids.ID) (bool, error) {
	return c.store.HasBlock(ctx, id)
}

// Accept persists [b] as the new best block.
func (c *Client) Accept(ctx context.Context, b *block.Block) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if b.Parent != c.best.ID() || b.Height != c.best.Height+1 {
		return fmt.Errorf("%w: %s at %d, best %s at %d", ErrNotBest, b.ID(), b.Height, c.best.ID(), c.best.Height)
	}
	if err := c.store.Accept(ctx, b); err != nil {
		return err
	}
	c.best = b
	return nil
}

// SetFinalized finalizes [id] and its ancestors. Finalizing an older block
// than the current finalized one is a no-op.
func (c *Client) SetFinalized(ctx context.Context, id ids.ID) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	height, err := c.store.GetBlockIDHeight(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrNotAncestor, id, err)
	}
	if height <= c.finalized.Height {
		return false, nil
	}
	b, err := c.store.GetBlockByHeight(ctx, height)
	if err != nil {
		return false, err
	}
	if b.ID() != id {
		return false, fmt.Errorf("%w: %s", ErrNotAncestor, id)
	}
	if err := c.store.SetFinalizedHeight(ctx, height); err != nil {
		return false, err
	}
	c.finalized = b
	return true, nil
}

// SelectChain picks the block new blocks are built on.
type SelectChain interface {
	BestChain(ctx context.Context) (*block.Block, error)
	Finalized(ctx context.Context) (*block.Block, error)
}

var _ SelectChain = (*LongestChain)(nil)

// LongestChain selects the highest accepted block. The client keeps a single
// linear chain, so this is its best block.
type LongestChain struct {
	client *Client
}

func NewLongestChain(c *Client) *LongestChain {
	return &LongestChain{client: c}
}

func (l *LongestChain) BestChain(context.Context) (*block.Block, error) {
	return l.client.Best(), nil
}

func (l *LongestChain) Finalized(context.Context) (*block.Block, error) {
	return l.client.Finalized(), nil
}
