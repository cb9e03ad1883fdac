// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/set"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/relay"
)

var _ Strategy = (*CollatorAuthoring)(nil)

// CollatorAuthoring authors one block per new finalized relay state and
// submits it to the relay as a collation.
type CollatorAuthoring struct {
	*author

	paraID    config.ParaID
	slot      time.Duration
	relay     relay.Interface
	assembler inherent.Assembler
	eligible  set.Set[ed25519.PublicKey]
	force     bool
	finality  *finalityTracker

	lastRelayParent ids.ID
	// backed is the head of the last collation the relay accepted from this
	// node. Local blocks above it are announced again before authoring.
	backed ids.ID
}

func (*CollatorAuthoring) Kind() Kind { return KindCollatorAuthoring }

func (*CollatorAuthoring) sealed() {}

func (c *CollatorAuthoring) Run(ctx context.Context) error {
	c.log.Info("starting collator",
		zap.Uint32("para", uint32(c.paraID)),
		zap.Stringer("author", c.key),
		zap.Bool("forceAuthoring", c.force),
	)
	ticker := time.NewTicker(pollInterval(c.slot))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := c.round(ctx)
			switch {
			case err == nil, errors.Is(err, errNoNewRelayData):
			case errors.Is(err, ErrSigningUnavailable):
				return err
			default:
				c.skip(err)
			}
		}
	}
}

// pollInterval checks the relay several times per slot so a new finalized
// state is picked up early in its slot.
func pollInterval(slot time.Duration) time.Duration {
	return max(slot/4, 10*time.Millisecond)
}

func (c *CollatorAuthoring) canAuthor() bool {
	return c.force || c.eligible.Len() == 0 || c.eligible.Contains(c.key)
}

// round resubmits unbacked blocks, then runs assembly, proposal, import,
// network announce and relay announce.
func (c *CollatorAuthoring) round(ctx context.Context) error {
	st, err := c.relay.LatestRelayState(ctx)
	if err != nil {
		return err
	}
	if st.Hash == c.lastRelayParent {
		return errNoNewRelayData
	}
	c.lastRelayParent = st.Hash
	if err := c.finality.track(ctx, st); err != nil {
		c.log.Debug("unable to track finality", zap.Error(err))
	}
	if !c.canAuthor() {
		return fmt.Errorf("%w: %s", ErrNotEligible, c.key)
	}

	ctx, span := c.tracer.Start(ctx, "CollatorAuthoring.round")
	defer span.End()
	start := time.Now()

	parent := c.client.Best()
	if err := c.resubmit(ctx, st.Hash, parent); err != nil {
		return err
	}
	bundle, err := c.assembler.Assemble(ctx, inherent.Request{
		ParentID:        parent.ID(),
		ParentHeight:    parent.Height,
		ParentTimestamp: parent.Timestamp,
		RelayParent:     st.Hash,
	})
	if err != nil {
		return err
	}
	proposal, err := c.produce(ctx, parent, bundle)
	if err != nil {
		return err
	}
	b := proposal.Block
	collation, err := c.collation(st.Hash, b)
	if err != nil {
		return err
	}
	if err := c.relay.Announce(ctx, collation); err != nil {
		// The block stays imported locally and is announced again next round.
		c.metrics.relayRejected.Inc()
		c.log.Warn("relay did not back collation",
			zap.Stringer("id", b.ID()),
			zap.Uint64("height", b.Height),
			zap.Error(err),
		)
	} else {
		c.backed = b.ID()
	}
	c.metrics.roundDurations.Observe(time.Since(start).Seconds())
	return nil
}

// resubmit announces every local block above the last backed head, oldest
// first, against [relayParent].
func (c *CollatorAuthoring) resubmit(ctx context.Context, relayParent ids.ID, best *block.Block) error {
	if c.backed == ids.Empty || c.backed == best.ID() {
		return nil
	}
	backed, err := c.client.GetBlock(ctx, c.backed)
	if err != nil {
		c.log.Warn("dropping unknown backed head", zap.Stringer("id", c.backed), zap.Error(err))
		c.backed = ids.Empty
		return nil
	}
	for height := backed.Height + 1; height <= best.Height; height++ {
		b, err := c.client.GetBlockByHeight(ctx, height)
		if err != nil {
			return err
		}
		collation, err := c.collation(relayParent, b)
		if err != nil {
			return err
		}
		if err := c.relay.Announce(ctx, collation); err != nil {
			return fmt.Errorf("failed to resubmit block %d: %w", height, err)
		}
		c.backed = b.ID()
		c.metrics.resubmitted.Inc()
		c.log.Info("resubmitted collation",
			zap.Stringer("id", b.ID()),
			zap.Uint64("height", b.Height),
		)
	}
	return nil
}

func (c *CollatorAuthoring) collation(relayParent ids.ID, b *block.Block) (*relay.Collation, error) {
	data, err := b.Inherents.Parachain()
	if err != nil {
		return nil, err
	}
	return &relay.Collation{
		ParaID:              c.paraID,
		RelayParent:         relayParent,
		ParentHead:          b.Parent,
		Head:                b.ID(),
		Number:              b.Height,
		Block:               b.Bytes(),
		ProcessedDownward:   uint32(len(data.ValidationData.DownwardMessages)),
		ProcessedHorizontal: uint32(len(data.ValidationData.HorizontalMessages)),
	}, nil
}
