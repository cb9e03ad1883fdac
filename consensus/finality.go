// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/chain"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/relay"
)

// finalityTracker finalizes the para head included by the latest
// finalized relay block.
type finalityTracker struct {
	log     logging.Logger
	paraID  config.ParaID
	relay   relay.Interface
	client  *chain.Client
	metrics *metrics
}

func newFinalityTracker(p Params, m *metrics) *finalityTracker {
	return &finalityTracker{
		log:     p.Log,
		paraID:  p.ParaID,
		relay:   p.Relay,
		client:  p.Client,
		metrics: m,
	}
}

func (f *finalityTracker) track(ctx context.Context, st relay.State) error {
	f.metrics.relayNumber.Set(float64(st.Number))
	vd, err := f.relay.ValidationDataFor(ctx, st.Hash, f.paraID)
	if err != nil {
		return err
	}
	head := vd.ParentHead
	if head == ids.Empty {
		return nil
	}
	if known, err := f.client.HasBlock(ctx, head); err != nil || !known {
		// The included head has not been imported yet.
		return err
	}
	updated, err := f.client.SetFinalized(ctx, head)
	if err != nil {
		return err
	}
	if updated {
		fin := f.client.Finalized()
		f.metrics.finalized.Set(float64(fin.Height))
		f.log.Debug("finalized block",
			zap.Stringer("id", fin.ID()),
			zap.Uint64("height", fin.Height),
			zap.Uint64("relayNumber", st.Number),
		)
	}
	return nil
}
