// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"

	"github.com/ava-labs/paranode/relay"
)

var _ Strategy = (*FullNodeValidation)(nil)

// FullNodeValidation never authors. Blocks arrive through the network and
// the import queue; with a relay it finalizes the para head the relay has
// included. Without a relay it idles until shutdown.
type FullNodeValidation struct {
	log      logging.Logger
	slot     time.Duration
	relay    relay.Interface
	metrics  *metrics
	finality *finalityTracker

	lastRelayState ids.ID
}

func (*FullNodeValidation) Kind() Kind { return KindFullNodeValidation }

func (*FullNodeValidation) sealed() {}

// Tracking reports whether the strategy follows a relay.
func (f *FullNodeValidation) Tracking() bool {
	return f.relay != nil
}

func (f *FullNodeValidation) Run(ctx context.Context) error {
	if f.relay == nil {
		f.log.Info("no relay configured, validating imported blocks only")
		<-ctx.Done()
		return nil
	}
	f.log.Info("tracking relay finality")
	ticker := time.NewTicker(pollInterval(f.slot))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := f.poll(ctx); err != nil {
				skip(f.log, f.metrics, err)
			}
		}
	}
}

func (f *FullNodeValidation) poll(ctx context.Context) error {
	st, err := f.relay.LatestRelayState(ctx)
	if err != nil {
		return err
	}
	if st.Hash == f.lastRelayState {
		return nil
	}
	if err := f.finality.track(ctx, st); err != nil {
		return err
	}
	f.lastRelayState = st.Hash
	return nil
}
