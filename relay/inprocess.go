// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"sync/atomic"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/config"
)

var _ Interface = (*InProcess)(nil)

// InProcess exposes a [Service] running in the same process.
type InProcess struct {
	svc    *Service
	closed atomic.Bool
}

func NewInProcess(svc *Service) *InProcess {
	return &InProcess{svc: svc}
}

func (i *InProcess) Service() *Service {
	return i.svc
}

func (i *InProcess) LatestRelayState(ctx context.Context) (State, error) {
	if i.closed.Load() {
		return State{}, ErrClosed
	}
	return i.svc.LatestRelayState(ctx)
}

func (i *InProcess) ValidationDataFor(ctx context.Context, relayParent ids.ID, paraID config.ParaID) (*ValidationData, error) {
	if i.closed.Load() {
		return nil, ErrClosed
	}
	return i.svc.ValidationDataFor(ctx, relayParent, paraID)
}

func (i *InProcess) Announce(ctx context.Context, c *Collation) error {
	if i.closed.Load() {
		return ErrClosed
	}
	return i.svc.Announce(ctx, c)
}

// Close detaches from the service. The service itself stops with the task
// that runs it.
func (i *InProcess) Close() error {
	i.closed.Store(true)
	return nil
}
