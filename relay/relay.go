// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"errors"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/config"
)

var (
	// ErrUnavailable is returned when the relay cannot be reached. Callers
	// retry on the next slot.
	ErrUnavailable        = errors.New("relay unavailable")
	ErrUnknownRelayParent = errors.New("unknown relay parent")
	ErrUnknownPara        = errors.New("unknown para")
	ErrStaleCollation     = errors.New("collation does not extend para head")
	ErrRelayParentTooOld  = errors.New("relay parent outside allowed ancestry")
	ErrCollationTooLarge  = errors.New("collation exceeds max pov size")
	ErrQueueFull          = errors.New("message queue full")
	ErrClosed             = errors.New("relay closed")
)

// Interface is the capability surface consensus strategies use to anchor
// against the relay chain. Both in-process and remote implementations
// return the errors above.
type Interface interface {
	// LatestRelayState returns the latest finalized relay block.
	LatestRelayState(ctx context.Context) (State, error)
	ValidationDataFor(ctx context.Context, relayParent ids.ID, paraID config.ParaID) (*ValidationData, error)
	Announce(ctx context.Context, c *Collation) error
	Close() error
}
