// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"

	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"

	"github.com/ava-labs/paranode/chain"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/index"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/mempool"
	"github.com/ava-labs/paranode/relay"
)

// Sealer is satisfied by *consensus.InstantSeal.
type Sealer interface {
	Seal(ctx context.Context) error
}

// Deps is what the core hands to the RPC layer. Optional fields are nil
// when the running mode does not provide them.
type Deps struct {
	Log    logging.Logger
	Tracer trace.Tracer

	Mode   config.Mode
	Role   config.Role
	ParaID config.ParaID

	Client *chain.Client
	Pool   *mempool.Mempool
	Index  index.Index
	Relay  relay.Interface
	Sealer Sealer
	// Channel injects mocked relay messages in standalone mode.
	Channel *inherent.MockChannel
	Peers   func() int
}

// ConnContext is derived per connection.
type ConnContext struct {
	DenyUnsafe  bool
	IsAuthority bool
}

// Builder produces the method table served to one kind of connection.
type Builder func(ConnContext) (*JSONRPCServer, error)

func NewBuilder(deps Deps) Builder {
	return func(cc ConnContext) (*JSONRPCServer, error) {
		if deps.Client == nil || deps.Pool == nil {
			return nil, ErrMissingDeps
		}
		return &JSONRPCServer{deps: deps, conn: cc}, nil
	}
}
