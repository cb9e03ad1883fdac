// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/api"
	"github.com/ava-labs/paranode/chain"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/consensus"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/keystore"
	"github.com/ava-labs/paranode/network"
	"github.com/ava-labs/paranode/relay"
	"github.com/ava-labs/paranode/telemetry"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Node is a running instance in exactly one mode.
type Node struct {
	*PartialComponents

	Strategy consensus.Strategy
	// Relay is nil in standalone mode.
	Relay   relay.Interface
	Network *network.Network
	// Channel is the mocked relay message queue. Nil outside standalone mode.
	Channel *inherent.MockChannel

	rpcAddr net.Addr
}

// Start validates [c], assembles the node for its mode and spawns every
// background task. The node runs until [ctx] is done, an essential task
// fails or [Node.Shutdown] is called.
func Start(ctx context.Context, c config.Config, log logging.Logger) (_ *Node, err error) {
	if err := c.Validate(); err != nil {
		return nil, initError(PhaseConfig, err)
	}
	parachain := c.Mode.Parachain()
	p, err := NewPartial(ctx, c, log, parachain)
	if err != nil {
		return nil, err
	}
	n := &Node{PartialComponents: p}
	defer func() {
		if err != nil {
			if serr := p.Tasks.Shutdown(); serr != nil {
				log.Warn("failed to stop partially started node", zap.Error(serr))
			}
		}
	}()

	paraID := p.ParaID

	if parachain {
		n.Relay, err = relay.Build(c.Relay, log, p.Telemetry, p.Tasks)
		if err != nil {
			return nil, initError(PhaseRelay, err)
		}
	} else {
		n.Channel = inherent.NewMockChannel(inherent.DefaultMockCapacity)
	}

	var validator network.AnnounceValidator
	if n.Relay != nil {
		validator = network.RelayValidator(n.Relay, paraID)
	}
	var starter *network.Starter
	n.Network, starter, err = network.New(c.Network, log, p.Registerer, p.Importer, validator)
	if err != nil {
		return nil, initError(PhaseNetwork, err)
	}

	ks, err := keystore.Open(c.Keystore)
	if err != nil {
		return nil, initError(PhaseConsensus, err)
	}
	n.Strategy, err = consensus.Select(consensus.Params{
		Mode:         c.Mode,
		Role:         c.Role,
		ParaID:       paraID,
		Config:       c.Consensus,
		SlotDuration: c.Relay.SlotDuration,
		Log:          log,
		Tracer:       p.Tracer,
		Registerer:   p.Registerer,
		Telemetry:    p.Telemetry,
		Client:       p.Client,
		Importer:     p.Importer,
		Pool:         p.Pool,
		Keystore:     ks,
		Relay:        n.Relay,
		Channel:      n.Channel,
		MaxPoVSize:   c.Relay.MaxPoVSize,
		Announcer:    n.Network,
	})
	if err != nil {
		return nil, initError(PhaseConsensus, err)
	}
	p.metrics.strategyRunning.WithLabelValues(n.Strategy.Kind().String()).Set(1)

	if c.API.Enabled {
		if err := n.serveAPI(paraID); err != nil {
			return nil, initError(PhaseRPC, err)
		}
	}

	p.Tasks.Spawn("network", starter.Start)
	p.Tasks.SpawnEssential("consensus", n.Strategy.Run)

	p.Telemetry.Report(telemetry.VerbosityInfo, "system.connected", map[string]interface{}{
		"chain":    p.Spec.Name,
		"mode":     c.Mode.String(),
		"role":     c.Role.String(),
		"strategy": n.Strategy.Kind().String(),
		"best":     p.Client.Best().Height,
	})
	log.Info("node started",
		zap.Stringer("mode", c.Mode),
		zap.Stringer("role", c.Role),
		zap.Uint32("paraID", uint32(paraID)),
		zap.Stringer("strategy", n.Strategy.Kind()),
		zap.Stringer("chainID", p.Spec.ChainID()),
		zap.Uint64("best", p.Client.Best().Height),
	)
	return n, nil
}

func (n *Node) serveAPI(paraID config.ParaID) error {
	c := n.Config
	deps := api.Deps{
		Log:     n.Log,
		Tracer:  n.Tracer,
		Mode:    c.Mode,
		Role:    c.Role,
		ParaID:  paraID,
		Client:  n.PartialComponents.Client,
		Pool:    n.Pool,
		Index:   n.Index,
		Relay:   n.Relay,
		Channel: n.Channel,
		Peers:   n.Network.Peers,
	}
	if s, ok := n.Strategy.(*consensus.InstantSeal); ok {
		deps.Sealer = s
	}
	handler, err := api.NewHandler(c.API, c.Role.IsAuthority(), api.NewBuilder(deps), n.Gatherer, n.Network)
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", c.API.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.API.ListenAddr, err)
	}
	n.rpcAddr = listener.Addr()
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	n.Tasks.Spawn("rpc", func(ctx context.Context) error {
		errs := make(chan error, 1)
		go func() {
			errs <- server.Serve(listener)
		}()
		n.Log.Info("rpc server listening", zap.Stringer("addr", listener.Addr()))
		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			return err
		}
		if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return nil
}

func (n *Node) Client() *chain.Client {
	return n.PartialComponents.Client
}

// RPCAddr is the bound API address, or nil when the API is disabled.
func (n *Node) RPCAddr() net.Addr {
	return n.rpcAddr
}

// Done is closed once the node starts shutting down.
func (n *Node) Done() <-chan struct{} {
	return n.Tasks.Done()
}

// Err is the essential task failure that stopped the node, if any.
func (n *Node) Err() error {
	return n.Tasks.Err()
}

// Wait blocks until every task returned and reports the first essential
// failure.
func (n *Node) Wait() error {
	return n.Tasks.Wait()
}

// Shutdown stops every task and closes the stores. It is safe to call more
// than once.
func (n *Node) Shutdown() error {
	return n.Tasks.Shutdown()
}
