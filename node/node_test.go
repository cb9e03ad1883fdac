// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/paranode/api"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/consensus"
	"github.com/ava-labs/paranode/index"
	"github.com/ava-labs/paranode/relay"
	"github.com/ava-labs/paranode/rpc"
)

const (
	waitFor = 10 * time.Second
	tick    = 20 * time.Millisecond
)

func testConfig(t *testing.T, mode config.Mode, role config.Role) config.Config {
	c := config.NewConfig()
	c.Mode = mode
	c.Role = role
	c.DataDir = t.TempDir()
	c.Database.Backend = config.DatabaseMemory
	c.API.ListenAddr = "127.0.0.1:0"
	c.Consensus.InstantSealInterval = 50 * time.Millisecond
	c.Consensus.MinBlockGap = 0
	c.Relay.SlotDuration = 40 * time.Millisecond
	c.Relay.FinalityLag = 1
	if mode == config.ModeCollator {
		c.ParaID = 2000
	}
	if role.IsAuthority() {
		c.Keystore.DevAccount = "alice"
	}
	return c
}

func start(t *testing.T, c config.Config) *Node {
	n, err := Start(context.Background(), c, logging.NoLog{})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, n.Shutdown())
	})
	return n
}

func requirePhase(t *testing.T, err error, phase Phase) {
	var ierr *InitializationError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, phase, ierr.Phase)
}

func TestInitializationErrorMessage(t *testing.T) {
	err := initError(PhaseStore, errors.New("disk full"))
	require.EqualError(t, err, "failed to initialize store: disk full")
}

func TestStandaloneAuthorSealsBlocks(t *testing.T) {
	r := require.New(t)

	n := start(t, testConfig(t, config.ModeStandaloneDev, config.RoleAuthority))
	r.Equal(consensus.KindInstantSeal, n.Strategy.Kind())
	r.Nil(n.Relay)
	r.NotNil(n.Channel)

	// Empty blocks are sealed on the fallback interval and finalized at once.
	r.Eventually(func() bool { return n.Client().Best().Height >= 2 }, waitFor, tick)
	r.Eventually(func() bool { return n.Client().Finalized().Height >= 2 }, waitFor, tick)

	ctx := context.Background()
	cli := api.NewJSONRPCClient("http://" + n.RPCAddr().String())
	txID, err := cli.SubmitTx(ctx, []byte("hello"))
	r.NoError(err)
	r.Eventually(func() bool {
		status, err := cli.TxStatus(ctx, txID)
		return err == nil && status.Included
	}, waitFor, tick)

	loc, err := n.Index.TxLocation(ctx, txID)
	r.NoError(err)
	b, err := n.Client().GetBlock(ctx, loc.BlockID)
	r.NoError(err)
	r.Contains(b.TxIDs(), txID)
	r.False(n.Pool.Has(ctx, txID))

	families, err := n.Gatherer.Gather()
	r.NoError(err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	r.True(names["paranode_node_blocks_imported"])
}

func TestStandaloneManualSealAndMockMessages(t *testing.T) {
	r := require.New(t)

	c := testConfig(t, config.ModeStandaloneDev, config.RoleAuthority)
	c.Consensus.Sealing = config.SealingManual
	c.API.RPCMethods = config.RPCMethodsUnsafe
	n := start(t, c)
	r.Zero(n.Client().Best().Height)

	ctx := context.Background()
	cli := api.NewJSONRPCClient("http://" + n.RPCAddr().String())
	r.NoError(cli.SendMockMessage(ctx, 0, []byte("downward")))
	r.NoError(cli.SealBlock(ctx))
	r.Eventually(func() bool { return n.Client().Best().Height >= 1 }, waitFor, tick)

	dmp, hrmp := n.Channel.Len()
	r.Zero(dmp)
	r.Zero(hrmp)
}

func TestStandaloneParticipantIsIdle(t *testing.T) {
	r := require.New(t)

	n := start(t, testConfig(t, config.ModeStandaloneDev, config.RoleParticipant))
	fv, ok := n.Strategy.(*consensus.FullNodeValidation)
	r.True(ok)
	r.False(fv.Tracking())

	time.Sleep(200 * time.Millisecond)
	r.Zero(n.Client().Best().Height)
}

func TestStandaloneParticipantFollowsAuthor(t *testing.T) {
	r := require.New(t)

	author := start(t, testConfig(t, config.ModeStandaloneDev, config.RoleAuthority))

	c := testConfig(t, config.ModeStandaloneDev, config.RoleParticipant)
	c.Network.Bootnodes = []string{"ws://" + author.RPCAddr().String() + rpc.P2PEndpoint}
	c.Network.DialRetry = 50 * time.Millisecond
	follower := start(t, c)

	r.Eventually(func() bool { return follower.Client().Best().Height >= 3 }, waitFor, tick)
	ctx := context.Background()
	theirs, err := author.Client().GetBlockByHeight(ctx, 3)
	r.NoError(err)
	ours, err := follower.Client().GetBlockByHeight(ctx, 3)
	r.NoError(err)
	r.Equal(theirs.ID(), ours.ID())
}

func TestCollatorAuthorsAgainstInProcessRelay(t *testing.T) {
	r := require.New(t)

	n := start(t, testConfig(t, config.ModeCollator, config.RoleAuthority))
	r.Equal(consensus.KindCollatorAuthoring, n.Strategy.Kind())
	_, ok := n.Relay.(*relay.InProcess)
	r.True(ok)
	r.Nil(n.Channel)

	r.Eventually(func() bool { return n.Client().Best().Height >= 3 }, waitFor, tick)
	// Finality follows the para head included by the relay.
	r.Eventually(func() bool { return n.Client().Finalized().Height >= 1 }, waitFor, tick)

	ctx := context.Background()
	st, err := api.NewJSONRPCClient("http://" + n.RPCAddr().String()).RelayState(ctx)
	r.NoError(err)
	r.Positive(st.Number)
}

func TestCollatorParticipantValidates(t *testing.T) {
	r := require.New(t)

	n := start(t, testConfig(t, config.ModeCollator, config.RoleParticipant))
	fv, ok := n.Strategy.(*consensus.FullNodeValidation)
	r.True(ok)
	r.True(fv.Tracking())
}

func TestFullNodeValidates(t *testing.T) {
	for _, role := range []config.Role{config.RoleAuthority, config.RoleParticipant} {
		t.Run(role.String(), func(t *testing.T) {
			r := require.New(t)

			n := start(t, testConfig(t, config.ModeFullNode, role))
			r.Equal(consensus.KindFullNodeValidation, n.Strategy.Kind())
			r.NotNil(n.Relay)

			time.Sleep(200 * time.Millisecond)
			r.Zero(n.Client().Best().Height)
		})
	}
}

func TestCollatorWithUnreachableRemoteRelay(t *testing.T) {
	r := require.New(t)

	c := testConfig(t, config.ModeCollator, config.RoleAuthority)
	c.Relay.RPCURL = "http://127.0.0.1:1"
	c.Relay.RPCTimeout = 50 * time.Millisecond
	n := start(t, c)
	_, ok := n.Relay.(*relay.RPCClient)
	r.True(ok)

	// Rounds are skipped without stopping the node.
	time.Sleep(300 * time.Millisecond)
	r.Zero(n.Client().Best().Height)
	select {
	case <-n.Done():
		r.FailNow("node stopped")
	default:
	}
	r.NoError(n.Err())
}

func TestStartFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		phase  Phase
		err    error
	}{
		{
			name:   "collator without para id",
			mutate: func(c *config.Config) { c.ParaID = 0 },
			phase:  PhaseConfig,
			err:    config.ErrMissingParaID,
		},
		{
			name:   "relay url in dev mode",
			mutate: func(c *config.Config) { c.Mode = config.ModeStandaloneDev; c.Relay.RPCURL = "http://127.0.0.1:1" },
			phase:  PhaseConfig,
			err:    config.ErrRelayInDevMode,
		},
		{
			name:   "unknown sealing",
			mutate: func(c *config.Config) { c.Consensus.Sealing = "eager" },
			phase:  PhaseConfig,
			err:    config.ErrInvalidSealing,
		},
		{
			name:   "unknown index backend",
			mutate: func(c *config.Config) { c.Index.Backend = "sqlite" },
			phase:  PhaseStore,
			err:    index.ErrUnknownBackend,
		},
		{
			name:   "missing chain spec",
			mutate: func(c *config.Config) { c.ChainSpec = "/nonexistent/spec.yaml" },
			phase:  PhaseStore,
		},
		{
			name:   "authority without key",
			mutate: func(c *config.Config) { c.Keystore.DevAccount = "" },
			phase:  PhaseConsensus,
			err:    consensus.ErrSigningUnavailable,
		},
		{
			name:   "unknown dev account",
			mutate: func(c *config.Config) { c.Keystore.DevAccount = "mallory" },
			phase:  PhaseConsensus,
		},
		{
			name:   "invalid rpc address",
			mutate: func(c *config.Config) { c.API.ListenAddr = "256.0.0.1:0" },
			phase:  PhaseRPC,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t, config.ModeCollator, config.RoleAuthority)
			tt.mutate(&c)
			_, err := Start(context.Background(), c, logging.NoLog{})
			requirePhase(t, err, tt.phase)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			}
			require.Contains(t, err.Error(), fmt.Sprintf("failed to initialize %s: ", tt.phase))
		})
	}
}

func TestRestartKeepsChain(t *testing.T) {
	r := require.New(t)

	c := testConfig(t, config.ModeStandaloneDev, config.RoleAuthority)
	c.Database.Backend = config.DatabasePebble
	n, err := Start(context.Background(), c, logging.NoLog{})
	r.NoError(err)
	r.Eventually(func() bool { return n.Client().Best().Height >= 2 }, waitFor, tick)
	r.NoError(n.Shutdown())
	height := n.Client().Best().Height

	n = start(t, c)
	r.GreaterOrEqual(n.Client().Best().Height, height)
}
