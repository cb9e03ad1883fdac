// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/chain"
	"github.com/ava-labs/paranode/chainstore"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/index"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/keystore"
	"github.com/ava-labs/paranode/mempool"
	"github.com/ava-labs/paranode/rpc"
)

type countingSealer struct{ calls int }

func (s *countingSealer) Seal(context.Context) error {
	s.calls++
	return nil
}

func newDeps(t *testing.T) Deps {
	r := require.New(t)

	store, err := chainstore.New(logging.NoLog{}, memdb.New(), prometheus.NewRegistry(), chainstore.NewDefaultConfig())
	r.NoError(err)
	client, err := chain.NewClient(context.Background(), chain.DevSpec(), store)
	r.NoError(err)
	return Deps{
		Log:     logging.NoLog{},
		Tracer:  trace.Noop,
		Mode:    config.ModeStandaloneDev,
		Role:    config.RoleAuthority,
		Client:  client,
		Pool:    mempool.New(trace.Noop, 16, 1024),
		Index:   index.NewLocal(memdb.New()),
		Channel: inherent.NewMockChannel(4),
		Peers:   func() int { return 3 },
	}
}

func newServer(t *testing.T, policy string, deps Deps) *JSONRPCClient {
	c := config.NewConfig().API
	c.RPCMethods = policy
	h, err := NewHandler(c, deps.Role.IsAuthority(), NewBuilder(deps), prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewJSONRPCClient(srv.URL)
}

func TestMissingDeps(t *testing.T) {
	_, err := NewHandler(config.NewConfig().API, false, NewBuilder(Deps{}), prometheus.NewRegistry(), nil)
	require.ErrorIs(t, err, ErrMissingDeps)
}

func TestDenyUnsafe(t *testing.T) {
	tests := []struct {
		policy string
		addr   string
		deny   bool
	}{
		{policy: config.RPCMethodsUnsafe, addr: "10.0.0.1:1", deny: false},
		{policy: config.RPCMethodsSafe, addr: "127.0.0.1:1", deny: true},
		{policy: config.RPCMethodsAuto, addr: "127.0.0.1:1", deny: false},
		{policy: config.RPCMethodsAuto, addr: "[::1]:1", deny: false},
		{policy: config.RPCMethodsAuto, addr: "10.0.0.1:1", deny: true},
		{policy: config.RPCMethodsAuto, addr: "garbage", deny: true},
	}
	for _, tt := range tests {
		t.Run(tt.policy+"/"+tt.addr, func(t *testing.T) {
			require.Equal(t, tt.deny, denyUnsafe(tt.policy, tt.addr))
		})
	}
}

func TestNetworkAndHealth(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	deps := newDeps(t)
	cli := newServer(t, config.RPCMethodsAuto, deps)

	ok, err := cli.Ping(ctx)
	r.NoError(err)
	r.True(ok)

	n, err := cli.Network(ctx)
	r.NoError(err)
	r.Equal(deps.Client.Spec().ChainID(), n.ChainID)
	r.Equal("dev", n.Mode)
	r.True(n.IsAuthority)

	h, err := cli.Health(ctx)
	r.NoError(err)
	r.Equal(3, h.Peers)
	r.Zero(h.BestHeight)
}

func TestSubmitTxAndStatus(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	deps := newDeps(t)
	cli := newServer(t, config.RPCMethodsAuto, deps)

	txID, err := cli.SubmitTx(ctx, []byte("transfer"))
	r.NoError(err)
	r.Equal(mempool.NewTx([]byte("transfer")).ID(), txID)

	status, err := cli.TxStatus(ctx, txID)
	r.NoError(err)
	r.True(status.Pending)

	// Include it in a block and index it.
	genesis := deps.Client.Best()
	b := &block.Block{
		Parent:    genesis.ID(),
		Height:    1,
		Timestamp: genesis.Timestamp + 1,
		Inherents: inherent.NewBundle(),
		Txs:       [][]byte{[]byte("transfer")},
	}
	pk, err := keystore.DevKey("alice")
	r.NoError(err)
	r.NoError(b.Sign(pk))
	r.Equal(1, deps.Pool.Remove(ctx, []ids.ID{txID}))
	r.NoError(deps.Index.IndexBlock(ctx, b))

	status, err = cli.TxStatus(ctx, txID)
	r.NoError(err)
	r.False(status.Pending)
	r.True(status.Included)
	r.Equal(uint64(1), status.Location.Height)

	status, err = cli.TxStatus(ctx, ids.GenerateTestID())
	r.NoError(err)
	r.False(status.Pending)
	r.False(status.Included)
}

func TestGetBlock(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	deps := newDeps(t)
	cli := newServer(t, config.RPCMethodsAuto, deps)

	best, err := cli.BestBlock(ctx)
	r.NoError(err)
	fin, err := cli.FinalizedBlock(ctx)
	r.NoError(err)
	r.Equal(best.ID, fin.ID)

	byHeight, err := cli.GetBlockByHeight(ctx, 0)
	r.NoError(err)
	r.Equal(best.ID, byHeight.ID)
	r.NotEmpty(byHeight.Bytes)

	byID, err := cli.GetBlock(ctx, best.ID)
	r.NoError(err)
	r.Equal(uint64(0), byID.Height)

	_, err = cli.GetBlockByHeight(ctx, 42)
	r.Error(err)
}

func TestUnsafeMethods(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed", func(t *testing.T) {
		r := require.New(t)
		deps := newDeps(t)
		sealer := &countingSealer{}
		deps.Sealer = sealer
		cli := newServer(t, config.RPCMethodsUnsafe, deps)

		r.NoError(cli.SealBlock(ctx))
		r.Equal(1, sealer.calls)

		r.NoError(cli.SendMockMessage(ctx, 0, []byte("dmp")))
		r.NoError(cli.SendMockMessage(ctx, 2001, []byte("hrmp")))
		dmp, hrmp := deps.Channel.Len()
		r.Equal(1, dmp)
		r.Equal(1, hrmp)
	})

	t.Run("denied", func(t *testing.T) {
		r := require.New(t)
		deps := newDeps(t)
		sealer := &countingSealer{}
		deps.Sealer = sealer
		cli := newServer(t, config.RPCMethodsSafe, deps)

		err := cli.SealBlock(ctx)
		r.ErrorContains(err, ErrUnsafeDenied.Error())
		r.Zero(sealer.calls)
		r.ErrorContains(cli.SendMockMessage(ctx, 0, nil), ErrUnsafeDenied.Error())
	})

	t.Run("no sealer", func(t *testing.T) {
		deps := newDeps(t)
		cli := newServer(t, config.RPCMethodsUnsafe, deps)
		require.ErrorContains(t, cli.SealBlock(ctx), ErrNotSealing.Error())
	})
}

func TestRelayStateWithoutRelay(t *testing.T) {
	cli := newServer(t, config.RPCMethodsAuto, newDeps(t))
	_, err := cli.RelayState(context.Background())
	require.ErrorContains(t, err, ErrNoRelay.Error())
}

func TestMetricsAndHealthEndpoints(t *testing.T) {
	r := require.New(t)

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "test"})
	r.NoError(registry.Register(counter))
	counter.Inc()

	deps := newDeps(t)
	h, err := NewHandler(config.NewConfig().API, false, NewBuilder(deps), registry, nil)
	r.NoError(err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + rpc.MetricsEndpoint)
	r.NoError(err)
	body, err := io.ReadAll(resp.Body)
	r.NoError(resp.Body.Close())
	r.NoError(err)
	r.Equal(http.StatusOK, resp.StatusCode)
	r.Contains(string(body), "test_counter 1")

	resp, err = http.Get(srv.URL + rpc.HealthEndpoint)
	r.NoError(err)
	r.NoError(resp.Body.Close())
	r.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + rpc.P2PEndpoint)
	r.NoError(err)
	r.NoError(resp.Body.Close())
	r.Equal(http.StatusNotFound, resp.StatusCode)
}
