// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/chainstore"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/inherent"
)

func newClient(t *testing.T) *Client {
	store, err := chainstore.New(logging.NoLog{}, memdb.New(), prometheus.NewRegistry(), chainstore.NewDefaultConfig())
	require.NoError(t, err)
	c, err := NewClient(context.Background(), DevSpec(), store)
	require.NoError(t, err)
	return c
}

func child(t *testing.T, parent *block.Block) *block.Block {
	pk, err := ed25519.GeneratePrivateKey()
	require.NoError(t, err)
	b := &block.Block{Parent: parent.ID(), Height: parent.Height + 1, Inherents: inherent.NewBundle()}
	require.NoError(t, b.Sign(pk))
	return b
}

func TestLoadSpec(t *testing.T) {
	require := require.New(t)

	s, err := LoadSpec("")
	require.NoError(err)
	require.Equal(DevSpec(), s)

	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(os.WriteFile(good, []byte("id: rococo_local\nparaId: 2000\ngenesisTimestamp: 5\n"), 0o600))
	s, err = LoadSpec(good)
	require.NoError(err)
	require.Equal(config.ParaID(2000), s.ParaID)
	require.NotEqual(DevSpec().Genesis().ID(), s.Genesis().ID())

	for name, body := range map[string]string{
		"noid.yaml": "name: nothing\n",
		"bad.yaml":  "id: [\n",
		"neg.yaml":  "id: x\ngenesisTimestamp: -1\n",
	} {
		p := filepath.Join(dir, name)
		require.NoError(os.WriteFile(p, []byte(body), 0o600))
		_, err := LoadSpec(p)
		require.ErrorIs(err, ErrMalformedChainSpec, name)
	}
	_, err = LoadSpec(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(err, ErrMalformedChainSpec)
}

func TestClientAcceptAndFinalize(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	c := newClient(t)
	genesis := c.Best()
	require.Equal(DevSpec().Genesis().ID(), genesis.ID())
	require.Equal(genesis.ID(), c.Finalized().ID())

	b1 := child(t, genesis)
	require.NoError(c.Accept(ctx, b1))
	require.ErrorIs(c.Accept(ctx, child(t, genesis)), ErrNotBest)
	b2 := child(t, b1)
	require.NoError(c.Accept(ctx, b2))

	best, err := NewLongestChain(c).BestChain(ctx)
	require.NoError(err)
	require.Equal(b2.ID(), best.ID())

	advanced, err := c.SetFinalized(ctx, b1.ID())
	require.NoError(err)
	require.True(advanced)
	advanced, err = c.SetFinalized(ctx, genesis.ID())
	require.NoError(err)
	require.False(advanced)
	require.Equal(b1.ID(), c.Finalized().ID())

	_, err = c.SetFinalized(ctx, child(t, b2).ID())
	require.ErrorIs(err, ErrNotAncestor)
}
