// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proposer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/keystore"
	"github.com/ava-labs/paranode/mempool"
)

var errFiltered = errors.New("filtered")

func setup(t *testing.T, signer Signer, filter TxFilter, maxPoV uint32) (*Proposer, *mempool.Mempool, *block.Block, *inherent.Bundle) {
	r := require.New(t)

	pool := mempool.New(trace.Noop, 128, 4096)
	p, err := New(Config{
		MaxBlockTxs:  16,
		MaxBlockSize: 64 * 1024,
		Timeout:      time.Second,
	}, logging.NoLog{}, trace.Noop, pool, signer, filter, prometheus.NewRegistry())
	r.NoError(err)

	parent := block.Genesis(ids.GenerateTestID(), 0)
	bundle, err := inherent.NewMockAssembler(inherent.NewMockChannel(1), maxPoV).Assemble(
		context.Background(),
		inherent.Request{ParentID: parent.ID(), ParentHeight: parent.Height},
	)
	r.NoError(err)
	return p, pool, parent, bundle
}

func addTxs(t *testing.T, pool *mempool.Mempool, n int, size int) {
	for i := 0; i < n; i++ {
		tx := make([]byte, size)
		tx[0], tx[1] = byte(i), byte(i>>8)
		_, err := pool.Add(context.Background(), tx)
		require.NoError(t, err)
	}
}

func newSigner(t *testing.T) *keystore.Keystore {
	pk, err := ed25519.GeneratePrivateKey()
	require.NoError(t, err)
	return keystore.FromKey(pk)
}

func TestPropose(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	signer := newSigner(t)
	p, pool, parent, bundle := setup(t, signer, nil, 0)
	addTxs(t, pool, 20, 32)

	proposal, err := p.Propose(ctx, parent, bundle)
	r.NoError(err)
	b := proposal.Block
	r.Equal(parent.ID(), b.Parent)
	r.Equal(uint64(1), b.Height)
	r.Len(b.Txs, 16)
	r.Equal(4, pool.Len(ctx))
	r.NoError(b.VerifySignature())

	key, err := signer.Key()
	r.NoError(err)
	r.Equal(key.PublicKey(), b.Author)

	p.Abandon(ctx, proposal)
	r.Equal(20, pool.Len(ctx))
}

func TestProposeEmptyPool(t *testing.T) {
	r := require.New(t)

	p, _, parent, bundle := setup(t, newSigner(t), nil, 0)
	proposal, err := p.Propose(context.Background(), parent, bundle)
	r.NoError(err)
	r.Empty(proposal.Block.Txs)
}

func TestProposeWithoutKey(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	ks, err := keystore.Open(config.KeystoreConfig{})
	r.NoError(err)
	p, pool, parent, bundle := setup(t, ks, nil, 0)
	addTxs(t, pool, 2, 32)

	_, err = p.Propose(ctx, parent, bundle)
	r.ErrorIs(err, keystore.ErrNoSigningKey)
	r.Equal(2, pool.Len(ctx))
}

func TestProposeTimeoutRestoresTxs(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	p, pool, parent, bundle := setup(t, newSigner(t), nil, 0)
	addTxs(t, pool, 4, 32)
	start := time.Now()
	calls := 0
	p.now = func() time.Time {
		calls++
		// The deadline passes once the third transaction is reached.
		return start.Add(time.Duration(calls) * 400 * time.Millisecond)
	}

	_, err := p.Propose(ctx, parent, bundle)
	r.ErrorIs(err, ErrProposalTimeout)
	r.Equal(4, pool.Len(ctx))
}

func TestProposeFilter(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	filter := func(_ context.Context, tx *mempool.Tx) error {
		if tx.Bytes()[0]%2 == 1 {
			return errFiltered
		}
		return nil
	}
	p, pool, parent, bundle := setup(t, newSigner(t), filter, 0)
	addTxs(t, pool, 4, 32)

	proposal, err := p.Propose(ctx, parent, bundle)
	r.NoError(err)
	r.Len(proposal.Block.Txs, 2)
	r.Equal(2, proposal.Dropped)
	r.Zero(pool.Len(ctx))
}

func TestProposePoVLimit(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	p, pool, parent, bundle := setup(t, newSigner(t), nil, 1024)
	addTxs(t, pool, 8, 512)

	_, err := p.Propose(ctx, parent, bundle)
	r.ErrorIs(err, ErrPoVExceeded)
	r.Equal(8, pool.Len(ctx))
}
