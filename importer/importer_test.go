// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package importer

import (
	"context"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/set"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/chain"
	"github.com/ava-labs/paranode/chainstore"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/event"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/relay"
)

func newQueue(t *testing.T, config Config) *Queue {
	store, err := chainstore.New(logging.NoLog{}, memdb.New(), prometheus.NewRegistry(), chainstore.NewDefaultConfig())
	require.NoError(t, err)
	client, err := chain.NewClient(context.Background(), chain.DevSpec(), store)
	require.NoError(t, err)
	q, err := New(config, logging.NoLog{}, trace.Noop, client, prometheus.NewRegistry())
	require.NoError(t, err)
	return q
}

func mockChild(t *testing.T, pk ed25519.PrivateKey, parent *block.Block) *block.Block {
	bundle, err := inherent.NewMockAssembler(inherent.NewMockChannel(1), 0).Assemble(
		context.Background(),
		inherent.Request{ParentID: parent.ID(), ParentHeight: parent.Height, ParentTimestamp: parent.Timestamp},
	)
	require.NoError(t, err)
	return signed(t, pk, parent, bundle)
}

func signed(t *testing.T, pk ed25519.PrivateKey, parent *block.Block, bundle *inherent.Bundle) *block.Block {
	require.NoError(t, inherent.WithAuthor(bundle, pk.PublicKey()))
	ts, err := bundle.Timestamp()
	require.NoError(t, err)
	txID := ids.GenerateTestID()
	b := &block.Block{
		Parent:    parent.ID(),
		Height:    parent.Height + 1,
		Timestamp: ts,
		Inherents: bundle,
		Txs:       [][]byte{txID[:]},
	}
	require.NoError(t, b.Sign(pk))
	return b
}

const testPara config.ParaID = 2000

// relayChild builds a child of [parent] anchored on the head of [svc] and
// issued for [para].
func relayChild(t *testing.T, pk ed25519.PrivateKey, svc *relay.Service, para config.ParaID, parent *block.Block) *block.Block {
	bundle, err := inherent.NewRelayAssembler(relay.NewInProcess(svc), para).Assemble(
		context.Background(),
		inherent.Request{
			ParentID:        parent.ID(),
			ParentHeight:    parent.Height,
			ParentTimestamp: parent.Timestamp,
			RelayParent:     svc.Head().Hash,
		},
	)
	require.NoError(t, err)
	return signed(t, pk, parent, bundle)
}

func testRelay() *relay.Service {
	return relay.NewService(relay.ServiceConfig{SlotDuration: time.Hour}, logging.NoLog{}, nil)
}

func newKey(t *testing.T) ed25519.PrivateKey {
	pk, err := ed25519.GeneratePrivateKey()
	require.NoError(t, err)
	return pk
}

func TestImport(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	q := newQueue(t, Config{Mocked: true})
	var notified []ids.ID
	q.Subscribe(event.SubscriptionFunc[*block.Block]{AcceptF: func(_ context.Context, b *block.Block) error {
		notified = append(notified, b.ID())
		return nil
	}})

	pk := newKey(t)
	genesis := q.Client().Best()
	b1 := mockChild(t, pk, genesis)
	require.NoError(q.Import(ctx, b1))
	require.Equal(b1.ID(), q.Client().Best().ID())
	require.Equal([]ids.ID{b1.ID()}, notified)

	require.ErrorIs(q.Import(ctx, b1), ErrKnownBlock)

	// sibling of b1 is a fork
	require.ErrorIs(q.Import(ctx, mockChild(t, pk, genesis)), ErrRejected)

	// child of an unknown block
	orphanParent := mockChild(t, pk, mockChild(t, pk, b1))
	require.ErrorIs(q.Import(ctx, mockChild(t, pk, orphanParent)), ErrUnknownParent)
}

func TestImportRejects(t *testing.T) {
	pk := newKey(t)
	tests := []struct {
		name   string
		config Config
		build  func(t *testing.T, parent *block.Block) *block.Block
	}{
		{
			name:   "bad signature",
			config: Config{Mocked: true},
			build: func(t *testing.T, parent *block.Block) *block.Block {
				b := mockChild(t, pk, parent)
				b.Signature[0] ^= 0xff
				return b
			},
		},
		{
			name:   "mocked data on relay-backed chain",
			config: Config{Mocked: false},
			build: func(t *testing.T, parent *block.Block) *block.Block {
				return mockChild(t, pk, parent)
			},
		},
		{
			name:   "relay data without proof",
			config: Config{Mocked: false},
			build: func(t *testing.T, parent *block.Block) *block.Block {
				d := &inherent.ParachainData{ValidationData: relay.ValidationData{RelayParent: ids.GenerateTestID()}}
				b := inherent.NewBundle()
				require.NoError(t, b.Put(inherent.KindTimestamp, timestampBytes(t, parent.Timestamp)))
				require.NoError(t, b.Put(inherent.KindParachain, d.Bytes()))
				return signed(t, pk, parent, b)
			},
		},
		{
			name:   "malformed relay proof",
			config: Config{ParaID: testPara},
			build: func(t *testing.T, parent *block.Block) *block.Block {
				d := &inherent.ParachainData{ValidationData: relay.ValidationData{
					RelayParent: ids.GenerateTestID(),
					Proof:       []byte("garbage"),
				}}
				b := inherent.NewBundle()
				require.NoError(t, b.Put(inherent.KindTimestamp, timestampBytes(t, parent.Timestamp)))
				require.NoError(t, b.Put(inherent.KindParachain, d.Bytes()))
				return signed(t, pk, parent, b)
			},
		},
		{
			name:   "relay proof for another para",
			config: Config{ParaID: testPara},
			build: func(t *testing.T, parent *block.Block) *block.Block {
				return relayChild(t, pk, testRelay(), testPara+1, parent)
			},
		},
		{
			name:   "author not an authority",
			config: Config{Mocked: true, Authorities: set.Of(newKey(t).PublicKey())},
			build: func(t *testing.T, parent *block.Block) *block.Block {
				return mockChild(t, pk, parent)
			},
		},
		{
			name:   "exceeds pov",
			config: Config{Mocked: true},
			build: func(t *testing.T, parent *block.Block) *block.Block {
				bundle, err := inherent.NewMockAssembler(inherent.NewMockChannel(1), 16).Assemble(
					context.Background(),
					inherent.Request{ParentID: parent.ID(), ParentTimestamp: parent.Timestamp},
				)
				require.NoError(t, err)
				return signed(t, pk, parent, bundle)
			},
		},
		{
			name:   "missing author",
			config: Config{Mocked: true},
			build: func(t *testing.T, parent *block.Block) *block.Block {
				bundle, err := inherent.NewMockAssembler(inherent.NewMockChannel(1), 0).Assemble(
					context.Background(),
					inherent.Request{ParentID: parent.ID(), ParentTimestamp: parent.Timestamp},
				)
				require.NoError(t, err)
				b := &block.Block{Parent: parent.ID(), Height: parent.Height + 1, Timestamp: parent.Timestamp, Inherents: bundle}
				require.NoError(t, b.Sign(pk))
				return b
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue(t, tt.config)
			b := tt.build(t, q.Client().Best())
			require.ErrorIs(t, q.Import(context.Background(), b), ErrRejected)
		})
	}
}

func TestImportRelayBacked(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	svc := testRelay()
	q := newQueue(t, Config{ParaID: testPara})
	pk := newKey(t)
	b1 := relayChild(t, pk, svc, testPara, q.Client().Best())
	require.NoError(q.Import(ctx, b1))

	_, err := svc.ProduceBlock()
	require.NoError(err)
	b2 := relayChild(t, pk, svc, testPara, b1)
	require.NoError(q.Import(ctx, b2))
	require.Equal(b2.ID(), q.Client().Best().ID())
}

func timestampBytes(t *testing.T, ts int64) []byte {
	bundle, err := inherent.NewMockAssembler(inherent.NewMockChannel(1), 0).Assemble(
		context.Background(),
		inherent.Request{ParentTimestamp: ts},
	)
	require.NoError(t, err)
	data, ok := bundle.Get(inherent.KindTimestamp)
	require.True(t, ok)
	return data
}

func TestImportBatch(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	q := newQueue(t, Config{Mocked: true})
	pk := newKey(t)
	parent := q.Client().Best()
	var blks []*block.Block
	for i := 0; i < 40; i++ {
		b := mockChild(t, pk, parent)
		blks = append(blks, b)
		parent = b
	}
	n, err := q.ImportBatch(ctx, blks)
	require.NoError(err)
	require.Equal(40, n)
	require.Equal(blks[39].ID(), q.Client().Best().ID())

	// a bad signature in the middle stops the batch there
	more := []*block.Block{mockChild(t, pk, parent)}
	more = append(more, mockChild(t, pk, more[0]))
	more[1].Signature[3] ^= 1
	n, err = q.ImportBatch(ctx, more)
	require.ErrorIs(err, ErrRejected)
	require.Equal(1, n)
}

func TestImportBatchUnsignedTail(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	q := newQueue(t, Config{Mocked: true})
	pk := newKey(t)
	parent := q.Client().Best()
	var blks []*block.Block
	for i := 0; i < sigBatchSize+4; i++ {
		b := mockChild(t, pk, parent)
		blks = append(blks, b)
		parent = b
	}
	blks[len(blks)-1].Signature = ed25519.EmptySignature

	// Signatures fall back to one by one and the unsigned block is rejected.
	require.False(q.verifySignatures(ctx, blks))
	n, err := q.ImportBatch(ctx, blks)
	require.ErrorIs(err, ErrRejected)
	require.Equal(len(blks)-1, n)
}
