// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

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
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/importer"
	"github.com/ava-labs/paranode/inherent"
)

var errRejected = errors.New("rejected")

type node struct {
	queue   *importer.Queue
	network *Network
	starter *Starter
	url     string
}

func newNode(t *testing.T, validator AnnounceValidator, bootnodes ...string) *node {
	r := require.New(t)

	store, err := chainstore.New(logging.NoLog{}, memdb.New(), prometheus.NewRegistry(), chainstore.NewDefaultConfig())
	r.NoError(err)
	client, err := chain.NewClient(context.Background(), chain.DevSpec(), store)
	r.NoError(err)
	q, err := importer.New(importer.Config{Mocked: true}, logging.NoLog{}, trace.Noop, client, prometheus.NewRegistry())
	r.NoError(err)

	c := config.NewConfig().Network
	c.Bootnodes = bootnodes
	c.DialRetry = 20 * time.Millisecond
	n, starter, err := New(c, logging.NoLog{}, prometheus.NewRegistry(), q, validator)
	r.NoError(err)

	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return &node{
		queue:   q,
		network: n,
		starter: starter,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (n *node) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.starter.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func child(t *testing.T, pk ed25519.PrivateKey, parent *block.Block) *block.Block {
	r := require.New(t)

	bundle, err := inherent.NewMockAssembler(inherent.NewMockChannel(1), 0).Assemble(
		context.Background(),
		inherent.Request{ParentID: parent.ID(), ParentHeight: parent.Height, ParentTimestamp: parent.Timestamp},
	)
	r.NoError(err)
	r.NoError(inherent.WithAuthor(bundle, pk.PublicKey()))
	ts, err := bundle.Timestamp()
	r.NoError(err)
	txID := ids.GenerateTestID()
	b := &block.Block{
		Parent:    parent.ID(),
		Height:    parent.Height + 1,
		Timestamp: ts,
		Inherents: bundle,
		Txs:       [][]byte{txID[:]},
	}
	r.NoError(b.Sign(pk))
	return b
}

func extend(t *testing.T, n *node, pk ed25519.PrivateKey, count int) *block.Block {
	var b *block.Block
	for i := 0; i < count; i++ {
		b = child(t, pk, n.queue.Client().Best())
		require.NoError(t, n.queue.Import(context.Background(), b))
	}
	return b
}

func waitForHeight(t *testing.T, n *node, height uint64) {
	require.Eventually(t, func() bool {
		return n.queue.Client().Best().Height == height
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMessageEncoding(t *testing.T) {
	r := require.New(t)

	id := ids.GenerateTestID()
	b, err := (&message{kind: msgRequest, id: id}).bytes()
	r.NoError(err)
	m, err := parseMessage(b, 1024)
	r.NoError(err)
	r.Equal(msgRequest, m.kind)
	r.Equal(id, m.id)

	_, err = parseMessage([]byte{9}, 1024)
	r.ErrorIs(err, ErrUnknownMessage)
}

func TestRefusesPeersBeforeStart(t *testing.T) {
	r := require.New(t)

	n := newNode(t, nil)
	resp, err := http.Get(strings.Replace(n.url, "ws", "http", 1))
	r.NoError(err)
	defer resp.Body.Close()
	r.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAnnouncePropagates(t *testing.T) {
	pk, err := ed25519.GeneratePrivateKey()
	require.NoError(t, err)

	a := newNode(t, nil)
	a.start(t)
	b := newNode(t, nil, a.url)
	b.start(t)
	require.Eventually(t, func() bool { return a.network.Peers() == 1 }, 5*time.Second, 10*time.Millisecond)

	blk := extend(t, a, pk, 1)
	a.network.AnnounceBlock(blk.ID(), blk.Bytes())
	waitForHeight(t, b, 1)
	require.Equal(t, blk.ID(), b.queue.Client().Best().ID())
}

func TestFetchesMissingAncestors(t *testing.T) {
	pk, err := ed25519.GeneratePrivateKey()
	require.NoError(t, err)

	a := newNode(t, nil)
	a.start(t)
	tip := extend(t, a, pk, 3)

	b := newNode(t, nil, a.url)
	b.start(t)
	require.Eventually(t, func() bool { return a.network.Peers() == 1 }, 5*time.Second, 10*time.Millisecond)

	a.network.AnnounceBlock(tip.ID(), tip.Bytes())
	waitForHeight(t, b, 3)
}

func TestValidatorRejects(t *testing.T) {
	pk, err := ed25519.GeneratePrivateKey()
	require.NoError(t, err)

	a := newNode(t, nil)
	a.start(t)
	b := newNode(t, func(context.Context, *block.Block) error { return errRejected }, a.url)
	b.start(t)
	require.Eventually(t, func() bool { return a.network.Peers() == 1 }, 5*time.Second, 10*time.Millisecond)

	blk := extend(t, a, pk, 1)
	a.network.AnnounceBlock(blk.ID(), blk.Bytes())
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, b.queue.Client().Best().Height)
}
