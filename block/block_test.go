// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package block

import (
	"context"
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/inherent"
)

func testBlock(t *testing.T, parent *Block) *Block {
	bundle, err := inherent.NewMockAssembler(inherent.NewMockChannel(1), 0).Assemble(
		context.Background(),
		inherent.Request{ParentID: parent.ID(), ParentHeight: parent.Height},
	)
	require.NoError(t, err)
	return &Block{
		Parent:    parent.ID(),
		Height:    parent.Height + 1,
		Timestamp: parent.Timestamp + 1,
		Inherents: bundle,
		Txs:       [][]byte{{1}, {2, 3}},
	}
}

func TestSignParseVerify(t *testing.T) {
	require := require.New(t)

	genesis := Genesis(ids.Empty, 1)
	require.NotEqual(ids.Empty, genesis.ID())
	require.ErrorIs(genesis.VerifySignature(), ErrMissingSignature)

	pk, err := ed25519.GeneratePrivateKey()
	require.NoError(err)
	b := testBlock(t, genesis)
	require.NoError(b.Sign(pk))
	require.NoError(b.VerifySignature())

	parsed, err := Parse(b.Bytes())
	require.NoError(err)
	require.Equal(b.ID(), parsed.ID())
	require.Equal(b.Txs, parsed.Txs)
	require.Equal(pk.PublicKey(), parsed.Author)
	require.NoError(parsed.VerifySignature())
	require.Len(parsed.TxIDs(), 2)

	// tampering invalidates the signature
	parsed.Height++
	require.ErrorIs(parsed.VerifySignature(), ErrInvalidSignature)
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	genesis := Genesis(ids.Empty, 1)
	_, err := Parse(append(genesis.Bytes(), 0))
	require.Error(t, err)
}

func TestGenesisDeterministic(t *testing.T) {
	require := require.New(t)
	require.Equal(Genesis(ids.Empty, 42).ID(), Genesis(ids.Empty, 42).ID())
	require.NotEqual(Genesis(ids.Empty, 42).ID(), Genesis(ids.Empty, 43).ID())
	require.NotEqual(Genesis(ids.Empty, 42).ID(), Genesis(ids.GenerateTestID(), 42).ID())
}
