// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package block

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/codec"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/inherent"
	"github.com/ava-labs/paranode/utils"
)

const (
	MaxTxs      = 16_384
	MaxTxSize   = 1024 * 1024
	MaxBlockLen = 32 * 1024 * 1024
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid block signature")
)

// Block is a parachain block. Transactions are opaque to the node.
type Block struct {
	Parent    ids.ID
	Height    uint64
	Timestamp int64
	Inherents *inherent.Bundle
	Txs       [][]byte

	Author    ed25519.PublicKey
	Signature ed25519.Signature

	id    ids.ID
	bytes []byte
}

// Genesis is unsigned and carries an empty inherent bundle. Its parent is
// the hash of the chain identity so distinct chains never share a genesis.
func Genesis(chain ids.ID, timestamp int64) *Block {
	b := &Block{Parent: chain, Timestamp: timestamp, Inherents: inherent.NewBundle()}
	_ = b.seal()
	return b
}

func (b *Block) marshalUnsigned(p *codec.Packer) {
	p.PackID(b.Parent)
	p.PackUint64(b.Height)
	p.PackInt64(b.Timestamp)
	b.Inherents.Marshal(p)
	p.PackCount(len(b.Txs))
	for _, tx := range b.Txs {
		p.PackBytes(tx)
	}
	p.PackFixedBytes(b.Author[:])
}

// UnsignedBytes is the message covered by [Block.Signature].
func (b *Block) UnsignedBytes() ([]byte, error) {
	p := codec.NewWriter(1024, MaxBlockLen)
	b.marshalUnsigned(p)
	return p.Bytes(), p.Err()
}

// Sign sets the author and signature and computes the block ID.
func (b *Block) Sign(pk ed25519.PrivateKey) error {
	b.Author = pk.PublicKey()
	msg, err := b.UnsignedBytes()
	if err != nil {
		return err
	}
	b.Signature = ed25519.Sign(msg, pk)
	return b.seal()
}

func (b *Block) seal() error {
	p := codec.NewWriter(1024, MaxBlockLen)
	b.marshalUnsigned(p)
	p.PackFixedBytes(b.Signature[:])
	if err := p.Err(); err != nil {
		return err
	}
	b.bytes = p.Bytes()
	b.id = utils.ToID(b.bytes)
	return nil
}

func (b *Block) ID() ids.ID {
	return b.id
}

func (b *Block) Bytes() []byte {
	return b.bytes
}

func (b *Block) Size() int {
	return len(b.bytes)
}

func (b *Block) Signed() bool {
	return b.Signature != ed25519.EmptySignature
}

// VerifySignature checks the signature of a non-genesis block.
func (b *Block) VerifySignature() error {
	if !b.Signed() {
		return ErrMissingSignature
	}
	msg, err := b.UnsignedBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(msg, b.Author, b.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

func (b *Block) TxIDs() []ids.ID {
	txIDs := make([]ids.ID, len(b.Txs))
	for i, tx := range b.Txs {
		txIDs[i] = utils.ToID(tx)
	}
	return txIDs
}

func Parse(raw []byte) (*Block, error) {
	p := codec.NewReader(raw, MaxBlockLen)
	b := &Block{}
	p.UnpackID(false, &b.Parent)
	b.Height = p.UnpackUint64(false)
	b.Timestamp = p.UnpackInt64()
	bundle, err := inherent.UnmarshalBundle(p)
	if err != nil {
		return nil, fmt.Errorf("failed to parse inherents: %w", err)
	}
	b.Inherents = bundle
	if n := p.UnpackCount(MaxTxs); n > 0 {
		b.Txs = make([][]byte, n)
		for i := range b.Txs {
			p.UnpackBytes(MaxTxSize, true, &b.Txs[i])
		}
	}
	var author, sig []byte
	p.UnpackFixedBytes(ed25519.PublicKeyLen, &author)
	p.UnpackFixedBytes(ed25519.SignatureLen, &sig)
	if err := p.Done(); err != nil {
		return nil, err
	}
	b.Author = ed25519.PublicKey(author)
	b.Signature = ed25519.Signature(sig)
	b.bytes = raw
	b.id = utils.ToID(raw)
	return b, nil
}

// Header is the JSON view of a block served over the API.
type Header struct {
	ID        ids.ID `json:"id"`
	Parent    ids.ID `json:"parent"`
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
	Txs       int    `json:"txs"`
	Author    string `json:"author"`
	Size      int    `json:"size"`
}

func (b *Block) Header() Header {
	h := Header{
		ID:        b.id,
		Parent:    b.Parent,
		Height:    b.Height,
		Timestamp: b.Timestamp,
		Txs:       len(b.Txs),
		Size:      len(b.bytes),
	}
	if b.Signed() {
		h.Author = b.Author.String()
	}
	return h
}
