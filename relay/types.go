// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/codec"
	"github.com/ava-labs/paranode/config"
)

const (
	MaxMessages    = 1_024
	MaxMessageSize = 64 * 1024
	MaxProofSize   = 1024 * 1024
)

// State is a relay block as seen by a parachain node.
type State struct {
	Hash      ids.ID `json:"hash"`
	Number    uint64 `json:"number"`
	Timestamp int64  `json:"timestamp"`
}

// Message is an inbound downward (relay to para) or horizontal (para to para)
// message. Sender is zero for downward messages.
type Message struct {
	Sender config.ParaID `json:"sender"`
	SentAt uint64        `json:"sentAt"`
	Data   []byte        `json:"data"`
}

// ValidationData is what a parachain block must commit to in order to be
// accepted against [RelayParent].
type ValidationData struct {
	RelayParent            ids.ID    `json:"relayParent"`
	RelayParentNumber      uint64    `json:"relayParentNumber"`
	RelayParentStorageRoot ids.ID    `json:"relayParentStorageRoot"`
	ParentHead             ids.ID    `json:"parentHead"`
	MaxPoVSize             uint32    `json:"maxPoVSize"`
	Proof                  []byte    `json:"proof"`
	DownwardMessages       []Message `json:"downwardMessages"`
	HorizontalMessages     []Message `json:"horizontalMessages"`
}

// Collation is a parachain block submitted for inclusion.
type Collation struct {
	ParaID            config.ParaID `json:"paraId"`
	RelayParent       ids.ID        `json:"relayParent"`
	ParentHead        ids.ID        `json:"parentHead"`
	Head              ids.ID        `json:"head"`
	Number            uint64        `json:"number"`
	Block             []byte        `json:"block"`
	ProcessedDownward uint32        `json:"processedDownward"`
	// ProcessedHorizontal is the number of horizontal messages consumed.
	ProcessedHorizontal uint32 `json:"processedHorizontal"`
}

func (m *Message) Marshal(p *codec.Packer) {
	p.PackUint32(uint32(m.Sender))
	p.PackUint64(m.SentAt)
	p.PackBytes(m.Data)
}

func UnmarshalMessage(p *codec.Packer) Message {
	var m Message
	m.Sender = config.ParaID(p.UnpackUint32())
	m.SentAt = p.UnpackUint64(false)
	p.UnpackBytes(MaxMessageSize, false, &m.Data)
	return m
}

func (v *ValidationData) Marshal(p *codec.Packer) {
	p.PackID(v.RelayParent)
	p.PackUint64(v.RelayParentNumber)
	p.PackID(v.RelayParentStorageRoot)
	p.PackID(v.ParentHead)
	p.PackUint32(v.MaxPoVSize)
	p.PackBytes(v.Proof)
	p.PackCount(len(v.DownwardMessages))
	for i := range v.DownwardMessages {
		v.DownwardMessages[i].Marshal(p)
	}
	p.PackCount(len(v.HorizontalMessages))
	for i := range v.HorizontalMessages {
		v.HorizontalMessages[i].Marshal(p)
	}
}

func UnmarshalValidationData(p *codec.Packer) (*ValidationData, error) {
	var v ValidationData
	p.UnpackID(false, &v.RelayParent)
	v.RelayParentNumber = p.UnpackUint64(false)
	p.UnpackID(false, &v.RelayParentStorageRoot)
	p.UnpackID(false, &v.ParentHead)
	v.MaxPoVSize = p.UnpackUint32()
	p.UnpackBytes(MaxProofSize, false, &v.Proof)
	if n := p.UnpackCount(MaxMessages); n > 0 {
		v.DownwardMessages = make([]Message, n)
		for i := range v.DownwardMessages {
			v.DownwardMessages[i] = UnmarshalMessage(p)
		}
	}
	if n := p.UnpackCount(MaxMessages); n > 0 {
		v.HorizontalMessages = make([]Message, n)
		for i := range v.HorizontalMessages {
			v.HorizontalMessages[i] = UnmarshalMessage(p)
		}
	}
	return &v, p.Err()
}
