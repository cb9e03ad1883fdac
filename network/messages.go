// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/codec"
	"github.com/ava-labs/paranode/consts"
)

const (
	// msgAnnounce carries a newly authored or imported block.
	msgAnnounce byte = iota
	// msgRequest asks a peer for the block with the given id.
	msgRequest
	// msgBlock answers a [msgRequest].
	msgBlock
)

var ErrUnknownMessage = errors.New("unknown message type")

type message struct {
	kind    byte
	id      ids.ID
	payload []byte
}

func (m *message) bytes() ([]byte, error) {
	p := codec.NewWriter(consts.ByteLen+len(m.payload)+consts.IntLen, block.MaxBlockLen+consts.ByteLen+consts.IntLen)
	p.PackByte(m.kind)
	switch m.kind {
	case msgRequest:
		p.PackID(m.id)
	case msgAnnounce, msgBlock:
		p.PackBytes(m.payload)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, m.kind)
	}
	return p.Bytes(), p.Err()
}

func parseMessage(b []byte, limit int) (*message, error) {
	p := codec.NewReader(b, limit)
	m := &message{kind: p.UnpackByte()}
	switch m.kind {
	case msgRequest:
		p.UnpackID(true, &m.id)
	case msgAnnounce, msgBlock:
		p.UnpackBytes(limit, true, &m.payload)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, m.kind)
	}
	return m, p.Done()
}
