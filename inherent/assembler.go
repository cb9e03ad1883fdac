// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inherent

import (
	"context"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/relay"
)

var (
	_ Assembler = (*RelayAssembler)(nil)
	_ Assembler = (*MockAssembler)(nil)
)

// Request describes the block an inherent bundle is built for.
type Request struct {
	ParentID        ids.ID
	ParentHeight    uint64
	ParentTimestamp int64
	// RelayParent is ignored by [MockAssembler].
	RelayParent ids.ID
}

type Assembler interface {
	Assemble(ctx context.Context, req Request) (*Bundle, error)
}

// timestamp never goes backwards relative to the parent.
func timestamp(now func() time.Time, parent int64) int64 {
	ts := now().UnixMilli()
	if ts < parent {
		return parent
	}
	return ts
}

type RelayAssembler struct {
	relay  relay.Interface
	paraID config.ParaID
	now    func() time.Time
}

func NewRelayAssembler(r relay.Interface, paraID config.ParaID) *RelayAssembler {
	return &RelayAssembler{relay: r, paraID: paraID, now: time.Now}
}

func (a *RelayAssembler) Assemble(ctx context.Context, req Request) (*Bundle, error) {
	ts := timestamp(a.now, req.ParentTimestamp)
	vd, err := a.relay.ValidationDataFor(ctx, req.RelayParent, a.paraID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInherentUnavailable, err)
	}
	if len(vd.Proof) == 0 {
		return nil, fmt.Errorf("%w: empty relay proof for %s", ErrInherentUnavailable, req.RelayParent)
	}
	d := &ParachainData{
		ValidationData:          *vd,
		CurrentParaBlock:        req.ParentHeight + 1,
		RelayOffset:             vd.RelayParentNumber,
		RelayBlocksPerParaBlock: 1,
	}
	b := NewBundle()
	if err := b.Put(KindTimestamp, encodeTimestamp(ts)); err != nil {
		return nil, err
	}
	if err := b.Put(KindParachain, d.Bytes()); err != nil {
		return nil, err
	}
	return b, nil
}

type MockAssembler struct {
	channel    *MockChannel
	maxPoVSize uint32
	now        func() time.Time
}

func NewMockAssembler(channel *MockChannel, maxPoVSize uint32) *MockAssembler {
	return &MockAssembler{channel: channel, maxPoVSize: maxPoVSize, now: time.Now}
}

func (a *MockAssembler) Assemble(_ context.Context, req Request) (*Bundle, error) {
	ts := timestamp(a.now, req.ParentTimestamp)
	downward, horizontal := a.channel.Drain()
	d := &ParachainData{
		ValidationData: relay.ValidationData{
			ParentHead:         req.ParentID,
			MaxPoVSize:         a.maxPoVSize,
			DownwardMessages:   downward,
			HorizontalMessages: horizontal,
		},
		Mocked: true,
	}
	b := NewBundle()
	if err := b.Put(KindTimestamp, encodeTimestamp(ts)); err != nil {
		return nil, err
	}
	if err := b.Put(KindParachain, d.Bytes()); err != nil {
		return nil, err
	}
	return b, nil
}
