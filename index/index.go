// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package index keeps auxiliary lookups (transaction locations) outside the
// primary chain store. The store can live in-process or in a networked
// key-value service.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/codec"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/consts"
	"github.com/ava-labs/paranode/storage"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"

	locationLen = consts.IDLen + consts.Uint64Len + consts.Uint32Len
)

var (
	ErrNotFound       = errors.New("not indexed")
	ErrUnknownBackend = errors.New("unknown index backend (supported backends: local | redis)")
)

// Location is where an accepted transaction landed.
type Location struct {
	BlockID ids.ID `json:"blockId"`
	Height  uint64 `json:"height"`
	Index   uint32 `json:"index"`
}

func (l Location) bytes() []byte {
	p := codec.NewWriter(locationLen, locationLen)
	p.PackID(l.BlockID)
	p.PackUint64(l.Height)
	p.PackUint32(l.Index)
	return p.Bytes()
}

func parseLocation(b []byte) (Location, error) {
	p := codec.NewReader(b, locationLen)
	var l Location
	p.UnpackID(true, &l.BlockID)
	l.Height = p.UnpackUint64(false)
	l.Index = p.UnpackUint32()
	return l, p.Done()
}

func locations(b *block.Block) map[ids.ID]Location {
	m := make(map[ids.ID]Location, len(b.Txs))
	for i, txID := range b.TxIDs() {
		m[txID] = Location{BlockID: b.ID(), Height: b.Height, Index: uint32(i)}
	}
	return m
}

type Index interface {
	IndexBlock(ctx context.Context, b *block.Block) error
	TxLocation(ctx context.Context, txID ids.ID) (Location, error)
	Close() error
}

// Open returns the configured backend. The local backend lives at [path].
func Open(
	ctx context.Context,
	c config.IndexConfig,
	dbc config.DatabaseConfig,
	path string,
	namespace string,
	registerer prometheus.Registerer,
) (Index, error) {
	switch c.Backend {
	case BackendLocal, "":
		db, err := storage.Open(dbc, path, prometheus.WrapRegistererWithPrefix("index_", registerer))
		if err != nil {
			return nil, err
		}
		return NewLocal(db), nil
	case BackendRedis:
		client, err := newGoRedisClient(ctx, c)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, namespace), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
}
