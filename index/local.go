// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package index

import (
	"context"
	"errors"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/block"
)

var _ Index = (*Local)(nil)

const txPrefix byte = 0x0

// Local keeps the index in an in-process database.
type Local struct {
	db database.Database
}

func NewLocal(db database.Database) *Local {
	return &Local{db: db}
}

func txKey(txID ids.ID) []byte {
	k := make([]byte, 1+ids.IDLen)
	k[0] = txPrefix
	copy(k[1:], txID[:])
	return k
}

func (l *Local) IndexBlock(_ context.Context, b *block.Block) error {
	batch := l.db.NewBatch()
	for txID, loc := range locations(b) {
		if err := batch.Put(txKey(txID), loc.bytes()); err != nil {
			return err
		}
	}
	return batch.Write()
}

func (l *Local) TxLocation(_ context.Context, txID ids.ID) (Location, error) {
	v, err := l.db.Get(txKey(txID))
	if errors.Is(err, database.ErrNotFound) {
		return Location{}, ErrNotFound
	}
	if err != nil {
		return Location{}, err
	}
	return parseLocation(v)
}

func (l *Local) Close() error {
	return l.db.Close()
}
