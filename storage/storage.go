// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/consts"
	"github.com/ava-labs/paranode/pebble"
	"github.com/ava-labs/paranode/utils"
)

// FormatVersion is bumped whenever the on-disk layout changes.
const FormatVersion uint32 = 1

const (
	chainsDir = "chains"
	primary   = "db"
	index     = "index"
)

var (
	ErrOpen               = errors.New("failed to open store")
	ErrIncompatibleFormat = errors.New("incompatible store format")

	metaPrefix = []byte("meta")
	formatKey  = []byte("format")
)

// PrimaryPath is <data>/chains/<id>/db.
func PrimaryPath(dataDir, chainID string) string {
	return joinPath(dataDir, chainID, primary)
}

// IndexPath is <data>/chains/<id>/index/db.
func IndexPath(dataDir, chainID string) string {
	return joinPath(dataDir, chainID, index, primary)
}

func joinPath(dataDir, chainID string, parts ...string) string {
	p, _ := utils.InitSubDirectory(dataDir, append([]string{chainsDir, chainID}, parts...)...)
	return p
}

// Open opens the database at [path] and checks that it was written with the
// current [FormatVersion]. Fresh databases are stamped.
func Open(c config.DatabaseConfig, path string, registerer prometheus.Registerer) (database.Database, error) {
	var db database.Database
	switch c.Backend {
	case config.DatabaseMemory:
		db = memdb.New()
	case config.DatabasePebble:
		cfg := pebble.NewDefaultConfig()
		cfg.Sync = c.Sync
		pdb, err := pebble.New(path, cfg, registerer)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
		}
		db = pdb
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrOpen, config.ErrUnknownDatabase, c.Backend)
	}
	if err := checkFormat(db); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return db, nil
}

func checkFormat(db database.Database) error {
	meta := prefixdb.New(metaPrefix, db)
	v, err := meta.Get(formatKey)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return meta.Put(formatKey, binary.BigEndian.AppendUint32(nil, FormatVersion))
	case err != nil:
		return fmt.Errorf("%w: %w", ErrOpen, err)
	case len(v) != consts.Uint32Len:
		return fmt.Errorf("%w: malformed version", ErrIncompatibleFormat)
	}
	if got := binary.BigEndian.Uint32(v); got != FormatVersion {
		return fmt.Errorf("%w: found version %d, expected %d", ErrIncompatibleFormat, got, FormatVersion)
	}
	return nil
}
