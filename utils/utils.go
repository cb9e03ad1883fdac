// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"
	"github.com/ava-labs/avalanchego/utils/perms"
)

var ErrInvalidSize = errors.New("invalid size")

func ToID(bytes []byte) ids.ID {
	return ids.ID(hashing.ComputeHash256Array(bytes))
}

func InitSubDirectory(rootPath string, name ...string) (string, error) {
	p := filepath.Join(append([]string{rootPath}, name...)...)
	return p, os.MkdirAll(p, perms.ReadWriteExecute)
}

// SaveBytes writes [b] to [filename] with owner-only permissions.
func SaveBytes(filename string, b []byte) error {
	return os.WriteFile(filename, b, perms.ReadWrite)
}

// LoadBytes returns bytes stored at a file [filename]. If [expectedSize] > 0,
// the length of the file must match.
func LoadBytes(filename string, expectedSize int) ([]byte, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if expectedSize > 0 && len(bytes) != expectedSize {
		return nil, fmt.Errorf("%w: expected %d bytes but found %d", ErrInvalidSize, expectedSize, len(bytes))
	}
	return bytes, nil
}
