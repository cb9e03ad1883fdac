// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keystore

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ava-labs/avalanchego/utils/hashing"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/crypto/ed25519"
	"github.com/ava-labs/paranode/utils"
)

var (
	ErrNoSigningKey      = errors.New("no signing key configured")
	ErrUnknownDevAccount = errors.New("unknown dev account")
	ErrKeyExists         = errors.New("key file already exists")
)

// DevAccounts are well-known keys usable without a key file. Their seeds are
// public, so they must never hold value outside of local networks.
var DevAccounts = []string{"alice", "bob", "charlie", "dave", "eve", "ferdie"}

type Keystore struct {
	key *ed25519.PrivateKey
}

// Open loads the signing key named by [c]. A keystore without a key is valid;
// [Keystore.Key] then reports [ErrNoSigningKey].
func Open(c config.KeystoreConfig) (*Keystore, error) {
	switch {
	case c.Path != "" && c.DevAccount != "":
		return nil, errors.New("keystore path and dev account are mutually exclusive")
	case c.Path != "":
		b, err := utils.LoadBytes(c.Path, ed25519.PrivateKeyLen)
		if err != nil {
			return nil, fmt.Errorf("failed to load key %s: %w", c.Path, err)
		}
		k := ed25519.PrivateKey(b)
		return &Keystore{key: &k}, nil
	case c.DevAccount != "":
		k, err := DevKey(c.DevAccount)
		if err != nil {
			return nil, err
		}
		return &Keystore{key: &k}, nil
	default:
		return &Keystore{}, nil
	}
}

// FromKey wraps an in-memory key.
func FromKey(k ed25519.PrivateKey) *Keystore {
	return &Keystore{key: &k}
}

func (k *Keystore) Key() (ed25519.PrivateKey, error) {
	if k == nil || k.key == nil {
		return ed25519.EmptyPrivateKey, ErrNoSigningKey
	}
	return *k.key, nil
}

func (k *Keystore) HasKey() bool {
	return k != nil && k.key != nil
}

// DevKey derives the key of a well-known dev account.
func DevKey(name string) (ed25519.PrivateKey, error) {
	name = strings.ToLower(name)
	for _, a := range DevAccounts {
		if a == name {
			seed := hashing.ComputeHash256([]byte("paranode//" + name))
			return ed25519.PrivateKeyFromSeed(seed)
		}
	}
	return ed25519.EmptyPrivateKey, fmt.Errorf("%w: %s", ErrUnknownDevAccount, name)
}

// Generate writes a fresh key to [path] and returns its public key.
func Generate(path string) (ed25519.PublicKey, error) {
	if _, err := os.Stat(path); err == nil {
		return ed25519.EmptyPublicKey, fmt.Errorf("%w: %s", ErrKeyExists, path)
	}
	k, err := ed25519.GeneratePrivateKey()
	if err != nil {
		return ed25519.EmptyPublicKey, err
	}
	if err := utils.SaveBytes(path, k[:]); err != nil {
		return ed25519.EmptyPublicKey, err
	}
	return k.PublicKey(), nil
}
