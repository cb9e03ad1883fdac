// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"errors"
	"fmt"
	"os"

	"github.com/ava-labs/avalanchego/ids"
	"gopkg.in/yaml.v2"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/utils"
)

const DevSpecName = "dev"

var ErrMalformedChainSpec = errors.New("malformed chain spec")

// Spec identifies a chain and fixes its genesis.
type Spec struct {
	ID               string            `json:"id"               yaml:"id"`
	Name             string            `json:"name"             yaml:"name"`
	ParaID           config.ParaID     `json:"paraId"           yaml:"paraId"`
	GenesisTimestamp int64             `json:"genesisTimestamp" yaml:"genesisTimestamp"`
	Properties       map[string]string `json:"properties"       yaml:"properties"`
}

func DevSpec() *Spec {
	return &Spec{
		ID:               "paranode_dev",
		Name:             "Development",
		GenesisTimestamp: 1_704_067_200_000, // 2024-01-01T00:00:00Z
		Properties: map[string]string{
			"tokenSymbol": "DEV",
		},
	}
}

// LoadSpec reads a YAML or JSON spec file. An empty path or [DevSpecName]
// selects the built-in development spec.
func LoadSpec(path string) (*Spec, error) {
	if path == "" || path == DevSpecName {
		return DevSpec(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedChainSpec, err)
	}
	var s Spec
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedChainSpec, err)
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Spec) Verify() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedChainSpec)
	case s.GenesisTimestamp < 0:
		return fmt.Errorf("%w: negative genesis timestamp", ErrMalformedChainSpec)
	}
	return nil
}

// ChainID is the hash of the spec id.
func (s *Spec) ChainID() ids.ID {
	return utils.ToID([]byte(s.ID))
}

func (s *Spec) Genesis() *block.Block {
	return block.Genesis(s.ChainID(), s.GenesisTimestamp)
}
