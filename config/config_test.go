// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	require := require.New(t)

	c := NewConfig()
	require.NoError(c.Validate())
	require.Equal(6*time.Second, c.Relay.SlotDuration)
	require.Equal(RPCMethodsAuto, c.API.RPCMethods)
}

func TestParseModeAndRole(t *testing.T) {
	require := require.New(t)

	for s, want := range map[string]Mode{
		"collator": ModeCollator,
		"full":     ModeFullNode,
		"dev":      ModeStandaloneDev,
	} {
		got, err := ParseMode(s)
		require.NoError(err)
		require.Equal(want, got)
		require.Equal(s, got.String())
	}
	_, err := ParseMode("archive")
	require.ErrorIs(err, ErrUnknownMode)

	r, err := ParseRole("authority")
	require.NoError(err)
	require.True(r.IsAuthority())
	r, err = ParseRole("")
	require.NoError(err)
	require.Equal(RoleParticipant, r)
	_, err = ParseRole("light")
	require.ErrorIs(err, ErrLightClient)
	_, err = ParseRole("observer")
	require.ErrorIs(err, ErrUnknownRole)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{
			name: "collator without para id",
			modify: func(c *Config) {
				c.Mode = ModeCollator
			},
			err: ErrMissingParaID,
		},
		{
			name: "collator with para id",
			modify: func(c *Config) {
				c.Mode = ModeCollator
				c.ParaID = 1000
			},
		},
		{
			name: "relay endpoint in dev mode",
			modify: func(c *Config) {
				c.Relay.RPCURL = "http://127.0.0.1:9944"
			},
			err: ErrRelayInDevMode,
		},
		{
			name: "malformed relay endpoint",
			modify: func(c *Config) {
				c.Mode = ModeFullNode
				c.Relay.RPCURL = "ws//nowhere"
			},
			err: ErrInvalidRelayURL,
		},
		{
			name: "unknown database",
			modify: func(c *Config) {
				c.Database.Backend = "rocksdb"
			},
			err: ErrUnknownDatabase,
		},
		{
			name: "zero slot",
			modify: func(c *Config) {
				c.Relay.SlotDuration = 0
			},
			err: ErrInvalidDuration,
		},
		{
			name: "bad rpc methods",
			modify: func(c *Config) {
				c.API.RPCMethods = "all"
			},
			err: ErrInvalidRPCMethods,
		},
		{
			name: "manual sealing",
			modify: func(c *Config) {
				c.Consensus.Sealing = SealingManual
			},
		},
		{
			name: "unknown sealing",
			modify: func(c *Config) {
				c.Consensus.Sealing = "eager"
			},
			err: ErrInvalidSealing,
		},
		{
			name: "empty pool",
			modify: func(c *Config) {
				c.Pool.MaxSize = 0
			},
			err: ErrInvalidPoolSize,
		},
		{
			name: "http telemetry endpoint",
			modify: func(c *Config) {
				c.Telemetry.Endpoints = []TelemetryEndpoint{{URL: "http://telemetry"}}
			},
			err: ErrInvalidTelemetryURL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			tt.modify(&c)
			err := c.Validate()
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(os.WriteFile(path, []byte(`
mode: collator
role: authority
paraId: 2000
relay:
  rpcURL: http://127.0.0.1:9944
  slotDuration: 2s
database:
  backend: memdb
`), 0o600))

	c, err := Load(path)
	require.NoError(err)
	require.Equal(ModeCollator, c.Mode)
	require.Equal(RoleAuthority, c.Role)
	require.Equal(ParaID(2000), c.ParaID)
	require.Equal(2*time.Second, c.Relay.SlotDuration)
	require.Equal(DatabaseMemory, c.Database.Backend)
	// untouched fields keep defaults
	require.Equal(NewConfig().Pool, c.Pool)
	require.NoError(c.Validate())
}

func TestLoadRejectsLightRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("role: light\n"), 0o600))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrLightClient)
}
