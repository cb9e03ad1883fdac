// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ava-labs/avalanchego/utils/units"
	"gopkg.in/yaml.v2"

	"github.com/ava-labs/paranode/trace"
)

const (
	DatabasePebble = "pebble"
	DatabaseMemory = "memdb"

	RPCMethodsAuto   = "auto"
	RPCMethodsSafe   = "safe"
	RPCMethodsUnsafe = "unsafe"

	SealingInstant = "instant"
	SealingManual  = "manual"
)

type DatabaseConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Sync    bool   `json:"sync"    yaml:"sync"`
}

type IndexConfig struct {
	Backend       string `json:"backend"       yaml:"backend"` // local | redis
	RedisAddr     string `json:"redisAddr"     yaml:"redisAddr"`
	RedisPassword string `json:"redisPassword" yaml:"redisPassword"`
	RedisDB       int    `json:"redisDB"       yaml:"redisDB"`
}

type RelayConfig struct {
	// RPCURL selects the remote relay adapter when set.
	RPCURL       string        `json:"rpcURL"       yaml:"rpcURL"`
	RPCTimeout   time.Duration `json:"rpcTimeout"   yaml:"rpcTimeout"`
	SlotDuration time.Duration `json:"slotDuration" yaml:"slotDuration"`
	// FinalityLag is how many blocks the in-process relay keeps between its
	// head and its finalized block.
	FinalityLag uint64 `json:"finalityLag" yaml:"finalityLag"`
	MaxPoVSize  uint32 `json:"maxPoVSize"  yaml:"maxPoVSize"`
	// AllowedAncestry bounds how old a collation's relay parent may be.
	AllowedAncestry uint64 `json:"allowedAncestry" yaml:"allowedAncestry"`
}

type KeystoreConfig struct {
	Path       string `json:"path"       yaml:"path"`
	DevAccount string `json:"devAccount" yaml:"devAccount"`
}

type ConsensusConfig struct {
	// Sealing picks the standalone trigger: instant seals on pool activity
	// and on a fallback interval, manual seals only on request.
	Sealing             string        `json:"sealing"             yaml:"sealing"`
	ForceAuthoring      bool          `json:"forceAuthoring"      yaml:"forceAuthoring"`
	EligibleAuthors     []string      `json:"eligibleAuthors"     yaml:"eligibleAuthors"` // hex ed25519 public keys
	ProposalTimeout     time.Duration `json:"proposalTimeout"     yaml:"proposalTimeout"`
	InstantSealInterval time.Duration `json:"instantSealInterval" yaml:"instantSealInterval"`
	MinBlockGap         time.Duration `json:"minBlockGap"         yaml:"minBlockGap"`
	MaxBlockTxs         int           `json:"maxBlockTxs"         yaml:"maxBlockTxs"`
	MaxBlockSize        int           `json:"maxBlockSize"        yaml:"maxBlockSize"`
}

type PoolConfig struct {
	MaxSize   int `json:"maxSize"   yaml:"maxSize"`
	MaxTxSize int `json:"maxTxSize" yaml:"maxTxSize"`
}

type NetworkConfig struct {
	Bootnodes         []string      `json:"bootnodes"         yaml:"bootnodes"`
	MaxPendingPerPeer int           `json:"maxPendingPerPeer" yaml:"maxPendingPerPeer"`
	MaxMessageSize    int64         `json:"maxMessageSize"    yaml:"maxMessageSize"`
	DialRetry         time.Duration `json:"dialRetry"         yaml:"dialRetry"`
	SeenCacheSize     int           `json:"seenCacheSize"     yaml:"seenCacheSize"`
}

type APIConfig struct {
	Enabled    bool   `json:"enabled"    yaml:"enabled"`
	ListenAddr string `json:"listenAddr" yaml:"listenAddr"`
	RPCMethods string `json:"rpcMethods" yaml:"rpcMethods"`
}

type TelemetryEndpoint struct {
	URL       string `json:"url"       yaml:"url"`
	Verbosity uint8  `json:"verbosity" yaml:"verbosity"`
}

type TelemetryConfig struct {
	Endpoints []TelemetryEndpoint `json:"endpoints" yaml:"endpoints"`
	Buffer    int                 `json:"buffer"    yaml:"buffer"`
}

type LogConfig struct {
	Level     string `json:"level"     yaml:"level"`
	Directory string `json:"directory" yaml:"directory"`
	MaxSize   int    `json:"maxSize"   yaml:"maxSize"`  // megabytes
	MaxFiles  int    `json:"maxFiles"  yaml:"maxFiles"` // files
	MaxAge    int    `json:"maxAge"    yaml:"maxAge"`   // days
	Compress  bool   `json:"compress"  yaml:"compress"`
}

type Config struct {
	Mode      Mode   `json:"mode"      yaml:"mode"`
	Role      Role   `json:"role"      yaml:"role"`
	ParaID    ParaID `json:"paraId"    yaml:"paraId"`
	ChainSpec string `json:"chainSpec" yaml:"chainSpec"`
	DataDir   string `json:"dataDir"   yaml:"dataDir"`

	Database  DatabaseConfig  `json:"database"  yaml:"database"`
	Index     IndexConfig     `json:"index"     yaml:"index"`
	Relay     RelayConfig     `json:"relay"     yaml:"relay"`
	Keystore  KeystoreConfig  `json:"keystore"  yaml:"keystore"`
	Consensus ConsensusConfig `json:"consensus" yaml:"consensus"`
	Pool      PoolConfig      `json:"pool"      yaml:"pool"`
	Network   NetworkConfig   `json:"network"   yaml:"network"`
	API       APIConfig       `json:"api"       yaml:"api"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Log       LogConfig       `json:"log"       yaml:"log"`
	Trace     trace.Config    `json:"trace"     yaml:"trace"`
}

func NewConfig() Config {
	return Config{
		Mode:      ModeStandaloneDev,
		Role:      RoleAuthority,
		ChainSpec: "dev",
		DataDir:   ".paranode",
		Database: DatabaseConfig{
			Backend: DatabasePebble,
			Sync:    true,
		},
		Index: IndexConfig{Backend: "local"},
		Relay: RelayConfig{
			RPCTimeout:      10 * time.Second,
			SlotDuration:    6 * time.Second,
			FinalityLag:     2,
			MaxPoVSize:      5 * units.MiB,
			AllowedAncestry: 4,
		},
		Consensus: ConsensusConfig{
			Sealing:             SealingInstant,
			ProposalTimeout:     500 * time.Millisecond,
			InstantSealInterval: 6 * time.Second,
			MinBlockGap:         100 * time.Millisecond,
			MaxBlockTxs:         1_024,
			MaxBlockSize:        2 * units.MiB,
		},
		Pool: PoolConfig{
			MaxSize:   8_192,
			MaxTxSize: 64 * units.KiB,
		},
		Network: NetworkConfig{
			MaxPendingPerPeer: 1_024,
			MaxMessageSize:    4 * units.MiB,
			DialRetry:         5 * time.Second,
			SeenCacheSize:     1_024,
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:9933",
			RPCMethods: RPCMethodsAuto,
		},
		Telemetry: TelemetryConfig{Buffer: 16},
		Log: LogConfig{
			Level:    "info",
			MaxSize:  8,
			MaxFiles: 7,
			MaxAge:   14,
			Compress: true,
		},
		Trace: trace.Config{Enabled: false, AppName: "paranode"},
	}
}

// Load reads a YAML (or JSON) config file on top of the defaults.
func Load(path string) (Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeCollator:
		if c.ParaID == 0 {
			return ErrMissingParaID
		}
	case ModeFullNode:
	case ModeStandaloneDev:
		if c.Relay.RPCURL != "" {
			return ErrRelayInDevMode
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMode, c.Mode)
	}
	if c.Role != RoleAuthority && c.Role != RoleParticipant {
		return fmt.Errorf("%w: %d", ErrUnknownRole, c.Role)
	}
	if c.Relay.RPCURL != "" {
		u, err := url.Parse(c.Relay.RPCURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidRelayURL, c.Relay.RPCURL)
		}
	}
	switch c.Database.Backend {
	case DatabasePebble, DatabaseMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDatabase, c.Database.Backend)
	}
	for name, d := range map[string]time.Duration{
		"relay.slotDuration":            c.Relay.SlotDuration,
		"relay.rpcTimeout":              c.Relay.RPCTimeout,
		"consensus.proposalTimeout":     c.Consensus.ProposalTimeout,
		"consensus.instantSealInterval": c.Consensus.InstantSealInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, name)
		}
	}
	switch c.Consensus.Sealing {
	case SealingInstant, SealingManual:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSealing, c.Consensus.Sealing)
	}
	if c.Pool.MaxSize <= 0 || c.Pool.MaxTxSize <= 0 {
		return ErrInvalidPoolSize
	}
	switch c.API.RPCMethods {
	case RPCMethodsAuto, RPCMethodsSafe, RPCMethodsUnsafe:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRPCMethods, c.API.RPCMethods)
	}
	for _, e := range c.Telemetry.Endpoints {
		u, err := url.Parse(e.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("%w: %q", ErrInvalidTelemetryURL, e.URL)
		}
	}
	return nil
}
