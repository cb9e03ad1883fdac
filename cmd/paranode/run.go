// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/consts"
	"github.com/ava-labs/paranode/internal/logging"
	"github.com/ava-labs/paranode/node"
)

type nodeFlags struct {
	configFile     string
	mode           string
	role           string
	paraID         uint32
	chainSpec      string
	dataDir        string
	database       string
	relayURL       string
	devAccount     string
	keyFile        string
	forceAuthoring bool
	sealing        string
	rpcAddr        string
	rpcMethods     string
	noRPC          bool
	bootnodes      []string
	telemetryURLs  []string
	logLevel       string
	logDir         string
	tracing        bool
}

var flags nodeFlags

func addNodeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&flags.configFile, "config", "", "YAML or JSON config file")
	f.StringVar(&flags.mode, "mode", "dev", "deployment mode (collator | full | dev)")
	f.StringVar(&flags.role, "role", "authority", "node role (authority | participant)")
	f.Uint32Var(&flags.paraID, "para-id", 0, "parachain id, required in collator mode")
	f.StringVar(&flags.chainSpec, "chain", "dev", "chain spec file, or \"dev\"")
	f.StringVar(&flags.dataDir, "data-dir", "", "data directory")
	f.StringVar(&flags.database, "database", "", "database backend (pebble | memdb)")
	f.StringVar(&flags.relayURL, "relay-rpc-url", "", "use a remote relay chain endpoint instead of an in-process relay")
	f.StringVar(&flags.devAccount, "dev-account", "", "sign with a well-known dev account (alice, bob, ...)")
	f.StringVar(&flags.keyFile, "key-file", "", "signing key file")
	f.BoolVar(&flags.forceAuthoring, "force-authoring", false, "author blocks even when not in the eligible set")
	f.StringVar(&flags.sealing, "sealing", "", "dev mode sealing (instant | manual)")
	f.StringVar(&flags.rpcAddr, "rpc-addr", "", "JSON-RPC listen address")
	f.StringVar(&flags.rpcMethods, "rpc-methods", "", "unsafe method policy (auto | safe | unsafe)")
	f.BoolVar(&flags.noRPC, "no-rpc", false, "disable the JSON-RPC server")
	f.StringSliceVar(&flags.bootnodes, "bootnodes", nil, "peer websocket URLs to dial")
	f.StringSliceVar(&flags.telemetryURLs, "telemetry-url", nil, "telemetry websocket endpoint (repeatable)")
	f.StringVar(&flags.logLevel, "log-level", "", "log level")
	f.StringVar(&flags.logDir, "log-dir", "", "directory for rotating log files")
	f.BoolVar(&flags.tracing, "tracing", false, "export traces to zipkin")
}

// loadConfig layers flags the user set over the config file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c, err := config.Load(flags.configFile)
	if err != nil {
		return c, err
	}
	changed := cmd.Flags().Changed
	if changed("mode") || flags.configFile == "" {
		if c.Mode, err = config.ParseMode(flags.mode); err != nil {
			return c, err
		}
	}
	if changed("role") || flags.configFile == "" {
		if c.Role, err = config.ParseRole(flags.role); err != nil {
			return c, err
		}
	}
	if changed("para-id") {
		c.ParaID = config.ParaID(flags.paraID)
	}
	if changed("chain") {
		c.ChainSpec = flags.chainSpec
	}
	if changed("data-dir") {
		c.DataDir = flags.dataDir
	}
	if changed("database") {
		c.Database.Backend = flags.database
	}
	if changed("relay-rpc-url") {
		c.Relay.RPCURL = flags.relayURL
	}
	if changed("dev-account") {
		c.Keystore.DevAccount = flags.devAccount
	}
	if changed("key-file") {
		c.Keystore.Path = flags.keyFile
	}
	if changed("force-authoring") {
		c.Consensus.ForceAuthoring = flags.forceAuthoring
	}
	if changed("sealing") {
		c.Consensus.Sealing = flags.sealing
	}
	if changed("rpc-addr") {
		c.API.ListenAddr = flags.rpcAddr
	}
	if changed("rpc-methods") {
		c.API.RPCMethods = flags.rpcMethods
	}
	if changed("no-rpc") {
		c.API.Enabled = !flags.noRPC
	}
	if changed("bootnodes") {
		c.Network.Bootnodes = flags.bootnodes
	}
	for _, u := range flags.telemetryURLs {
		c.Telemetry.Endpoints = append(c.Telemetry.Endpoints, config.TelemetryEndpoint{URL: u})
	}
	if changed("log-level") {
		c.Log.Level = flags.logLevel
	}
	if changed("log-dir") {
		c.Log.Directory = flags.logDir
	}
	if changed("tracing") {
		c.Trace.Enabled = flags.tracing
	}
	// Dev chains sign with alice unless told otherwise.
	if c.Mode == config.ModeStandaloneDev && c.Role.IsAuthority() && c.Keystore.Path == "" && c.Keystore.DevAccount == "" {
		c.Keystore.DevAccount = "alice"
	}
	return c, nil
}

func runNode(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return &node.InitializationError{Phase: node.PhaseConfig, Err: err}
	}
	log, err := logging.New(consts.Name, c.Log)
	if err != nil {
		return &node.InitializationError{Phase: node.PhaseConfig, Err: err}
	}
	defer log.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting "+consts.Name,
		zap.String("version", consts.Version),
		zap.Stringer("mode", c.Mode),
		zap.Stringer("role", c.Role),
		zap.String("chain", c.ChainSpec),
		zap.String("bootnodes", strings.Join(c.Network.Bootnodes, ",")),
	)
	n, err := node.Start(ctx, c, log)
	if err != nil {
		return err
	}
	<-n.Done()
	if err := n.Err(); err != nil {
		log.Error("node stopped", zap.Error(err))
	} else {
		log.Info("shutting down")
	}
	return n.Shutdown()
}
