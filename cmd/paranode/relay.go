// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/internal/logging"
	"github.com/ava-labs/paranode/relay"
	"github.com/ava-labs/paranode/tasks"
)

type relayOptions struct {
	addr         string
	slotDuration time.Duration
	finalityLag  uint64
	maxPoVSize   uint32
	logLevel     string
}

var relayOpts relayOptions

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Serve a simulated relay chain over JSON-RPC",
	Long: `relay runs a simulated relay chain that collators and full nodes can
reach with --relay-rpc-url http://<addr>.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		c := config.NewConfig()
		c.Log.Level = relayOpts.logLevel
		log, err := logging.New("relay", c.Log)
		if err != nil {
			return err
		}
		defer log.Stop()

		c.Relay.SlotDuration = relayOpts.slotDuration
		c.Relay.FinalityLag = relayOpts.finalityLag
		c.Relay.MaxPoVSize = relayOpts.maxPoVSize

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tm := tasks.New(ctx, log)
		svc := relay.NewService(relay.NewServiceConfig(c.Relay), log, nil)
		handler, err := relay.NewJSONRPCServer(svc, log).Handler()
		if err != nil {
			return err
		}
		server := &http.Server{
			Addr:              relayOpts.addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		tm.SpawnEssential("relay", svc.Run)
		tm.SpawnEssential("rpc", func(context.Context) error {
			log.Info("relay listening", zap.String("addr", relayOpts.addr+relay.JSONRPCEndpoint))
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		tm.AddCloser("rpc", server.Close)

		<-tm.Done()
		return tm.Shutdown()
	},
}

func init() {
	f := relayCmd.Flags()
	f.StringVar(&relayOpts.addr, "addr", "127.0.0.1:9944", "listen address")
	f.DurationVar(&relayOpts.slotDuration, "slot-duration", 6*time.Second, "relay block time")
	f.Uint64Var(&relayOpts.finalityLag, "finality-lag", 2, "blocks between head and finalized")
	f.Uint32Var(&relayOpts.maxPoVSize, "max-pov-size", 5<<20, "largest accepted collation in bytes")
	f.StringVar(&relayOpts.logLevel, "log-level", "info", "log level")
	rootCmd.AddCommand(relayCmd)
}
