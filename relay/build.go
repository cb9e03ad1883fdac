// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"fmt"
	"net/url"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/tasks"
	"github.com/ava-labs/paranode/telemetry"
)

// Build selects the relay adapter once. A configured RPC URL yields a
// remote client and nothing is dialed until the first call. Otherwise an
// in-process relay service is spawned on [tm].
func Build(
	c config.RelayConfig,
	log logging.Logger,
	tel *telemetry.Handle,
	tm *tasks.Manager,
) (Interface, error) {
	if c.RPCURL != "" {
		u, err := url.Parse(c.RPCURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: %s", config.ErrInvalidRelayURL, c.RPCURL)
		}
		log.Info("using remote relay", zap.String("url", c.RPCURL))
		cli := NewRPCClient(c.RPCURL, c.RPCTimeout)
		tm.AddCloser("relay", cli.Close)
		return cli, nil
	}

	svc := NewService(NewServiceConfig(c), log, tel)
	tm.SpawnEssential("relay", svc.Run)
	ip := NewInProcess(svc)
	tm.AddCloser("relay", ip.Close)
	log.Info("using in-process relay")
	return ip, nil
}
