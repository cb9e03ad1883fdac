// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "errors"

var (
	ErrUnknownMode         = errors.New("unknown mode")
	ErrUnknownRole         = errors.New("unknown role")
	ErrLightClient         = errors.New("light client not supported")
	ErrMissingParaID       = errors.New("collator mode requires a para id")
	ErrRelayInDevMode      = errors.New("relay endpoint cannot be used in standalone mode")
	ErrInvalidRelayURL     = errors.New("invalid relay endpoint url")
	ErrUnknownDatabase     = errors.New("unknown database backend")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrInvalidRPCMethods   = errors.New("rpc methods must be one of auto, safe, unsafe")
	ErrInvalidPoolSize     = errors.New("pool size must be positive")
	ErrInvalidSealing      = errors.New("sealing must be one of instant, manual")
	ErrInvalidTelemetryURL = errors.New("invalid telemetry endpoint url")
)
