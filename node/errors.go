// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import "fmt"

type Phase string

const (
	PhaseConfig    Phase = "config"
	PhaseStore     Phase = "store"
	PhaseTelemetry Phase = "telemetry"
	PhaseRelay     Phase = "relay"
	PhaseConsensus Phase = "consensus"
	PhaseNetwork   Phase = "network"
	PhaseRPC       Phase = "rpc"
)

// InitializationError is returned by [Start] and [NewPartial]. Nothing is
// retried: the caller reports it and exits.
type InitializationError struct {
	Phase Phase
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize %s: %v", e.Phase, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

func initError(phase Phase, err error) error {
	return &InitializationError{Phase: phase, Err: err}
}
