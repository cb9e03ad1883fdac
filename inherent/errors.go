// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inherent

import "errors"

var (
	// ErrInherentUnavailable fails a single authoring round.
	ErrInherentUnavailable = errors.New("inherent data unavailable")
	ErrDuplicateKind       = errors.New("duplicate inherent kind")
	ErrMissingTimestamp    = errors.New("timestamp inherent must come first")
	ErrMisplacedParachain  = errors.New("parachain inherent must follow timestamp")
	ErrMissingParachain    = errors.New("missing parachain inherent")
	ErrMissingKind         = errors.New("missing inherent kind")
	ErrInvalidPayload      = errors.New("invalid inherent payload")
	ErrQueueFull           = errors.New("mock relay queue full")
)
