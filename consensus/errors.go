// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"errors"

	"github.com/ava-labs/paranode/proposer"
)

var (
	// ErrProposalTimeout skips the round.
	ErrProposalTimeout = proposer.ErrProposalTimeout
	// ErrSigningUnavailable is fatal and returned by [Select].
	ErrSigningUnavailable = errors.New("signing key unavailable")
	// ErrImportRejected skips the round.
	ErrImportRejected = errors.New("authored block rejected by import queue")

	ErrMissingRelay   = errors.New("relay interface required")
	ErrInvalidAuthor  = errors.New("invalid eligible author")
	ErrNotEligible    = errors.New("local key not eligible to author")
	errNoNewRelayData = errors.New("no new relay state")
)
