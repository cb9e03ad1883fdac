// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import (
	"context"

	"github.com/ava-labs/avalanchego/utils/logging"
)

var _ Builder = (*Manual)(nil)

// Manual only triggers on [Manual.Force].
type Manual struct {
	notify    chan struct{}
	logger    logging.Logger
	doneBuild chan struct{}
}

func NewManual(logger logging.Logger) *Manual {
	return &Manual{
		notify:    make(chan struct{}, 1),
		logger:    logger,
		doneBuild: make(chan struct{}),
	}
}

func (b *Manual) Start() {
	close(b.doneBuild)
}

// Queue is a no-op in [Manual].
func (*Manual) Queue(context.Context) {}

func (b *Manual) Force(context.Context) error {
	select {
	case b.notify <- struct{}{}:
	default:
		b.logger.Debug("build trigger already pending")
	}
	return nil
}

func (b *Manual) Notify() <-chan struct{} {
	return b.notify
}

func (b *Manual) Done() {
	<-b.doneBuild
}
