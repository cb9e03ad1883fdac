// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/paranode/builder"
	"github.com/ava-labs/paranode/inherent"
)

var _ Strategy = (*InstantSeal)(nil)

// InstantSeal authors on every builder trigger with mocked relay data and
// finalizes each block as soon as it is imported. With manual sealing the
// only trigger is [InstantSeal.Seal].
type InstantSeal struct {
	*author

	builder   builder.Builder
	assembler inherent.Assembler
}

func (*InstantSeal) Kind() Kind { return KindInstantSeal }

func (*InstantSeal) sealed() {}

// Seal requests a block now, regardless of the pool.
func (s *InstantSeal) Seal(ctx context.Context) error {
	return s.builder.Force(ctx)
}

func (s *InstantSeal) Run(ctx context.Context) error {
	s.log.Info("starting instant seal", zap.Stringer("author", s.key))
	s.builder.Start()
	defer s.builder.Done()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.builder.Notify():
			if err := s.round(ctx); err != nil {
				if errors.Is(err, ErrSigningUnavailable) {
					return err
				}
				s.skip(err)
			}
		}
	}
}

func (s *InstantSeal) round(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "InstantSeal.round")
	defer span.End()

	parent := s.client.Best()
	bundle, err := s.assembler.Assemble(ctx, inherent.Request{
		ParentID:        parent.ID(),
		ParentHeight:    parent.Height,
		ParentTimestamp: parent.Timestamp,
	})
	if err != nil {
		return err
	}
	proposal, err := s.produce(ctx, parent, bundle)
	if err != nil {
		return err
	}
	b := proposal.Block
	if _, err := s.client.SetFinalized(ctx, b.ID()); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", b.ID(), err)
	}
	s.metrics.finalized.Set(float64(b.Height))
	// More transactions may have arrived while sealing.
	s.builder.Queue(ctx)
	return nil
}
