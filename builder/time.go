// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/timer"
	"go.uber.org/zap"
)

var _ Builder = (*Time)(nil)

type Pool interface {
	Len(context.Context) int // items
}

// PreferredTimestamp returns the timestamp (in milliseconds) of the block
// the next block will build on.
type PreferredTimestamp func(ctx context.Context) (int64, error)

// Time triggers a build when the pool changes, no sooner than [minGap]
// after the preferred block, and at least every [interval] even when the
// pool is empty.
type Time struct {
	notify             chan struct{}
	logger             logging.Logger
	pool               Pool
	preferredTimestamp PreferredTimestamp
	minGap             time.Duration
	interval           time.Duration
	doneBuild          chan struct{}
	cancelCtxFunc      context.CancelFunc

	timer      *timer.Timer
	lastNotify atomic.Int64
	waiting    atomic.Bool
}

func NewTime(
	logger logging.Logger,
	pool Pool,
	preferredTimestamp PreferredTimestamp,
	minGap time.Duration,
	interval time.Duration,
) *Time {
	cancelCtx, cancelCtxFunc := context.WithCancel(context.Background())
	b := &Time{
		notify:             make(chan struct{}, 1),
		logger:             logger,
		pool:               pool,
		preferredTimestamp: preferredTimestamp,
		minGap:             minGap,
		interval:           interval,
		doneBuild:          make(chan struct{}),
		cancelCtxFunc:      cancelCtxFunc,
	}
	b.timer = timer.NewTimer(func() {
		b.handleTimerNotify(cancelCtx)
	})
	return b
}

func (b *Time) Start() {
	b.timer.SetTimeoutIn(b.interval)
	go func() {
		defer close(b.doneBuild)
		b.timer.Dispatch() // this blocks
	}()
	b.Queue(context.TODO()) // may not be an initial trigger
}

func (b *Time) handleTimerNotify(ctx context.Context) {
	if err := b.Force(ctx); err != nil {
		b.logger.Warn("unable to build", zap.Error(err))
	} else {
		b.logger.Debug("trigger to notify", zap.Int("txs", b.pool.Len(ctx)))
	}
	b.waiting.Store(false)
}

// nextTime returns -1 when a build may start immediately.
func (b *Time) nextTime(now, preferred int64) int64 {
	gap := b.minGap.Milliseconds()
	next := max(b.lastNotify.Load()+gap, preferred+gap)
	if next <= now {
		return -1
	}
	return next
}

func (b *Time) Queue(ctx context.Context) {
	if b.pool.Len(ctx) == 0 {
		return
	}
	if !b.waiting.CompareAndSwap(false, true) {
		b.logger.Debug("unable to acquire waiting lock")
		return
	}
	now := time.Now().UnixMilli()
	preferred, err := b.preferredTimestamp(ctx)
	if err != nil {
		b.waiting.Store(false)
		b.logger.Warn("unable to get preferred timestamp", zap.Error(err))
		return
	}
	next := b.nextTime(now, preferred)
	if next < 0 {
		if err := b.Force(ctx); err != nil {
			b.logger.Warn("unable to build", zap.Error(err))
		} else {
			b.logger.Debug("notifying to build without waiting", zap.Int("txs", b.pool.Len(ctx)))
		}
		b.waiting.Store(false)
		return
	}
	sleep := time.Duration(next-now) * time.Millisecond
	b.timer.SetTimeoutIn(sleep)
	b.logger.Debug("waiting to notify to build", zap.Duration("t", sleep))
}

// Force triggers a build and restarts the fallback interval.
func (b *Time) Force(context.Context) error {
	select {
	case b.notify <- struct{}{}:
		b.lastNotify.Store(time.Now().UnixMilli())
	default:
		b.logger.Debug("build trigger already pending")
	}
	b.timer.SetTimeoutIn(b.interval)
	return nil
}

func (b *Time) Notify() <-chan struct{} {
	return b.notify
}

func (b *Time) Done() {
	b.cancelCtxFunc()
	b.timer.Stop()
	<-b.doneBuild
}
