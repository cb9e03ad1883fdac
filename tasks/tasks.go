// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrShutdown = errors.New("task manager shut down")

type closer struct {
	name  string
	close func() error
}

// Manager runs the node's long-lived goroutines under one cancellation
// context. The failure of an essential task stops every task.
type Manager struct {
	log    logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	// failure is the first essential task error.
	failure atomic.Error

	lock    sync.Mutex
	stopped bool
	closers []closer
	once    sync.Once
	err     error
}

func New(parent context.Context, log logging.Logger) *Manager {
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	return &Manager{
		log:    log,
		ctx:    gctx,
		cancel: cancel,
		g:      g,
	}
}

// Context is cancelled on shutdown or when an essential task fails.
func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

// Spawn runs [f] until the shared context is cancelled. Errors are logged
// and do not affect other tasks.
func (m *Manager) Spawn(name string, f func(context.Context) error) {
	m.spawn(name, f, false)
}

// SpawnEssential runs [f]; an error stops the whole node.
func (m *Manager) SpawnEssential(name string, f func(context.Context) error) {
	m.spawn(name, f, true)
}

func (m *Manager) spawn(name string, f func(context.Context) error, essential bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.stopped {
		m.log.Warn("dropping task spawned after shutdown", zap.String("task", name))
		return
	}
	m.g.Go(func() error {
		m.log.Debug("task started", zap.String("task", name), zap.Bool("essential", essential))
		err := f(m.ctx)
		switch {
		case err == nil || errors.Is(err, context.Canceled):
			m.log.Debug("task stopped", zap.String("task", name))
			return nil
		case essential:
			m.log.Error("essential task failed", zap.String("task", name), zap.Error(err))
			err = fmt.Errorf("task %s: %w", name, err)
			m.failure.CompareAndSwap(nil, err)
			return err
		default:
			m.log.Warn("task failed", zap.String("task", name), zap.Error(err))
			return nil
		}
	})
}

// AddCloser registers [f] to run during [Manager.Shutdown], after every
// task has returned. Closers run in reverse registration order.
func (m *Manager) AddCloser(name string, f func() error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.closers = append(m.closers, closer{name: name, close: f})
}

// Err returns the first essential failure without waiting for the other
// tasks. It is nil while every essential task runs.
func (m *Manager) Err() error {
	return m.failure.Load()
}

// Wait blocks until every task returned and reports the first essential
// failure.
func (m *Manager) Wait() error {
	return m.g.Wait()
}

// Shutdown cancels every task, waits for them and runs the closers. It is
// safe to call more than once.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.lock.Lock()
		m.stopped = true
		m.lock.Unlock()

		m.cancel()
		errs := []error{m.g.Wait()}
		for i := len(m.closers) - 1; i >= 0; i-- {
			c := m.closers[i]
			if err := c.close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			}
		}
		m.err = errors.Join(errs...)
	})
	return m.err
}
