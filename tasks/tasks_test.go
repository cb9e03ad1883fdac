// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestShutdownCancelsTasks(t *testing.T) {
	r := require.New(t)

	m := New(context.Background(), logging.NoLog{})
	stopped := make(chan struct{})
	m.Spawn("loop", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	r.NoError(m.Shutdown())
	<-stopped
	r.NoError(m.Shutdown())
}

func TestEssentialFailureStopsAll(t *testing.T) {
	r := require.New(t)

	m := New(context.Background(), logging.NoLog{})
	m.Spawn("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	m.SpawnEssential("failing", func(context.Context) error {
		return errBoom
	})
	<-m.Done()
	r.ErrorIs(m.Err(), errBoom)
	r.ErrorIs(m.Wait(), errBoom)
	r.ErrorIs(m.Shutdown(), errBoom)
}

func TestNonEssentialFailureIsContained(t *testing.T) {
	r := require.New(t)

	m := New(context.Background(), logging.NoLog{})
	failed := make(chan struct{})
	m.Spawn("failing", func(context.Context) error {
		defer close(failed)
		return errBoom
	})
	<-failed
	r.NoError(m.Context().Err())
	r.NoError(m.Err())
	r.NoError(m.Shutdown())
}

func TestClosersRunInReverse(t *testing.T) {
	r := require.New(t)

	m := New(context.Background(), logging.NoLog{})
	var order []string
	m.AddCloser("first", func() error {
		order = append(order, "first")
		return nil
	})
	m.AddCloser("second", func() error {
		order = append(order, "second")
		return errBoom
	})
	err := m.Shutdown()
	r.ErrorIs(err, errBoom)
	r.Equal([]string{"second", "first"}, order)
}

func TestSpawnAfterShutdown(t *testing.T) {
	r := require.New(t)

	m := New(context.Background(), logging.NoLog{})
	r.NoError(m.Shutdown())
	ran := false
	m.Spawn("late", func(context.Context) error {
		ran = true
		return nil
	})
	r.False(ran)
}
