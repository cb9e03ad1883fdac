// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lifecycle

import "sync"

type Ready interface {
	Ready() bool
}

// ChanReady is a one-shot readiness gate. Waiters block on [ChanReady.Wait]
// until [ChanReady.MarkReady] is called.
type ChanReady struct {
	readyOnce sync.Once
	ready     chan struct{}
}

func NewChanReady() *ChanReady {
	return &ChanReady{ready: make(chan struct{})}
}

func (c *ChanReady) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// AwaitReady returns false if [done] closes first.
func (c *ChanReady) AwaitReady(done <-chan struct{}) bool {
	select {
	case <-c.ready:
		return true
	case <-done:
		return false
	}
}

func (c *ChanReady) Wait() <-chan struct{} {
	return c.ready
}

func (c *ChanReady) MarkReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// All is ready once every member is.
type All []Ready

func (a All) Ready() bool {
	for _, r := range a {
		if !r.Ready() {
			return false
		}
	}
	return true
}
