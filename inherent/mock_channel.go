// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inherent

import (
	"sync"

	"github.com/ava-labs/paranode/relay"
)

const DefaultMockCapacity = 100

// MockChannel queues synthetic relay messages for standalone nodes. The
// node only ever drains it; the send side is for tests and tooling that
// want to inject messages.
type MockChannel struct {
	lock       sync.Mutex
	capacity   int
	downward   []relay.Message
	horizontal []relay.Message
}

func NewMockChannel(capacity int) *MockChannel {
	return &MockChannel{capacity: capacity}
}

func (c *MockChannel) SendDownward(m relay.Message) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.downward) >= c.capacity {
		return ErrQueueFull
	}
	c.downward = append(c.downward, m)
	return nil
}

func (c *MockChannel) SendHorizontal(m relay.Message) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.horizontal) >= c.capacity {
		return ErrQueueFull
	}
	c.horizontal = append(c.horizontal, m)
	return nil
}

// Drain returns every queued message in FIFO order and empties both queues.
func (c *MockChannel) Drain() (downward []relay.Message, horizontal []relay.Message) {
	c.lock.Lock()
	defer c.lock.Unlock()

	downward, horizontal = c.downward, c.horizontal
	c.downward, c.horizontal = nil, nil
	return downward, horizontal
}

func (c *MockChannel) Len() (int, int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return len(c.downward), len(c.horizontal)
}
