// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package builder

import "context"

// Builder tells an authoring loop when to produce a block. Triggers are
// coalesced: at most one is pending on [Builder.Notify] at any time.
type Builder interface {
	Start()
	Queue(context.Context) // pool changed or a block was imported
	Force(context.Context) error
	Notify() <-chan struct{}
	Done() // wait after stop
}
