// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/trace"

	"github.com/ava-labs/paranode/event"
	"github.com/ava-labs/paranode/utils"
)

const maxPrealloc = 4_096

var (
	ErrDuplicate  = errors.New("transaction already pending")
	ErrTxTooLarge = errors.New("transaction too large")
	ErrEmptyTx    = errors.New("empty transaction")
	ErrPoolFull   = errors.New("transaction pool full")
)

// Tx is an opaque transaction. Its ID is the hash of its bytes.
type Tx struct {
	id    ids.ID
	bytes []byte
	seq   uint64
}

func NewTx(b []byte) *Tx {
	return &Tx{id: utils.ToID(b), bytes: b}
}

func (t *Tx) ID() ids.ID    { return t.id }
func (t *Tx) Bytes() []byte { return t.bytes }
func (t *Tx) Size() int     { return len(t.bytes) }

// Mempool hands out transactions in arrival order.
type Mempool struct {
	tracer trace.Tracer

	mu sync.RWMutex

	maxSize   int
	maxTxSize int
	nextSeq   uint64
	bytes     int
	pending   *arrivalQueue

	subs []event.Subscription[*Tx]
}

// New creates a new [Mempool]. [maxSize] must be > 0.
func New(tracer trace.Tracer, maxSize int, maxTxSize int) *Mempool {
	return &Mempool{
		tracer:    tracer,
		maxSize:   maxSize,
		maxTxSize: maxTxSize,
		pending:   newArrivalQueue(min(maxSize, maxPrealloc)),
	}
}

// Subscribe registers [sub] to be notified of every newly added transaction.
// Must be called before the pool is shared.
func (m *Mempool) Subscribe(sub event.Subscription[*Tx]) {
	m.subs = append(m.subs, sub)
}

// Add inserts [raw] and notifies subscribers.
func (m *Mempool) Add(ctx context.Context, raw []byte) (ids.ID, error) {
	ctx, span := m.tracer.Start(ctx, "Mempool.Add")
	defer span.End()

	tx := NewTx(raw)
	if err := m.add(tx); err != nil {
		return tx.id, err
	}
	return tx.id, event.NotifyAll(ctx, tx, m.subs...)
}

func (m *Mempool) add(tx *Tx) error {
	switch {
	case tx.Size() == 0:
		return ErrEmptyTx
	case tx.Size() > m.maxTxSize:
		return fmt.Errorf("%w: %d > %d", ErrTxTooLarge, tx.Size(), m.maxTxSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending.has(tx.id) {
		return ErrDuplicate
	}
	if m.pending.Len() >= m.maxSize {
		return ErrPoolFull
	}
	tx.seq = m.nextSeq
	m.nextSeq++
	m.push(tx)
	return nil
}

func (m *Mempool) push(tx *Tx) {
	heap.Push(m.pending, tx)
	m.bytes += tx.Size()
}

func (m *Mempool) remove(id ids.ID) (*Tx, bool) {
	tx, ok := m.pending.remove(id)
	if !ok {
		return nil, false
	}
	m.bytes -= tx.Size()
	return tx, true
}

func (m *Mempool) Has(ctx context.Context, id ids.ID) bool {
	_, span := m.tracer.Start(ctx, "Mempool.Has")
	defer span.End()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.pending.has(id)
}

// Len returns the number of pending transactions.
func (m *Mempool) Len(ctx context.Context) int {
	_, span := m.tracer.Start(ctx, "Mempool.Len")
	defer span.End()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.pending.Len()
}

func (m *Mempool) Bytes(context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.bytes
}

// Pop removes up to [maxTxs] of the oldest transactions whose combined size
// fits in [maxBytes].
func (m *Mempool) Pop(ctx context.Context, maxTxs int, maxBytes int) []*Tx {
	_, span := m.tracer.Start(ctx, "Mempool.Pop")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		txs  []*Tx
		size int
	)
	for m.pending.Len() > 0 && len(txs) < maxTxs {
		oldest := m.pending.oldest()
		if size+oldest.Size() > maxBytes {
			break
		}
		m.remove(oldest.id)
		size += oldest.Size()
		txs = append(txs, oldest)
	}
	return txs
}

// Restore returns popped transactions to the pool at their original
// position. Transactions that no longer fit are dropped.
func (m *Mempool) Restore(ctx context.Context, txs []*Tx) {
	_, span := m.tracer.Start(ctx, "Mempool.Restore")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range txs {
		if m.pending.Len() >= m.maxSize {
			return
		}
		m.push(tx)
	}
}

// Remove drops [txIDs], typically because they were included in an imported
// block.
func (m *Mempool) Remove(ctx context.Context, txIDs []ids.ID) int {
	_, span := m.tracer.Start(ctx, "Mempool.Remove")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for _, id := range txIDs {
		if _, ok := m.remove(id); ok {
			removed++
		}
	}
	return removed
}
