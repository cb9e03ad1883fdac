// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"container/heap"

	"github.com/ava-labs/avalanchego/ids"
)

var _ heap.Interface = (*arrivalQueue)(nil)

// arrivalQueue orders pending transactions by admission sequence and
// indexes them by ID. Use it through container/heap.
type arrivalQueue struct {
	txs   []*Tx
	slots map[ids.ID]int
}

func newArrivalQueue(size int) *arrivalQueue {
	return &arrivalQueue{
		txs:   make([]*Tx, 0, size),
		slots: make(map[ids.ID]int, size),
	}
}

func (q *arrivalQueue) Len() int { return len(q.txs) }

func (q *arrivalQueue) Less(i, j int) bool {
	return q.txs[i].seq < q.txs[j].seq
}

func (q *arrivalQueue) Swap(i, j int) {
	q.txs[i], q.txs[j] = q.txs[j], q.txs[i]
	q.slots[q.txs[i].id] = i
	q.slots[q.txs[j].id] = j
}

func (q *arrivalQueue) Push(x any) {
	tx := x.(*Tx)
	q.slots[tx.id] = len(q.txs)
	q.txs = append(q.txs, tx)
}

func (q *arrivalQueue) Pop() any {
	last := len(q.txs) - 1
	tx := q.txs[last]
	q.txs[last] = nil
	q.txs = q.txs[:last]
	delete(q.slots, tx.id)
	return tx
}

func (q *arrivalQueue) has(id ids.ID) bool {
	_, ok := q.slots[id]
	return ok
}

func (q *arrivalQueue) oldest() *Tx {
	return q.txs[0]
}

func (q *arrivalQueue) remove(id ids.ID) (*Tx, bool) {
	i, ok := q.slots[id]
	if !ok {
		return nil, false
	}
	return heap.Remove(q, i).(*Tx), true
}
