// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pebble

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/utils/units"
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	_ database.Database = (*Database)(nil)
	_ database.Batch    = (*batch)(nil)
	_ database.Iterator = (*iterator)(nil)
)

type Config struct {
	CacheSize                   int  `json:"cacheSize"`
	BytesPerSync                int  `json:"bytesPerSync"`
	WALBytesPerSync             int  `json:"walBytesPerSync"`
	MemTableStopWritesThreshold int  `json:"memTableStopWritesThreshold"`
	MemTableSize                int  `json:"memTableSize"`
	MaxOpenFiles                int  `json:"maxOpenFiles"`
	ConcurrentCompactions       int  `json:"concurrentCompactions"`
	Sync                        bool `json:"sync"`
}

func NewDefaultConfig() Config {
	return Config{
		CacheSize:                   256 * units.MiB,
		BytesPerSync:                1 * units.MiB,
		WALBytesPerSync:             1 * units.MiB,
		MemTableStopWritesThreshold: 8,
		MemTableSize:                64 * units.MiB,
		MaxOpenFiles:                4_096,
		ConcurrentCompactions:       1,
		Sync:                        true,
	}
}

type Database struct {
	db      *pebble.DB
	wo      *pebble.WriteOptions
	metrics *metrics

	lock   sync.RWMutex
	closed bool
}

// New opens (or creates) a pebble database at [file], reporting its metrics
// to [registerer].
func New(file string, cfg Config, registerer prometheus.Registerer) (*Database, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	d := &Database{metrics: m}
	if cfg.Sync {
		d.wo = pebble.Sync
	} else {
		d.wo = pebble.NoSync
	}
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(int64(cfg.CacheSize)),
		BytesPerSync:                cfg.BytesPerSync,
		Comparer:                    pebble.DefaultComparer,
		WALBytesPerSync:             cfg.WALBytesPerSync,
		MemTableStopWritesThreshold: cfg.MemTableStopWritesThreshold,
		MemTableSize:                uint64(cfg.MemTableSize),
		MaxOpenFiles:                cfg.MaxOpenFiles,
		MaxConcurrentCompactions:    func() int { return cfg.ConcurrentCompactions },
		EventListener:               d.listener(),
	}
	defer opts.Cache.Unref()
	db, err := pebble.Open(file, opts)
	if err != nil {
		return nil, err
	}
	d.db = db
	if err := registerer.Register(newSizeCollector(d)); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return d, nil
}

func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}
	db.closed = true
	return updateError(db.db.Close())
}

func (db *Database) HealthCheck(context.Context) (interface{}, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	return nil, nil
}

func (db *Database) Has(key []byte) (bool, error) {
	_, err := db.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, database.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	start := time.Now()
	data, closer, err := db.db.Get(key)
	db.metrics.readLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, updateError(err)
	}
	defer closer.Close()
	return bytes.Clone(data), nil
}

func (db *Database) Put(key []byte, value []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	return updateError(db.db.Set(key, value, db.wo))
}

func (db *Database) Delete(key []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	return updateError(db.db.Delete(key, db.wo))
}

func (db *Database) Compact(start []byte, limit []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	if limit == nil {
		// pebble requires an upper bound; use the last key present.
		it, err := db.db.NewIter(&pebble.IterOptions{LowerBound: start})
		if err != nil {
			return updateError(err)
		}
		if it.Last() {
			limit = append(bytes.Clone(it.Key()), 0)
		}
		if err := it.Close(); err != nil {
			return updateError(err)
		}
		if limit == nil {
			return nil
		}
	}
	return updateError(db.db.Compact(start, limit, true))
}

func (db *Database) NewBatch() database.Batch {
	return &batch{db: db, b: db.db.NewBatch()}
}

func (db *Database) NewIterator() database.Iterator {
	return db.newIterator(nil, nil)
}

func (db *Database) NewIteratorWithStart(start []byte) database.Iterator {
	return db.newIterator(start, nil)
}

func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return db.newIterator(nil, prefix)
}

func (db *Database) NewIteratorWithStartAndPrefix(start, prefix []byte) database.Iterator {
	return db.newIterator(start, prefix)
}

func (db *Database) newIterator(start, prefix []byte) database.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return &iterator{err: database.ErrClosed}
	}
	lower := prefix
	if bytes.Compare(start, prefix) > 0 {
		lower = start
	}
	it, err := db.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return &iterator{err: updateError(err)}
	}
	return &iterator{it: it}
}

// prefixUpperBound returns the smallest key greater than every key with
// [prefix], or nil when no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := bytes.Clone(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}

func updateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pebble.ErrNotFound):
		return database.ErrNotFound
	case errors.Is(err, pebble.ErrClosed):
		return database.ErrClosed
	default:
		return err
	}
}

type batch struct {
	db *Database
	b  *pebble.Batch

	size    int
	written bool
}

func (b *batch) Put(key, value []byte) error {
	b.size += len(key) + len(value)
	return b.b.Set(key, value, nil)
}

func (b *batch) Delete(key []byte) error {
	b.size += len(key)
	return b.b.Delete(key, nil)
}

func (b *batch) Size() int {
	return b.size
}

func (b *batch) Write() error {
	b.db.lock.RLock()
	defer b.db.lock.RUnlock()

	if b.db.closed {
		return database.ErrClosed
	}
	if b.written {
		// pebble batches can only be committed once
		nb := b.db.db.NewBatch()
		if err := nb.Apply(b.b, nil); err != nil {
			return err
		}
		b.b = nb
	}
	b.written = true
	return updateError(b.b.Commit(b.db.wo))
}

func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
	b.written = false
}

func (b *batch) Replay(w database.KeyValueWriterDeleter) error {
	r := b.b.Reader()
	for {
		kind, k, v, ok := r.Next()
		if !ok {
			return nil
		}
		switch kind {
		case pebble.InternalKeyKindSet:
			if err := w.Put(k, v); err != nil {
				return err
			}
		case pebble.InternalKeyKindDelete:
			if err := w.Delete(k); err != nil {
				return err
			}
		}
	}
}

func (b *batch) Inner() database.Batch {
	return b
}

type iterator struct {
	it      *pebble.Iterator
	started bool
	valid   bool
	err     error
	key     []byte
	value   []byte
}

func (i *iterator) Next() bool {
	if i.it == nil || i.err != nil {
		return false
	}
	if !i.started {
		i.valid = i.it.First()
		i.started = true
	} else {
		i.valid = i.it.Next()
	}
	if !i.valid {
		i.key, i.value = nil, nil
		return false
	}
	i.key = bytes.Clone(i.it.Key())
	i.value = bytes.Clone(i.it.Value())
	return true
}

func (i *iterator) Error() error {
	if i.err != nil {
		return i.err
	}
	if i.it == nil {
		return nil
	}
	return updateError(i.it.Error())
}

func (i *iterator) Key() []byte {
	return i.key
}

func (i *iterator) Value() []byte {
	return i.value
}

func (i *iterator) Release() {
	if i.it != nil {
		_ = i.it.Close()
		i.it = nil
	}
}
