// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/importer"
	"github.com/ava-labs/paranode/lifecycle"
)

// maxOrphans bounds blocks held while their ancestors are fetched.
const maxOrphans = 256

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// Importer is satisfied by *importer.Queue.
type Importer interface {
	Import(ctx context.Context, b *block.Block) error
	ImportBatch(ctx context.Context, blks []*block.Block) (int, error)
	HasBlock(ctx context.Context, id ids.ID) (bool, error)
	GetBlock(ctx context.Context, id ids.ID) (*block.Block, error)
}

// AnnounceValidator rejects announced blocks before import. A nil
// validator accepts everything.
type AnnounceValidator func(ctx context.Context, b *block.Block) error

type metrics struct {
	peers     prometheus.Gauge
	received  prometheus.Counter
	invalid   prometheus.Counter
	announced prometheus.Counter
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "network",
			Name:      "peers",
			Help:      "number of connected peers",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "network",
			Name:      "received_blocks",
			Help:      "number of blocks received from peers",
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "network",
			Name:      "invalid_announcements",
			Help:      "number of announced blocks that failed validation",
		}),
		announced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "network",
			Name:      "announced_blocks",
			Help:      "number of blocks announced to peers",
		}),
	}
	return m, errors.Join(
		r.Register(m.peers),
		r.Register(m.received),
		r.Register(m.invalid),
		r.Register(m.announced),
	)
}

// Network gossips blocks with peers over websockets. Inbound connections
// arrive through [Network.ServeHTTP]; outbound connections are dialed to
// the bootnodes by the [Starter].
type Network struct {
	config    config.NetworkConfig
	log       logging.Logger
	importer  Importer
	validator AnnounceValidator
	metrics   *metrics
	ready     *lifecycle.ChanReady

	peers peers

	lock    sync.Mutex
	seen    *cache.LRU[ids.ID, struct{}]
	orphans map[ids.ID]*block.Block // keyed by missing parent
}

func New(
	c config.NetworkConfig,
	log logging.Logger,
	registerer prometheus.Registerer,
	imp Importer,
	validator AnnounceValidator,
) (*Network, *Starter, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, nil, err
	}
	n := &Network{
		config:    c,
		log:       log,
		importer:  imp,
		validator: validator,
		metrics:   m,
		ready:     lifecycle.NewChanReady(),
		seen:      &cache.LRU[ids.ID, struct{}]{Size: c.SeenCacheSize},
		orphans:   map[ids.ID]*block.Block{},
	}
	return n, &Starter{n: n}, nil
}

// ServeHTTP accepts an inbound peer. Peers are refused until the [Starter]
// has run.
func (n *Network) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !n.ready.Ready() {
		http.Error(w, "network not started", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.log.Debug("failed to upgrade",
			zap.Error(err),
		)
		return
	}
	n.addPeer(newPeer(n, r.RemoteAddr, conn))
}

func (n *Network) addPeer(p *peer) {
	n.peers.Add(p)
	n.metrics.peers.Set(float64(n.peers.Len()))
	n.log.Debug("peer connected", zap.String("peer", p.addr))

	go p.writePump()
	go p.readPump()
}

func (n *Network) Peers() int {
	return n.peers.Len()
}

// AnnounceBlock sends [payload] to every peer unless [id] was already
// announced or received.
func (n *Network) AnnounceBlock(id ids.ID, payload []byte) {
	if !n.markSeen(id) {
		return
	}
	n.broadcast(id, payload, nil)
}

func (n *Network) broadcast(id ids.ID, payload []byte, except *peer) {
	msg, err := (&message{kind: msgAnnounce, payload: payload}).bytes()
	if err != nil {
		n.log.Warn("unable to encode announcement", zap.Stringer("id", id), zap.Error(err))
		return
	}
	for _, p := range n.peers.List() {
		if p == except {
			continue
		}
		if !p.Send(msg) {
			n.log.Verbo("dropping announcement due to too many pending messages",
				zap.String("peer", p.addr),
			)
		}
	}
	n.metrics.announced.Inc()
}

// markSeen reports whether [id] was new.
func (n *Network) markSeen(id ids.ID) bool {
	n.lock.Lock()
	defer n.lock.Unlock()

	if _, ok := n.seen.Get(id); ok {
		return false
	}
	n.seen.Put(id, struct{}{})
	return true
}

func (n *Network) handle(p *peer, msg *message) {
	ctx := context.Background()
	switch msg.kind {
	case msgRequest:
		b, err := n.importer.GetBlock(ctx, msg.id)
		if err != nil {
			n.log.Debug("unable to serve block request",
				zap.Stringer("id", msg.id),
				zap.Error(err),
			)
			return
		}
		resp, err := (&message{kind: msgBlock, payload: b.Bytes()}).bytes()
		if err == nil {
			p.Send(resp)
		}
	case msgAnnounce, msgBlock:
		b, err := block.Parse(msg.payload)
		if err != nil {
			n.log.Debug("unable to parse block",
				zap.String("peer", p.addr),
				zap.Error(err),
			)
			return
		}
		n.metrics.received.Inc()
		announced := msg.kind == msgAnnounce
		if announced && !n.markSeen(b.ID()) {
			return
		}
		if announced && n.validator != nil {
			if err := n.validator(ctx, b); err != nil {
				n.metrics.invalid.Inc()
				n.log.Debug("dropping invalid announcement",
					zap.Stringer("id", b.ID()),
					zap.Error(err),
				)
				return
			}
		}
		n.receive(ctx, p, b, announced)
	}
}

// receive imports [b] and then the chain of orphans waiting on it. Missing
// ancestors are requested from [p].
func (n *Network) receive(ctx context.Context, p *peer, b *block.Block, announced bool) {
	err := n.importer.Import(ctx, b)
	switch {
	case err == nil:
		if announced {
			n.broadcast(b.ID(), b.Bytes(), p)
		}
	case errors.Is(err, importer.ErrKnownBlock):
	case errors.Is(err, importer.ErrUnknownParent):
		n.addOrphan(b)
		if known, _ := n.importer.HasBlock(ctx, b.Parent); !known {
			n.request(p, b.Parent)
		}
		return
	default:
		n.log.Debug("unable to import peer block",
			zap.Stringer("id", b.ID()),
			zap.Uint64("height", b.Height),
			zap.Error(err),
		)
		return
	}

	var chain []*block.Block
	for o := n.takeOrphan(b.ID()); o != nil; o = n.takeOrphan(o.ID()) {
		chain = append(chain, o)
	}
	if len(chain) == 0 {
		return
	}
	if imported, err := n.importer.ImportBatch(ctx, chain); err != nil {
		n.log.Debug("unable to import orphan chain",
			zap.Int("imported", imported),
			zap.Int("orphans", len(chain)),
			zap.Error(err),
		)
	}
}

func (n *Network) request(p *peer, id ids.ID) {
	msg, err := (&message{kind: msgRequest, id: id}).bytes()
	if err != nil {
		return
	}
	p.Send(msg)
}

func (n *Network) addOrphan(b *block.Block) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if len(n.orphans) >= maxOrphans {
		n.log.Debug("dropping orphan", zap.Stringer("id", b.ID()))
		return
	}
	n.orphans[b.Parent] = b
}

func (n *Network) takeOrphan(parent ids.ID) *block.Block {
	n.lock.Lock()
	defer n.lock.Unlock()

	b, ok := n.orphans[parent]
	if !ok {
		return nil
	}
	delete(n.orphans, parent)
	return b
}

// Starter opens the network: inbound peers are accepted and bootnodes are
// dialed until the context is done.
type Starter struct {
	n *Network
}

func (s *Starter) Ready() *lifecycle.ChanReady {
	return s.n.ready
}

func (s *Starter) Start(ctx context.Context) error {
	n := s.n
	n.ready.MarkReady()
	n.log.Info("network started", zap.Int("bootnodes", len(n.config.Bootnodes)))

	var wg sync.WaitGroup
	for _, addr := range n.config.Bootnodes {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dialLoop(ctx, addr)
		}()
	}
	<-ctx.Done()
	for _, p := range n.peers.List() {
		p.close()
	}
	wg.Wait()
	return nil
}

// dialLoop keeps a connection to [addr] open.
func (s *Starter) dialLoop(ctx context.Context, addr string) {
	n := s.n
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			n.log.Debug("unable to dial bootnode", zap.String("addr", addr), zap.Error(err))
		} else {
			p := newPeer(n, addr, conn)
			n.addPeer(p)
			select {
			case <-p.closed:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.config.DialRetry):
		}
	}
}
