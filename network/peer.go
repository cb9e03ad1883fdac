// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ava-labs/avalanchego/utils/set"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// peer is one websocket connection, inbound or dialed.
type peer struct {
	n    *Network
	addr string
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Represents if the peer can receive new messages.
	active atomic.Bool
	once   sync.Once
	closed chan struct{}
}

func newPeer(n *Network, addr string, conn *websocket.Conn) *peer {
	p := &peer{
		n:      n,
		addr:   addr,
		conn:   conn,
		send:   make(chan []byte, n.config.MaxPendingPerPeer),
		closed: make(chan struct{}),
	}
	p.active.Store(true)
	return p
}

// Send queues [msg] and reports whether it was accepted.
func (p *peer) Send(msg []byte) bool {
	if !p.active.Load() {
		return false
	}
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		p.active.Store(false)
		p.n.peers.Remove(p)
		close(p.closed)
		// close is called by both the writePump and the readPump so one of
		// them will always error
		_ = p.conn.Close()
	})
}

// readPump is the only reader of the connection.
func (p *peer) readPump() {
	defer p.close()

	p.conn.SetReadLimit(p.n.config.MaxMessageSize)
	// SetReadDeadline returns an error if the connection is corrupted
	if err := p.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, b, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				p.n.log.Debug("unexpected close in websockets",
					zap.String("peer", p.addr),
					zap.Error(err),
				)
			}
			return
		}
		msg, err := parseMessage(b, int(p.n.config.MaxMessageSize))
		if err != nil {
			p.n.log.Debug("unable to parse peer message",
				zap.String("peer", p.addr),
				zap.Error(err),
			)
			return
		}
		p.n.handle(p, msg)
	}
}

// writePump is the only writer of the connection.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
	}()
	for {
		select {
		case <-p.closed:
			return
		case msg := <-p.send:
			if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				p.n.log.Debug("closing the connection",
					zap.String("reason", "failed to set the write deadline"),
					zap.Error(err),
				)
				return
			}
			if err := p.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				p.n.log.Debug("closing the connection",
					zap.String("reason", "failed to write message"),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// peers is the set of live connections.
type peers struct {
	lock  sync.RWMutex
	conns set.Set[*peer]
}

func (c *peers) List() []*peer {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.conns.List()
}

func (c *peers) Remove(p *peer) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.conns.Remove(p)
}

func (c *peers) Add(p *peer) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.conns.Add(p)
}

func (c *peers) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.conns.Len()
}
