// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/paranode/config"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	// reconnect is the delay before redialing a dropped endpoint.
	reconnect = 5 * time.Second
)

// Verbosity levels. Endpoints receive every message at or below their
// configured level.
const (
	VerbosityInfo  uint8 = 0
	VerbosityDebug uint8 = 1
	VerbosityTrace uint8 = 2
)

var ErrNoEndpoints = errors.New("no telemetry endpoints")

type Message struct {
	Session   string                 `json:"session"`
	Name      string                 `json:"name"`
	Msg       string                 `json:"msg"`
	Timestamp int64                  `json:"ts"`
	Fields    map[string]interface{} `json:"fields,omitempty"`

	verbosity uint8
}

// Worker forwards reported messages to every configured endpoint. One
// [Worker] is shared by the node and its in-process relay.
type Worker struct {
	log       logging.Logger
	name      string
	session   uuid.UUID
	endpoints []config.TelemetryEndpoint
	queue     chan Message
	dropped   atomic.Uint64
}

// New returns [ErrNoEndpoints] when telemetry is not configured. Callers
// treat that as "no telemetry" and pass a nil [*Handle] around.
func New(c config.TelemetryConfig, name string, log logging.Logger) (*Worker, error) {
	if len(c.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	for _, e := range c.Endpoints {
		u, err := url.Parse(e.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return nil, fmt.Errorf("%w: %s", config.ErrInvalidTelemetryURL, e.URL)
		}
	}
	buffer := c.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	return &Worker{
		log:       log,
		name:      name,
		session:   uuid.New(),
		endpoints: c.Endpoints,
		queue:     make(chan Message, buffer),
	}, nil
}

func (w *Worker) Session() string {
	return w.session.String()
}

func (w *Worker) Handle() *Handle {
	return &Handle{w: w}
}

// Dropped is the number of messages discarded because the queue was full.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Run fans queued messages out to the endpoints until [ctx] is done.
func (w *Worker) Run(ctx context.Context) error {
	sinks := make([]chan []byte, len(w.endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range w.endpoints {
		sinks[i] = make(chan []byte, cap(w.queue))
		e, sink := e, sinks[i]
		g.Go(func() error {
			w.serve(gctx, e.URL, sink)
			return nil
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case m := <-w.queue:
				b, err := json.Marshal(m)
				if err != nil {
					w.log.Debug("unable to encode telemetry message", zap.Error(err))
					continue
				}
				for i, e := range w.endpoints {
					if m.verbosity > e.Verbosity {
						continue
					}
					select {
					case sinks[i] <- b:
					default:
						w.dropped.Add(1)
					}
				}
			}
		}
	})
	return g.Wait()
}

// serve keeps a connection to [endpoint] open and writes [sink] to it.
func (w *Worker) serve(ctx context.Context, endpoint string, sink <-chan []byte) {
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			w.log.Debug("unable to dial telemetry endpoint",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
		} else {
			err = w.writePump(ctx, conn, sink)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			w.log.Debug("telemetry connection closed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnect):
		}
	}
}

func (*Worker) writePump(ctx context.Context, conn *websocket.Conn, sink <-chan []byte) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return ctx.Err()
		case b := <-sink:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// Handle is the reporting side of a [Worker]. A nil [*Handle] discards
// everything.
type Handle struct {
	w *Worker
}

// Report never blocks.
func (h *Handle) Report(verbosity uint8, msg string, fields map[string]interface{}) {
	if h == nil {
		return
	}
	m := Message{
		Session:   h.w.Session(),
		Name:      h.w.name,
		Msg:       msg,
		Timestamp: time.Now().UnixMilli(),
		Fields:    fields,
		verbosity: verbosity,
	}
	select {
	case h.w.queue <- m:
	default:
		h.w.dropped.Add(1)
	}
}
