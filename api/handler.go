// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/rpc"
)

const Name = "paranode"

// denyUnsafe applies the rpc-methods policy to a caller. "auto" allows
// unsafe methods for loopback callers only.
func denyUnsafe(policy string, remoteAddr string) bool {
	switch policy {
	case config.RPCMethodsUnsafe:
		return false
	case config.RPCMethodsSafe:
		return true
	default:
		host, _, err := net.SplitHostPort(remoteAddr)
		if err != nil {
			host = remoteAddr
		}
		ip := net.ParseIP(host)
		return ip == nil || !ip.IsLoopback()
	}
}

// dispatcher serves each request with the handler built for its
// connection context. Handlers are built lazily and cached.
type dispatcher struct {
	policy      string
	isAuthority bool
	build       Builder

	lock     sync.Mutex
	handlers map[ConnContext]http.Handler
}

func (d *dispatcher) handler(cc ConnContext) (http.Handler, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if h, ok := d.handlers[cc]; ok {
		return h, nil
	}
	server, err := d.build(cc)
	if err != nil {
		return nil, err
	}
	h, err := rpc.NewJSONRPCHandler(Name, server)
	if err != nil {
		return nil, err
	}
	d.handlers[cc] = h
	return h, nil
}

func (d *dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h, err := d.handler(ConnContext{
		DenyUnsafe:  denyUnsafe(d.policy, r.RemoteAddr),
		IsAuthority: d.isAuthority,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.ServeHTTP(w, r)
}

// NewHandler routes JSON-RPC, metrics and, when [p2p] is not nil, peer
// connections.
func NewHandler(
	c config.APIConfig,
	isAuthority bool,
	build Builder,
	gatherer prometheus.Gatherer,
	p2p http.Handler,
) (http.Handler, error) {
	d := &dispatcher{
		policy:      c.RPCMethods,
		isAuthority: isAuthority,
		build:       build,
		handlers:    map[ConnContext]http.Handler{},
	}
	// Fail at startup rather than on the first request.
	if _, err := d.handler(ConnContext{DenyUnsafe: true, IsAuthority: isAuthority}); err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Handle(rpc.JSONRPCEndpoint, d).Methods(http.MethodPost)
	r.Handle(rpc.MetricsEndpoint, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc(rpc.HealthEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"healthy":true}`))
	}).Methods(http.MethodGet)
	if p2p != nil {
		r.Handle(rpc.P2PEndpoint, p2p)
	}
	return r, nil
}
