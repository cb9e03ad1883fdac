// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"net/http"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/rpc"
)

const (
	Name            = "relay"
	JSONRPCEndpoint = "/relay"
)

// JSONRPCServer serves a [Service] to remote parachain nodes.
type JSONRPCServer struct {
	svc *Service
	log logging.Logger
}

func NewJSONRPCServer(svc *Service, log logging.Logger) *JSONRPCServer {
	return &JSONRPCServer{svc: svc, log: log}
}

// Handler returns the http handler to mount at [JSONRPCEndpoint].
func (j *JSONRPCServer) Handler() (http.Handler, error) {
	return rpc.NewJSONRPCHandler(Name, j)
}

type PingReply struct {
	Success bool `json:"success"`
}

func (*JSONRPCServer) Ping(_ *http.Request, _ *struct{}, reply *PingReply) error {
	reply.Success = true
	return nil
}

func (j *JSONRPCServer) LatestRelayState(req *http.Request, _ *struct{}, reply *State) error {
	s, err := j.svc.LatestRelayState(req.Context())
	if err != nil {
		return err
	}
	*reply = s
	return nil
}

func (j *JSONRPCServer) Head(_ *http.Request, _ *struct{}, reply *State) error {
	*reply = j.svc.Head()
	return nil
}

type ValidationDataArgs struct {
	RelayParent ids.ID        `json:"relayParent"`
	ParaID      config.ParaID `json:"paraId"`
}

func (j *JSONRPCServer) ValidationDataFor(req *http.Request, args *ValidationDataArgs, reply *ValidationData) error {
	vd, err := j.svc.ValidationDataFor(req.Context(), args.RelayParent, args.ParaID)
	if err != nil {
		return err
	}
	*reply = *vd
	return nil
}

type AnnounceReply struct {
	Backed bool `json:"backed"`
}

func (j *JSONRPCServer) Announce(req *http.Request, args *Collation, reply *AnnounceReply) error {
	if err := j.svc.Announce(req.Context(), args); err != nil {
		j.log.Debug("rejected remote collation",
			zap.Uint32("para", uint32(args.ParaID)),
			zap.Error(err),
		)
		return err
	}
	reply.Backed = true
	return nil
}

type SendMessageArgs struct {
	From config.ParaID `json:"from"`
	To   config.ParaID `json:"to"`
	Data []byte        `json:"data"`
}

// SendMessage queues a downward message when From is zero and a horizontal
// message otherwise.
func (j *JSONRPCServer) SendMessage(_ *http.Request, args *SendMessageArgs, reply *PingReply) error {
	var err error
	if args.From == 0 {
		err = j.svc.SendDownward(args.To, args.Data)
	} else {
		err = j.svc.SendHorizontal(args.From, args.To, args.Data)
	}
	reply.Success = err == nil
	return err
}
