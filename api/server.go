// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ava-labs/avalanchego/ids"
	"go.uber.org/zap"

	"github.com/ava-labs/paranode/block"
	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/index"
	"github.com/ava-labs/paranode/relay"
)

var (
	ErrMissingDeps    = errors.New("rpc dependencies incomplete")
	ErrUnsafeDenied   = errors.New("method is unsafe for this connection")
	ErrNoRelay        = errors.New("node does not follow a relay chain")
	ErrNotSealing     = errors.New("node does not seal blocks on demand")
	ErrMissingBlockID = errors.New("block id or height required")
)

// JSONRPCServer serves the node's RPC methods to one connection context.
type JSONRPCServer struct {
	deps Deps
	conn ConnContext
}

func (j *JSONRPCServer) unsafe() error {
	if j.conn.DenyUnsafe {
		return ErrUnsafeDenied
	}
	return nil
}

type PingReply struct {
	Success bool `json:"success"`
}

func (*JSONRPCServer) Ping(_ *http.Request, _ *struct{}, reply *PingReply) error {
	reply.Success = true
	return nil
}

type NetworkReply struct {
	ChainID     ids.ID        `json:"chainId"`
	ChainName   string        `json:"chainName"`
	ParaID      config.ParaID `json:"paraId"`
	Mode        string        `json:"mode"`
	Role        string        `json:"role"`
	IsAuthority bool          `json:"isAuthority"`
}

func (j *JSONRPCServer) Network(_ *http.Request, _ *struct{}, reply *NetworkReply) error {
	spec := j.deps.Client.Spec()
	reply.ChainID = spec.ChainID()
	reply.ChainName = spec.Name
	reply.ParaID = j.deps.ParaID
	reply.Mode = j.deps.Mode.String()
	reply.Role = j.deps.Role.String()
	reply.IsAuthority = j.conn.IsAuthority
	return nil
}

type HealthReply struct {
	Peers           int    `json:"peers"`
	PendingTxs      int    `json:"pendingTxs"`
	BestHeight      uint64 `json:"bestHeight"`
	FinalizedHeight uint64 `json:"finalizedHeight"`
}

func (j *JSONRPCServer) Health(req *http.Request, _ *struct{}, reply *HealthReply) error {
	if j.deps.Peers != nil {
		reply.Peers = j.deps.Peers()
	}
	reply.PendingTxs = j.deps.Pool.Len(req.Context())
	reply.BestHeight = j.deps.Client.Best().Height
	reply.FinalizedHeight = j.deps.Client.Finalized().Height
	return nil
}

type BlockReply struct {
	ID        ids.ID   `json:"id"`
	Parent    ids.ID   `json:"parent"`
	Height    uint64   `json:"height"`
	Timestamp int64    `json:"timestamp"`
	Author    string   `json:"author"`
	TxIDs     []ids.ID `json:"txIds"`
	Bytes     []byte   `json:"bytes,omitempty"`
}

func newBlockReply(b *block.Block, withBytes bool, reply *BlockReply) {
	reply.ID = b.ID()
	reply.Parent = b.Parent
	reply.Height = b.Height
	reply.Timestamp = b.Timestamp
	if b.Signed() {
		reply.Author = b.Author.String()
	}
	reply.TxIDs = b.TxIDs()
	if withBytes {
		reply.Bytes = b.Bytes()
	}
}

func (j *JSONRPCServer) BestBlock(_ *http.Request, _ *struct{}, reply *BlockReply) error {
	newBlockReply(j.deps.Client.Best(), false, reply)
	return nil
}

func (j *JSONRPCServer) FinalizedBlock(_ *http.Request, _ *struct{}, reply *BlockReply) error {
	newBlockReply(j.deps.Client.Finalized(), false, reply)
	return nil
}

type GetBlockArgs struct {
	ID     ids.ID  `json:"id"`
	Height *uint64 `json:"height"`
}

func (j *JSONRPCServer) GetBlock(req *http.Request, args *GetBlockArgs, reply *BlockReply) error {
	ctx, span := j.deps.Tracer.Start(req.Context(), "JSONRPCServer.GetBlock")
	defer span.End()

	var (
		b   *block.Block
		err error
	)
	switch {
	case args.ID != ids.Empty:
		b, err = j.deps.Client.GetBlock(ctx, args.ID)
	case args.Height != nil:
		b, err = j.deps.Client.GetBlockByHeight(ctx, *args.Height)
	default:
		return ErrMissingBlockID
	}
	if err != nil {
		return err
	}
	newBlockReply(b, true, reply)
	return nil
}

type SubmitTxArgs struct {
	Tx []byte `json:"tx"`
}

type SubmitTxReply struct {
	TxID ids.ID `json:"txId"`
}

func (j *JSONRPCServer) SubmitTx(req *http.Request, args *SubmitTxArgs, reply *SubmitTxReply) error {
	ctx, span := j.deps.Tracer.Start(req.Context(), "JSONRPCServer.SubmitTx")
	defer span.End()

	txID, err := j.deps.Pool.Add(ctx, args.Tx)
	if err != nil {
		j.deps.Log.Debug("rejected submitted transaction", zap.Stringer("txID", txID), zap.Error(err))
		return err
	}
	reply.TxID = txID
	return nil
}

type TxStatusArgs struct {
	TxID ids.ID `json:"txId"`
}

type TxStatusReply struct {
	Pending  bool            `json:"pending"`
	Included bool            `json:"included"`
	Location *index.Location `json:"location,omitempty"`
}

func (j *JSONRPCServer) TxStatus(req *http.Request, args *TxStatusArgs, reply *TxStatusReply) error {
	ctx := req.Context()
	if j.deps.Pool.Has(ctx, args.TxID) {
		reply.Pending = true
		return nil
	}
	if j.deps.Index == nil {
		return nil
	}
	loc, err := j.deps.Index.TxLocation(ctx, args.TxID)
	switch {
	case errors.Is(err, index.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	reply.Included = true
	reply.Location = &loc
	return nil
}

func (j *JSONRPCServer) RelayState(req *http.Request, _ *struct{}, reply *relay.State) error {
	if j.deps.Relay == nil {
		return ErrNoRelay
	}
	st, err := j.deps.Relay.LatestRelayState(req.Context())
	if err != nil {
		return err
	}
	*reply = st
	return nil
}

// SealBlock asks an instant-seal node to author a block now.
func (j *JSONRPCServer) SealBlock(req *http.Request, _ *struct{}, reply *PingReply) error {
	if err := j.unsafe(); err != nil {
		return err
	}
	if j.deps.Sealer == nil {
		return ErrNotSealing
	}
	if err := j.deps.Sealer.Seal(req.Context()); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

type MockMessageArgs struct {
	Sender config.ParaID `json:"sender"`
	Data   []byte        `json:"data"`
}

// SendMockMessage queues a message for the next standalone block: downward
// when Sender is zero, horizontal otherwise.
func (j *JSONRPCServer) SendMockMessage(_ *http.Request, args *MockMessageArgs, reply *PingReply) error {
	if err := j.unsafe(); err != nil {
		return err
	}
	if j.deps.Channel == nil {
		return fmt.Errorf("%w: mock messages require standalone mode", ErrNotSealing)
	}
	msg := relay.Message{Sender: args.Sender, Data: args.Data}
	var err error
	if args.Sender == 0 {
		err = j.deps.Channel.SendDownward(msg)
	} else {
		err = j.deps.Channel.SendHorizontal(msg)
	}
	if err != nil {
		return err
	}
	reply.Success = true
	return nil
}
