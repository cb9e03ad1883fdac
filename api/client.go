// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"strings"
	"time"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/relay"
	"github.com/ava-labs/paranode/requester"
	"github.com/ava-labs/paranode/rpc"
)

const clientTimeout = 10 * time.Second

type JSONRPCClient struct {
	requester *requester.EndpointRequester
}

func NewJSONRPCClient(uri string) *JSONRPCClient {
	uri = strings.TrimSuffix(uri, "/")
	uri += rpc.JSONRPCEndpoint
	return &JSONRPCClient{requester: requester.New(uri, Name, clientTimeout)}
}

func (cli *JSONRPCClient) Ping(ctx context.Context) (bool, error) {
	resp := new(PingReply)
	err := cli.requester.SendRequest(ctx, "ping", nil, resp)
	return resp.Success, err
}

func (cli *JSONRPCClient) Network(ctx context.Context) (*NetworkReply, error) {
	resp := new(NetworkReply)
	err := cli.requester.SendRequest(ctx, "network", nil, resp)
	return resp, err
}

func (cli *JSONRPCClient) Health(ctx context.Context) (*HealthReply, error) {
	resp := new(HealthReply)
	err := cli.requester.SendRequest(ctx, "health", nil, resp)
	return resp, err
}

func (cli *JSONRPCClient) BestBlock(ctx context.Context) (*BlockReply, error) {
	resp := new(BlockReply)
	err := cli.requester.SendRequest(ctx, "bestBlock", nil, resp)
	return resp, err
}

func (cli *JSONRPCClient) FinalizedBlock(ctx context.Context) (*BlockReply, error) {
	resp := new(BlockReply)
	err := cli.requester.SendRequest(ctx, "finalizedBlock", nil, resp)
	return resp, err
}

func (cli *JSONRPCClient) GetBlockByHeight(ctx context.Context, height uint64) (*BlockReply, error) {
	resp := new(BlockReply)
	err := cli.requester.SendRequest(ctx, "getBlock", &GetBlockArgs{Height: &height}, resp)
	return resp, err
}

func (cli *JSONRPCClient) GetBlock(ctx context.Context, id ids.ID) (*BlockReply, error) {
	resp := new(BlockReply)
	err := cli.requester.SendRequest(ctx, "getBlock", &GetBlockArgs{ID: id}, resp)
	return resp, err
}

func (cli *JSONRPCClient) SubmitTx(ctx context.Context, tx []byte) (ids.ID, error) {
	resp := new(SubmitTxReply)
	err := cli.requester.SendRequest(ctx, "submitTx", &SubmitTxArgs{Tx: tx}, resp)
	return resp.TxID, err
}

func (cli *JSONRPCClient) TxStatus(ctx context.Context, txID ids.ID) (*TxStatusReply, error) {
	resp := new(TxStatusReply)
	err := cli.requester.SendRequest(ctx, "txStatus", &TxStatusArgs{TxID: txID}, resp)
	return resp, err
}

func (cli *JSONRPCClient) RelayState(ctx context.Context) (relay.State, error) {
	resp := new(relay.State)
	err := cli.requester.SendRequest(ctx, "relayState", nil, resp)
	return *resp, err
}

func (cli *JSONRPCClient) SealBlock(ctx context.Context) error {
	return cli.requester.SendRequest(ctx, "sealBlock", nil, new(PingReply))
}

func (cli *JSONRPCClient) SendMockMessage(ctx context.Context, sender config.ParaID, data []byte) error {
	return cli.requester.SendRequest(ctx, "sendMockMessage", &MockMessageArgs{Sender: sender, Data: data}, new(PingReply))
}

// WaitForHeight polls until the best block reaches [height].
func (cli *JSONRPCClient) WaitForHeight(ctx context.Context, height uint64) (*BlockReply, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		b, err := cli.BestBlock(ctx)
		if err == nil && b.Height >= height {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
