// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/ava-labs/paranode/config"
	"github.com/ava-labs/paranode/requester"
)

var _ Interface = (*RPCClient)(nil)

// remoteErrors are matched against error messages returned by a remote
// [JSONRPCServer].
var remoteErrors = []error{
	ErrUnknownRelayParent,
	ErrUnknownPara,
	ErrStaleCollation,
	ErrRelayParentTooOld,
	ErrCollationTooLarge,
	ErrQueueFull,
	ErrClosed,
}

// RPCClient talks to a relay node over JSON-RPC. Each call is a single
// request; nothing is cached.
type RPCClient struct {
	requester *requester.EndpointRequester
}

func NewRPCClient(uri string, timeout time.Duration) *RPCClient {
	uri = strings.TrimSuffix(uri, "/")
	if !strings.HasSuffix(uri, JSONRPCEndpoint) {
		uri += JSONRPCEndpoint
	}
	return &RPCClient{requester: requester.New(uri, Name, timeout)}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *json2.Error
	if errors.As(err, &rpcErr) {
		for _, known := range remoteErrors {
			if strings.HasPrefix(rpcErr.Message, known.Error()) {
				return fmt.Errorf("%w: remote: %s", known, rpcErr.Message)
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (c *RPCClient) Ping(ctx context.Context) (bool, error) {
	resp := new(PingReply)
	err := c.requester.SendRequest(ctx, "ping", nil, resp)
	return resp.Success, classify(err)
}

func (c *RPCClient) LatestRelayState(ctx context.Context) (State, error) {
	resp := new(State)
	if err := c.requester.SendRequest(ctx, "latestRelayState", nil, resp); err != nil {
		return State{}, classify(err)
	}
	return *resp, nil
}

func (c *RPCClient) Head(ctx context.Context) (State, error) {
	resp := new(State)
	if err := c.requester.SendRequest(ctx, "head", nil, resp); err != nil {
		return State{}, classify(err)
	}
	return *resp, nil
}

func (c *RPCClient) ValidationDataFor(ctx context.Context, relayParent ids.ID, paraID config.ParaID) (*ValidationData, error) {
	resp := new(ValidationData)
	err := c.requester.SendRequest(
		ctx,
		"validationDataFor",
		&ValidationDataArgs{RelayParent: relayParent, ParaID: paraID},
		resp,
	)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

func (c *RPCClient) Announce(ctx context.Context, collation *Collation) error {
	resp := new(AnnounceReply)
	return classify(c.requester.SendRequest(ctx, "announce", collation, resp))
}

func (c *RPCClient) SendMessage(ctx context.Context, from, to config.ParaID, data []byte) error {
	resp := new(PingReply)
	return classify(c.requester.SendRequest(
		ctx,
		"sendMessage",
		&SendMessageArgs{From: from, To: to, Data: data},
		resp,
	))
}

// Close is a no-op; every call uses its own request.
func (*RPCClient) Close() error {
	return nil
}
