// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"net/http"

	"github.com/ava-labs/avalanchego/utils/json"
	"github.com/gorilla/rpc/v2"
)

// NewJSONRPCHandler serves [service] under the method namespace [name].
// Method names are case-insensitive on their first letter, so clients may
// call "<name>.bestBlock" for BestBlock.
func NewJSONRPCHandler(
	name string,
	service interface{},
) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json.NewCodec(), "application/json")
	server.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")
	return server, server.RegisterService(service, name)
}
