// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package requester

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"
)

// ErrTransport marks failures to reach the endpoint, as opposed to errors
// returned by the remote service.
var ErrTransport = errors.New("transport failure")

type EndpointRequester struct {
	cli  *http.Client
	uri  string
	base string
}

func New(uri string, base string, timeout time.Duration) *EndpointRequester {
	return &EndpointRequester{
		cli:  &http.Client{Timeout: timeout},
		uri:  uri,
		base: base,
	}
}

// SendRequest calls "<base>.<method>". Remote service errors are returned
// as *json2.Error; everything else wraps [ErrTransport].
func (e *EndpointRequester) SendRequest(
	ctx context.Context,
	method string,
	params interface{},
	reply interface{},
) error {
	body, err := json2.EncodeClientRequest(e.base+"."+method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.cli.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to issue request: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: received status code %d: %s", ErrTransport, resp.StatusCode, msg)
	}
	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			return rpcErr
		}
		return fmt.Errorf("%w: failed to decode client response: %w", ErrTransport, err)
	}
	return nil
}
