// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	rpc "github.com/gorilla/rpc/v2/json2"
)

var _ EndpointRequester = (*httpRequester)(nil)

// EndpointRequester issues JSON-RPC 2.0 calls against a single endpoint.
type EndpointRequester interface {
	SendRequest(ctx context.Context, method string, params interface{}, reply interface{}) error

	// Close releases the underlying transport. The requester must not be
	// used after Close returns.
	Close() error
}

// NewEndpointRequester returns a requester for [uri], selecting the
// transport from the URI scheme: ws/wss dials a WebSocket connection,
// http/https issues one POST per call.
func NewEndpointRequester(uri string) (EndpointRequester, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint uri %q: %w", uri, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return DialWebsocket(uri)
	case "http", "https":
		return &httpRequester{
			uri:    uri,
			client: http.DefaultClient,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q in %q", u.Scheme, uri)
	}
}

type httpRequester struct {
	uri    string
	client *http.Client
}

func (r *httpRequester) SendRequest(
	ctx context.Context,
	method string,
	params interface{},
	reply interface{},
) error {
	requestBodyBytes, err := rpc.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		r.uri,
		bytes.NewBuffer(requestBodyBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(request)
	if err != nil {
		return fmt.Errorf("failed to issue request: %w", err)
	}
	defer cleanlyCloseBody(resp.Body)

	// Return an error for any non successful status code
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("received status code: %d", resp.StatusCode)
	}

	if err := rpc.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("failed to decode client response: %w", err)
	}
	return nil
}

func (*httpRequester) Close() error {
	return nil
}

// cleanlyCloseBody avoids sending unnecessary RST_STREAM and PING frames
// by ensuring the whole body is read before being closed.
func cleanlyCloseBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
