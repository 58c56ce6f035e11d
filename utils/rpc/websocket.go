// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	_ EndpointRequester = (*wsRequester)(nil)

	errRequesterClosed = errors.New("websocket requester closed")
)

// wsRequester multiplexes JSON-RPC calls over one WebSocket connection.
// Requests carry a monotonically increasing id; a single reader goroutine
// routes responses back to the in-flight call with the matching id, so
// any number of calls may be issued concurrently.
type wsRequester struct {
	conn *websocket.Conn

	writeLock sync.Mutex

	lock    sync.Mutex
	nextID  uint64
	pending map[uint64]chan wsResponse
	closed  bool
	readErr error
}

type wsRequest struct {
	Version string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type wsResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *wsError        `json:"error"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// DialWebsocket connects to [uri] and returns a requester running over the
// established connection.
func DialWebsocket(uri string) (EndpointRequester, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", uri, err)
	}
	if resp != nil && resp.Body != nil {
		cleanlyCloseBody(resp.Body)
	}

	r := &wsRequester{
		conn:    conn,
		pending: make(map[uint64]chan wsResponse),
	}
	go r.readLoop()
	return r, nil
}

func (r *wsRequester) SendRequest(
	ctx context.Context,
	method string,
	params interface{},
	reply interface{},
) error {
	ch, id, err := r.register()
	if err != nil {
		return err
	}
	defer r.unregister(id)

	req := wsRequest{
		Version: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	r.writeLock.Lock()
	err = r.conn.WriteJSON(req)
	r.writeLock.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return r.closeReason()
		}
		if resp.Error != nil {
			return resp.Error
		}
		if reply == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, reply); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *wsRequester) Close() error {
	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return nil
	}
	r.closed = true
	if r.readErr == nil {
		r.readErr = errRequesterClosed
	}
	r.lock.Unlock()
	return r.conn.Close()
}

func (r *wsRequester) register() (chan wsResponse, uint64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return nil, 0, r.readErr
	}
	r.nextID++
	id := r.nextID
	ch := make(chan wsResponse, 1)
	r.pending[id] = ch
	return ch, id, nil
}

func (r *wsRequester) unregister(id uint64) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.pending, id)
}

func (r *wsRequester) closeReason() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.readErr != nil {
		return r.readErr
	}
	return errRequesterClosed
}

// readLoop delivers responses to in-flight calls until the connection
// fails or the requester is closed. On failure every waiting call is
// released with the read error.
func (r *wsRequester) readLoop() {
	for {
		var resp wsResponse
		if err := r.conn.ReadJSON(&resp); err != nil {
			r.failPending(err)
			return
		}

		r.lock.Lock()
		ch, ok := r.pending[resp.ID]
		if ok {
			delete(r.pending, resp.ID)
		}
		r.lock.Unlock()

		if ok {
			ch <- resp
		}
		// Responses with unknown ids (e.g. subscription pushes) are
		// dropped; this requester only issues plain calls.
	}
}

func (r *wsRequester) failPending(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.closed {
		r.closed = true
		r.readErr = fmt.Errorf("websocket connection lost: %w", err)
	}
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
}
