// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewEndpointRequesterScheme(t *testing.T) {
	require := require.New(t)

	r, err := NewEndpointRequester("http://localhost:9933")
	require.NoError(err)
	require.NoError(r.Close())

	_, err = NewEndpointRequester("ftp://localhost")
	require.Error(err)

	_, err = NewEndpointRequester("://")
	require.Error(err)
}

func TestHTTPRequester(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     json.RawMessage `json:"id"`
		}
		require.NoError(json.NewDecoder(r.Body).Decode(&req))
		require.Equal("system_chain", req.Method)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","result":"Development","id":%s}`, req.ID)
	}))
	defer server.Close()

	r, err := NewEndpointRequester(server.URL)
	require.NoError(err)
	defer r.Close()

	var chain string
	require.NoError(r.SendRequest(context.Background(), "system_chain", []interface{}{}, &chain))
	require.Equal("Development", chain)
}

func TestHTTPRequesterErrorResponse(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		require.NoError(json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprintf(w, `{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found"},"id":%s}`, req.ID)
	}))
	defer server.Close()

	r, err := NewEndpointRequester(server.URL)
	require.NoError(err)
	defer r.Close()

	var reply string
	err = r.SendRequest(context.Background(), "nope", []interface{}{}, &reply)
	require.Error(err)
	require.Contains(err.Error(), "Method not found")
}

func TestHTTPRequesterBadStatus(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	r, err := NewEndpointRequester(server.URL)
	require.NoError(err)
	defer r.Close()

	err = r.SendRequest(context.Background(), "anything", []interface{}{}, nil)
	require.Error(err)
}

// wsEcho upgrades and answers every request with its first param,
// deliberately out of arrival order to exercise id correlation.
func wsEcho(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeLock sync.Mutex
		for {
			var req struct {
				ID     uint64        `json:"id"`
				Method string        `json:"method"`
				Params []interface{} `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			go func() {
				// Scramble response order a little.
				time.Sleep(time.Duration(req.ID%3) * time.Millisecond)
				writeLock.Lock()
				defer writeLock.Unlock()
				_ = conn.WriteJSON(map[string]interface{}{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"result":  req.Params[0],
				})
			}()
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebsocketRequester(t *testing.T) {
	require := require.New(t)

	server := wsEcho(t)
	defer server.Close()

	r, err := NewEndpointRequester(wsURL(server))
	require.NoError(err)
	defer r.Close()

	var reply string
	require.NoError(r.SendRequest(context.Background(), "echo", []interface{}{"hello"}, &reply))
	require.Equal("hello", reply)
}

func TestWebsocketRequesterConcurrent(t *testing.T) {
	require := require.New(t)

	server := wsEcho(t)
	defer server.Close()

	r, err := NewEndpointRequester(wsURL(server))
	require.NoError(err)
	defer r.Close()

	replies := make([]string, 32)
	eg := errgroup.Group{}
	for i := range replies {
		i := i
		eg.Go(func() error {
			return r.SendRequest(context.Background(), "echo",
				[]interface{}{fmt.Sprintf("msg-%d", i)}, &replies[i])
		})
	}
	require.NoError(eg.Wait())
	for i, reply := range replies {
		require.Equal(fmt.Sprintf("msg-%d", i), reply)
	}
}

func TestWebsocketRequesterConnectionLost(t *testing.T) {
	require := require.New(t)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Read one request and drop the connection without answering.
		_, _, _ = conn.ReadMessage()
		conn.Close()
	}))
	defer server.Close()

	r, err := NewEndpointRequester(wsURL(server))
	require.NoError(err)
	defer r.Close()

	var reply string
	err = r.SendRequest(context.Background(), "echo", []interface{}{"x"}, &reply)
	require.Error(err)
}

func TestWebsocketRequesterContextCancelled(t *testing.T) {
	require := require.New(t)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never answer.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	r, err := NewEndpointRequester(wsURL(server))
	require.NoError(err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = r.SendRequest(ctx, "echo", []interface{}{"x"}, nil)
	require.ErrorIs(err, context.DeadlineExceeded)
}
