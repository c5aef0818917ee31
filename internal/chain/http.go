package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// HTTPConn issues contract calls as JSON-RPC over HTTP POST.
type HTTPConn struct {
	url    string
	client *http.Client
	nextID atomic.Uint64
}

// NewHTTPConn creates a connection to url. A nil client gets a default one.
func NewHTTPConn(url string, client *http.Client) *HTTPConn {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPConn{url: url, client: client}
}

// Call runs contracts_call and returns the reply bytes.
func (c *HTTPConn) Call(ctx context.Context, req CallRequest) ([]byte, error) {
	result, err := c.call(ctx, newCallRequest(c.nextID.Add(1), req))
	if err != nil {
		return nil, err
	}
	return parseCallResult(result)
}

// Close releases idle keep-alive sockets held for this endpoint.
func (c *HTTPConn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPConn) call(ctx context.Context, rpcReq rpcRequest) (json.RawMessage, error) {
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", rpcReq.Method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", rpcReq.Method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", rpcReq.Method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", rpcReq.Method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", rpcReq.Method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", rpcReq.Method, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}
