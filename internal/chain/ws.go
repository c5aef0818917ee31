package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Time allowed to write a close frame to the node.
const closeWait = time.Second

// WSConn issues contract calls as JSON-RPC over one WebSocket. Calls on the
// same connection are serialized.
type WSConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

// DialWS opens a WebSocket to url.
func DialWS(ctx context.Context, url string) (*WSConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return &WSConn{conn: conn}, nil
}

// Call runs contracts_call and returns the reply bytes.
func (c *WSConn) Call(ctx context.Context, req CallRequest) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	result, err := c.roundTrip(ctx, newCallRequest(c.nextID, req))
	if err != nil {
		return nil, err
	}
	return parseCallResult(result)
}

// roundTrip writes rpcReq and waits for the response with the matching id.
// Subscription notifications arriving in between are skipped. c.mu must be
// held.
func (c *WSConn) roundTrip(ctx context.Context, rpcReq rpcRequest) (json.RawMessage, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}

	// Unblock the read if ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	c.conn.SetWriteDeadline(deadline) //nolint:errcheck
	if err := c.conn.WriteJSON(rpcReq); err != nil {
		return nil, fmt.Errorf("%s write: %w", rpcReq.Method, err)
	}

	c.conn.SetReadDeadline(deadline) //nolint:errcheck
	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%s read: %w", rpcReq.Method, ctxErr)
			}
			return nil, fmt.Errorf("%s read: %w", rpcReq.Method, err)
		}
		if resp.ID != rpcReq.ID {
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Close sends a close frame and tears down the socket.
func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)) //nolint:errcheck
	return c.conn.Close()
}
