package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const methodGetHeader = "chain_getHeader"

// Health is what one probe of an endpoint measured.
type Health struct {
	Endpoint    string
	Latency     time.Duration
	BlockNumber uint64
}

type headerReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

func newHeaderRequest(id uint64) rpcRequest {
	return rpcRequest{JSONRPC: "2.0", ID: id, Method: methodGetHeader, Params: []interface{}{}}
}

// BlockNumber returns the number of the node's best block.
func (c *HTTPConn) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, newHeaderRequest(c.nextID.Add(1)))
	if err != nil {
		return 0, err
	}
	return parseHeader(raw)
}

// BlockNumber returns the number of the node's best block.
func (c *WSConn) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	raw, err := c.roundTrip(ctx, newHeaderRequest(c.nextID))
	if err != nil {
		return 0, err
	}
	return parseHeader(raw)
}

// Probe connects to ep, reads its best block and measures the round trip.
// The connection setup is included in Latency, matching what a query pays.
func (d *EndpointDialer) Probe(ctx context.Context, ep string) (Health, error) {
	h := Health{Endpoint: ep}
	start := time.Now()
	conn, err := d.open(ctx, ep)
	if err != nil {
		return h, err
	}
	defer conn.Close() //nolint:errcheck

	hr, ok := conn.(headerReader)
	if !ok {
		return h, fmt.Errorf("endpoint %s cannot report block height", ep)
	}
	n, err := hr.BlockNumber(ctx)
	if err != nil {
		return h, err
	}
	h.Latency = time.Since(start)
	h.BlockNumber = n
	return h, nil
}

func parseHeader(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, ErrEmptyReply
	}
	var hdr struct {
		Number string `json:"number"`
	}
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return 0, fmt.Errorf("parsing %s result: %w", methodGetHeader, err)
	}
	n, err := hexutil.DecodeUint64(hdr.Number)
	if err != nil {
		return 0, fmt.Errorf("header number %q: %w", hdr.Number, err)
	}
	return n, nil
}
