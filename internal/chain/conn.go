package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// DefaultTimeout bounds one RPC round trip when the context has no deadline.
	DefaultTimeout = 15 * time.Second
	// DialCheckTimeout bounds the liveness check made when dialing HTTP.
	DialCheckTimeout = 3 * time.Second
)

const (
	methodContractsCall = "contracts_call"
	flagRevert          = 1
)

var (
	ErrReverted   = errors.New("contract reverted")
	ErrNoEndpoint = errors.New("no chain endpoint reachable")
	ErrEmptyReply = errors.New("rpc returned no result")
)

// CallRequest is one read-only contract message.
type CallRequest struct {
	Origin auction.Address
	Dest   auction.Address
	Input  []byte // selector followed by encoded arguments
}

// Conn is an acquired connection to a contracts RPC endpoint. Callers must
// Close it on every path.
type Conn interface {
	// Call dry-runs the message and returns the contract's raw reply bytes.
	Call(ctx context.Context, req CallRequest) ([]byte, error)
	Close() error
}

// Dialer hands out connections, one per unit of work.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// RPCError is a JSON-RPC level error returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// --- wire shapes shared by the HTTP and WebSocket transports ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type callParams struct {
	Origin              string  `json:"origin"`
	Dest                string  `json:"dest"`
	Value               uint64  `json:"value"`
	GasLimit            *uint64 `json:"gasLimit"`
	StorageDepositLimit *uint64 `json:"storageDepositLimit"`
	InputData           string  `json:"inputData"`
}

type callResult struct {
	Result struct {
		Ok *struct {
			Flags uint32 `json:"flags"`
			Data  string `json:"data"`
		} `json:"Ok"`
		Err json.RawMessage `json:"Err"`
	} `json:"result"`
}

func newCallRequest(id uint64, req CallRequest) rpcRequest {
	return rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  methodContractsCall,
		Params: []interface{}{callParams{
			Origin:    req.Origin.Hex(),
			Dest:      req.Dest.Hex(),
			InputData: hexutil.Encode(req.Input),
		}},
	}
}

// parseCallResult extracts the reply bytes from a contracts_call result.
func parseCallResult(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrEmptyReply
	}
	var res callResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("parsing contracts_call result: %w", err)
	}
	if len(res.Result.Err) > 0 && string(res.Result.Err) != "null" {
		return nil, fmt.Errorf("dispatch error: %s", string(res.Result.Err))
	}
	if res.Result.Ok == nil {
		return nil, ErrEmptyReply
	}
	data, err := hexutil.Decode(res.Result.Ok.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding reply data: %w", err)
	}
	if res.Result.Ok.Flags&flagRevert != 0 {
		return nil, fmt.Errorf("%w: %s", ErrReverted, res.Result.Ok.Data)
	}
	return data, nil
}
