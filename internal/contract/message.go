package contract

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Message is a contract message identified by its 4-byte selector.
type Message struct {
	Name     string
	Selector [4]byte
}

// NewMessage derives the selector: the first 4 bytes of BLAKE2b-256 of the
// message name.
func NewMessage(name string) Message {
	sum := blake2b.Sum256([]byte(name))
	m := Message{Name: name}
	copy(m.Selector[:], sum[:4])
	return m
}

// SelectorHex returns the selector as 0x-prefixed hex.
func (m Message) SelectorHex() string {
	return "0x" + hex.EncodeToString(m.Selector[:])
}

// Encode builds call input data: selector followed by the encoded args.
func (m Message) Encode(args ...[]byte) []byte {
	n := len(m.Selector)
	for _, a := range args {
		n += len(a)
	}
	buf := make([]byte, 0, n)
	buf = append(buf, m.Selector[:]...)
	for _, a := range args {
		buf = append(buf, a...)
	}
	return buf
}

// Marketplace and token messages queried by the engine.
var (
	MsgAuctionCount  = NewMessage("auction_count")
	MsgGetAuction    = NewMessage("get_auction")
	MsgPendingRefund = NewMessage("pending_refund")
	MsgPendingPayout = NewMessage("pending_payout")
	MsgAllowance     = NewMessage("PSP22::allowance")
	MsgBalanceOf     = NewMessage("PSP22::balance_of")
)
