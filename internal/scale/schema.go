// Package scale decodes the fixed-layout little-endian replies of the
// marketplace contract. Field boundaries come from static, versioned schema
// tables; the decoder never searches the buffer for marker bytes.
package scale

import "fmt"

// Kind is the wire type of a schema field.
type Kind int

const (
	KindU8 Kind = iota + 1
	KindU64
	KindU256
	KindBool
	KindAddress
	KindOptionAddress
)

// Fixed wire widths.
const (
	WidthU8      = 1
	WidthU64     = 8
	WidthU256    = 32
	WidthBool    = 1
	WidthAddress = 32
)

func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU64:
		return "u64"
	case KindU256:
		return "u256"
	case KindBool:
		return "bool"
	case KindAddress:
		return "address"
	case KindOptionAddress:
		return "option<address>"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field is one (name, kind, width) entry. For optional kinds Width is the
// payload width; the one-byte discriminant is not included.
type Field struct {
	Name  string
	Kind  Kind
	Width int
}

// Optional reports whether the field carries a discriminant.
func (f Field) Optional() bool { return f.Kind == KindOptionAddress }

// MinWidth is the width when an optional field is absent.
func (f Field) MinWidth() int {
	if f.Optional() {
		return 1
	}
	return f.Width
}

// MaxWidth is the width when an optional field is present.
func (f Field) MaxWidth() int {
	if f.Optional() {
		return 1 + f.Width
	}
	return f.Width
}

// Schema is a versioned record layout.
type Schema struct {
	Name    string
	Version int
	Fields  []Field
}

// ID returns "name/vN".
func (s *Schema) ID() string { return fmt.Sprintf("%s/v%d", s.Name, s.Version) }

// MinWidth is the total width with every optional field absent. A reply
// shorter than this cannot hold the record.
func (s *Schema) MinWidth() int {
	n := 0
	for _, f := range s.Fields {
		n += f.MinWidth()
	}
	return n
}

// MaxWidth is the total width with every optional field present.
func (s *Schema) MaxWidth() int {
	n := 0
	for _, f := range s.Fields {
		n += f.MaxWidth()
	}
	return n
}

// Field names of the auction layout.
const (
	FieldAuctionID         = "auction_id"
	FieldCollectionID      = "collection_id"
	FieldTokenID           = "token_id"
	FieldSeller            = "seller"
	FieldStartPrice        = "start_price"
	FieldMinBidIncrement   = "min_bid_increment"
	FieldHighestBid        = "highest_bid"
	FieldHighestBidder     = "highest_bidder"
	FieldEndTimeMs         = "end_time_ms"
	FieldExtensionWindowMs = "extension_window_ms"
	FieldSettled           = "settled"

	FieldValue = "value"
)

// AuctionV1 is the Auction struct as stored by the marketplace contract.
var AuctionV1 = Schema{
	Name:    "auction",
	Version: 1,
	Fields: []Field{
		{FieldAuctionID, KindU64, WidthU64},
		{FieldCollectionID, KindAddress, WidthAddress},
		{FieldTokenID, KindU64, WidthU64},
		{FieldSeller, KindAddress, WidthAddress},
		{FieldStartPrice, KindU256, WidthU256},
		{FieldMinBidIncrement, KindU256, WidthU256},
		{FieldHighestBid, KindU256, WidthU256},
		{FieldHighestBidder, KindOptionAddress, WidthAddress},
		{FieldEndTimeMs, KindU64, WidthU64},
		{FieldExtensionWindowMs, KindU64, WidthU64},
		{FieldSettled, KindBool, WidthBool},
	},
}

// U64V1 is a bare u64 reply, e.g. auction_count.
var U64V1 = Schema{Name: "u64", Version: 1, Fields: []Field{{FieldValue, KindU64, WidthU64}}}

// U256V1 is a bare u256 reply, e.g. pending_refund or allowance.
var U256V1 = Schema{Name: "u256", Version: 1, Fields: []Field{{FieldValue, KindU256, WidthU256}}}
