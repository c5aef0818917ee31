package scale

import (
	"encoding/binary"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/holiman/uint256"
)

// AppendU64 appends v little-endian.
func AppendU64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

// AppendU256 appends v as 32 little-endian bytes.
func AppendU256(dst []byte, v *uint256.Int) []byte {
	be := v.Bytes32()
	for i := 31; i >= 0; i-- {
		dst = append(dst, be[i])
	}
	return dst
}

func AppendAddress(dst []byte, a auction.Address) []byte {
	return append(dst, a[:]...)
}

func AppendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// EncodeAuction lays r out according to AuctionV1.
func EncodeAuction(r *auction.Record) []byte {
	buf := make([]byte, 0, AuctionV1.MaxWidth())
	buf = AppendU64(buf, r.AuctionID)
	buf = AppendAddress(buf, r.CollectionID)
	buf = AppendU64(buf, r.TokenID)
	buf = AppendAddress(buf, r.Seller)
	buf = AppendU256(buf, &r.StartPrice)
	buf = AppendU256(buf, &r.MinBidIncrement)
	buf = AppendU256(buf, &r.HighestBid)
	if r.HighestBidder == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = AppendAddress(buf, *r.HighestBidder)
	}
	buf = AppendU64(buf, r.EndTimeMs)
	buf = AppendU64(buf, r.ExtensionWindowMs)
	return AppendBool(buf, r.Settled)
}

// EncodeAuctionReply builds a full get_auction reply. A nil record encodes
// the absent case.
func EncodeAuctionReply(r *auction.Record) []byte {
	if r == nil {
		return []byte{0, 0}
	}
	return append([]byte{0, 1}, EncodeAuction(r)...)
}

func EncodeU64Reply(v uint64) []byte {
	return AppendU64([]byte{0}, v)
}

func EncodeU256Reply(v *uint256.Int) []byte {
	return AppendU256([]byte{0}, v)
}
