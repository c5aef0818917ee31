package scale

import (
	"encoding/binary"
	"fmt"

	"github.com/Mohsinsiddi/auctionbridge/internal/auction"
	"github.com/holiman/uint256"
)

// Values holds the fields of one decoded record keyed by schema field name.
type Values map[string]any

func (v Values) U8(name string) uint8 {
	x, _ := v[name].(uint8)
	return x
}

func (v Values) U64(name string) uint64 {
	x, _ := v[name].(uint64)
	return x
}

func (v Values) U256(name string) uint256.Int {
	x, _ := v[name].(uint256.Int)
	return x
}

func (v Values) Bool(name string) bool {
	x, _ := v[name].(bool)
	return x
}

func (v Values) Address(name string) auction.Address {
	x, _ := v[name].(auction.Address)
	return x
}

// OptionalAddress returns nil when the field was absent.
func (v Values) OptionalAddress(name string) *auction.Address {
	x, _ := v[name].(*auction.Address)
	return x
}

// Decode reads buf field by field at the offsets implied by s. The whole
// buffer must be consumed.
func Decode(s *Schema, buf []byte) (Values, error) {
	return decodeAt(s, buf, 0)
}

// base is the offset of buf within the full reply, used in error reports.
func decodeAt(s *Schema, buf []byte, base int) (Values, error) {
	id := s.ID()
	if need := s.MinWidth(); len(buf) < need {
		return nil, &DecodeError{
			Schema: id,
			Offset: base + len(buf),
			Err:    fmt.Errorf("%w: need at least %d bytes, got %d", ErrTruncatedReply, need, len(buf)),
		}
	}

	r := reader{buf: buf, base: base, schema: id}
	vals := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		v, err := r.field(f)
		if err != nil {
			return nil, err
		}
		vals[f.Name] = v
	}
	if r.off != len(buf) {
		return nil, &DecodeError{
			Schema: id,
			Offset: base + r.off,
			Err:    fmt.Errorf("%w: %d unread", ErrTrailingBytes, len(buf)-r.off),
		}
	}
	return vals, nil
}

type reader struct {
	buf    []byte
	off    int
	base   int
	schema string
}

func (r *reader) fail(field string, err error) error {
	return &DecodeError{Schema: r.schema, Field: field, Offset: r.base + r.off, Err: err}
}

func (r *reader) take(field string, n int) ([]byte, error) {
	if len(r.buf)-r.off < n {
		return nil, r.fail(field, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedReply, n, len(r.buf)-r.off))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) field(f Field) (any, error) {
	switch f.Kind {
	case KindU8:
		b, err := r.take(f.Name, WidthU8)
		if err != nil {
			return nil, err
		}
		return b[0], nil

	case KindU64:
		b, err := r.take(f.Name, WidthU64)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint64(b), nil

	case KindU256:
		b, err := r.take(f.Name, WidthU256)
		if err != nil {
			return nil, err
		}
		return leU256(b), nil

	case KindBool:
		b, err := r.take(f.Name, WidthBool)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		r.off--
		return nil, r.fail(f.Name, fmt.Errorf("%w: 0x%02x", ErrInvalidBool, b[0]))

	case KindAddress:
		b, err := r.take(f.Name, WidthAddress)
		if err != nil {
			return nil, err
		}
		var a auction.Address
		copy(a[:], b)
		return a, nil

	case KindOptionAddress:
		d, err := r.take(f.Name, 1)
		if err != nil {
			return nil, err
		}
		switch d[0] {
		case 0:
			return (*auction.Address)(nil), nil
		case 1:
			b, err := r.take(f.Name, f.Width)
			if err != nil {
				return nil, err
			}
			var a auction.Address
			copy(a[:], b)
			return &a, nil
		}
		r.off--
		return nil, r.fail(f.Name, fmt.Errorf("%w: 0x%02x", ErrInvalidDiscriminant, d[0]))
	}
	return nil, r.fail(f.Name, fmt.Errorf("unsupported kind %s", f.Kind))
}

// leU256 folds 32 little-endian bytes high-to-low.
func leU256(b []byte) uint256.Int {
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = b[31-i]
	}
	var v uint256.Int
	v.SetBytes32(be[:])
	return v
}

// resultPayload strips the leading message-result byte. 0 is Ok; 1 means the
// contract itself reported an error.
func resultPayload(id string, buf []byte) ([]byte, error) {
	if len(buf) < 1 {
		return nil, &DecodeError{Schema: id, Err: fmt.Errorf("%w: empty reply", ErrTruncatedReply)}
	}
	switch buf[0] {
	case 0:
		return buf[1:], nil
	case 1:
		return nil, &DecodeError{Schema: id, Err: ErrContractError}
	}
	return nil, &DecodeError{Schema: id, Err: fmt.Errorf("%w: result 0x%02x", ErrInvalidDiscriminant, buf[0])}
}

// DecodeAuction decodes the present branch of an auction record.
func DecodeAuction(payload []byte) (*auction.Record, error) {
	return decodeAuctionAt(payload, 0)
}

func decodeAuctionAt(payload []byte, base int) (*auction.Record, error) {
	v, err := decodeAt(&AuctionV1, payload, base)
	if err != nil {
		return nil, err
	}
	rec := &auction.Record{
		AuctionID:         v.U64(FieldAuctionID),
		CollectionID:      v.Address(FieldCollectionID),
		TokenID:           v.U64(FieldTokenID),
		Seller:            v.Address(FieldSeller),
		StartPrice:        v.U256(FieldStartPrice),
		MinBidIncrement:   v.U256(FieldMinBidIncrement),
		HighestBid:        v.U256(FieldHighestBid),
		HighestBidder:     v.OptionalAddress(FieldHighestBidder),
		EndTimeMs:         v.U64(FieldEndTimeMs),
		ExtensionWindowMs: v.U64(FieldExtensionWindowMs),
		Settled:           v.Bool(FieldSettled),
	}
	if err := rec.CheckBidState(); err != nil {
		return nil, &DecodeError{Schema: AuctionV1.ID(), Field: FieldHighestBid, Offset: base, Err: err}
	}
	return rec, nil
}

// DecodeAuctionReply decodes a get_auction reply: result byte, outer option
// discriminant, then the record. An absent auction returns (nil, nil).
func DecodeAuctionReply(buf []byte) (*auction.Record, error) {
	id := AuctionV1.ID()
	body, err := resultPayload(id, buf)
	if err != nil {
		return nil, err
	}
	if len(body) < 1 {
		return nil, &DecodeError{Schema: id, Offset: 1, Err: fmt.Errorf("%w: missing option byte", ErrTruncatedReply)}
	}
	switch body[0] {
	case 0:
		if len(body) != 1 {
			return nil, &DecodeError{Schema: id, Offset: 2, Err: fmt.Errorf("%w: %d after absent", ErrTrailingBytes, len(body)-1)}
		}
		return nil, nil
	case 1:
		return decodeAuctionAt(body[1:], 2)
	}
	return nil, &DecodeError{Schema: id, Offset: 1, Err: fmt.Errorf("%w: 0x%02x", ErrInvalidDiscriminant, body[0])}
}

// DecodeU64Reply decodes a reply carrying a single u64.
func DecodeU64Reply(buf []byte) (uint64, error) {
	body, err := resultPayload(U64V1.ID(), buf)
	if err != nil {
		return 0, err
	}
	v, err := decodeAt(&U64V1, body, 1)
	if err != nil {
		return 0, err
	}
	return v.U64(FieldValue), nil
}

// DecodeU256Reply decodes a reply carrying a single u256.
func DecodeU256Reply(buf []byte) (*uint256.Int, error) {
	body, err := resultPayload(U256V1.ID(), buf)
	if err != nil {
		return nil, err
	}
	v, err := decodeAt(&U256V1, body, 1)
	if err != nil {
		return nil, err
	}
	x := v.U256(FieldValue)
	return &x, nil
}
